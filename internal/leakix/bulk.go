package leakix

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v4"

	"github.com/leakctl/leakctl/internal/cache"
	"github.com/leakctl/leakctl/internal/metrics"
	"github.com/leakctl/leakctl/internal/record"
)

// Export lines batch many events; scanning needs room well past the
// bufio default.
const maxBulkLine = 16 << 20

// bulkStream opens the NDJSON export for query, replaying from cache
// when the identical export already completed.
func (c *Client) bulkStream(ctx context.Context, query string) (*Stream, error) {
	params := url.Values{}
	params.Set("q", query)
	fp := cache.Fingerprint("/bulk/search", params)
	if c.cache != nil {
		if b, ok := c.cache.Get(ctx, fp); ok {
			metrics.CacheTotal.WithLabelValues("hit").Inc()
			c.log.Debug("bulk export answered from cache")
			src := &bulkSource{c: c, ctx: ctx}
			src.sc = bufio.NewScanner(bytes.NewReader(b))
			src.sc.Buffer(make([]byte, 64*1024), maxBulkLine)
			return &Stream{src: src}, nil
		}
		metrics.CacheTotal.WithLabelValues("miss").Inc()
	}
	resp, err := c.openBulk(ctx, params)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("bulk", "error").Inc()
		return nil, err
	}
	metrics.RequestsTotal.WithLabelValues("bulk", "ok").Inc()
	src := &bulkSource{c: c, ctx: ctx, body: resp.Body, fp: fp}
	src.sc = bufio.NewScanner(io.TeeReader(resp.Body, &src.spool))
	src.sc.Buffer(make([]byte, 64*1024), maxBulkLine)
	return &Stream{src: src}, nil
}

// openBulk issues the export request, honoring 429 waits like any
// other fetch. The export endpoint takes no Accept header.
func (c *Client) openBulk(ctx context.Context, params url.Values) (*http.Response, error) {
	for {
		var resp *http.Response
		op := func() error {
			r, err := c.do(ctx, "/bulk/search", params, false)
			if err != nil {
				return err
			}
			if err := checkStatus(r, "/bulk/search"); err != nil {
				io.Copy(io.Discard, r.Body)
				r.Body.Close()
				return err
			}
			resp = r
			return nil
		}
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = c.maxElapsed
		err := backoff.Retry(op, backoff.WithContext(bo, ctx))
		if err == nil {
			return resp, nil
		}
		var rl *rateLimitError
		if errors.As(err, &rl) {
			metrics.RateLimitWaits.Inc()
			c.log.Warnf("rate limited on /bulk/search, waiting %s", rl.Wait)
			if serr := c.sleep(ctx, rl.Wait); serr != nil {
				return nil, serr
			}
			continue
		}
		return nil, err
	}
}

// bulkSource scans the export one line at a time. Each line is an
// {"events": [...]} envelope or a single event object. The raw stream
// is teed into spool and cached only on clean EOF; a stream closed
// early leaves no cache entry.
type bulkSource struct {
	c   *Client
	ctx context.Context

	body  io.ReadCloser // nil when replaying from cache
	sc    *bufio.Scanner
	spool bytes.Buffer
	fp    string

	buf    []record.Record
	closed bool
}

func (s *bulkSource) next() (record.Record, bool, error) {
	for {
		if len(s.buf) > 0 {
			r := s.buf[0]
			s.buf = s.buf[1:]
			return r, true, nil
		}
		if s.closed {
			return record.Record{}, false, nil
		}
		if err := s.ctx.Err(); err != nil {
			return record.Record{}, false, err
		}
		if !s.sc.Scan() {
			if err := s.sc.Err(); err != nil {
				return record.Record{}, false, fmt.Errorf("leakix: bulk stream: %w", err)
			}
			s.finish()
			return record.Record{}, false, nil
		}
		line := bytes.TrimSpace(s.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		s.buf = s.c.decodeBulkLine(line)
	}
}

// finish closes the body after a clean EOF and caches the full export.
func (s *bulkSource) finish() {
	s.closed = true
	if s.body == nil {
		return
	}
	s.body.Close()
	s.body = nil
	if s.c.cache != nil && s.fp != "" {
		s.c.cache.Put(s.ctx, s.fp, s.spool.Bytes())
	}
}

// close drops the connection without caching, so the server sees the
// disconnect instead of feeding a stream nobody reads.
func (s *bulkSource) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.body != nil {
		err := s.body.Close()
		s.body = nil
		return err
	}
	return nil
}

// decodeBulkLine decodes one export line. Malformed lines are skipped,
// the stream goes on.
func (c *Client) decodeBulkLine(line []byte) []record.Record {
	var v any
	if err := json.Unmarshal(line, &v); err != nil {
		c.log.Warnw("skipping malformed bulk line", "err", err)
		metrics.RecordsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		c.log.Warn("skipping bulk line that is not an object")
		metrics.RecordsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	if evs, ok := m["events"].([]any); ok {
		return c.wrapAll(evs)
	}
	r, err := record.Wrap(m)
	if err != nil {
		return nil
	}
	return []record.Record{r}
}
