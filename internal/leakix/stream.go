package leakix

import (
	"context"
	"errors"

	"github.com/leakctl/leakctl/internal/metrics"
	"github.com/leakctl/leakctl/internal/record"
)

// recordSource produces records one at a time. next reports ok=false
// at end of stream.
type recordSource interface {
	next() (record.Record, bool, error)
	close() error
}

// Stream iterates search results lazily:
//
//	st, err := c.Search(ctx, req)
//	if err != nil { ... }
//	defer st.Close()
//	for st.Next() {
//		use(st.Record())
//	}
//	if err := st.Err(); err != nil { ... }
type Stream struct {
	src  recordSource
	cur  record.Record
	err  error
	done bool
}

// Next advances to the next record. It returns false at end of stream
// or on the first error; Err tells which.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	rec, ok, err := s.src.next()
	if err != nil {
		s.err = err
		s.done = true
		return false
	}
	if !ok {
		s.done = true
		return false
	}
	s.cur = rec
	metrics.RecordsTotal.WithLabelValues("fetched").Inc()
	return true
}

// Record returns the record Next advanced to.
func (s *Stream) Record() record.Record { return s.cur }

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// Close releases the underlying connection. Safe at any point; a
// partially consumed stream is never written to the cache.
func (s *Stream) Close() error {
	s.done = true
	return s.src.close()
}

// Collect drains the stream into a slice and closes it.
func (s *Stream) Collect() ([]record.Record, error) {
	defer s.Close()
	var out []record.Record
	for s.Next() {
		out = append(out, s.Record())
	}
	return out, s.Err()
}

// pageSource walks /search pages in order, stopping at the first empty
// page, the page budget, or the free-key page limit.
type pageSource struct {
	c     *Client
	ctx   context.Context
	scope string
	query string
	pages int

	page    int
	buf     []record.Record
	stopped bool
}

func (s *pageSource) next() (record.Record, bool, error) {
	for {
		if len(s.buf) > 0 {
			r := s.buf[0]
			s.buf = s.buf[1:]
			return r, true, nil
		}
		if s.stopped || s.page >= s.pages {
			return record.Record{}, false, nil
		}
		recs, err := s.c.searchPage(s.ctx, s.scope, s.query, s.page)
		if err != nil {
			if errors.Is(err, errPageLimit) {
				s.c.log.Warnf("page limit hit at page %d, stopping early", s.page)
				s.stopped = true
				return record.Record{}, false, nil
			}
			return record.Record{}, false, err
		}
		s.page++
		if len(recs) == 0 {
			s.stopped = true
			return record.Record{}, false, nil
		}
		s.buf = recs
	}
}

func (s *pageSource) close() error { return nil }
