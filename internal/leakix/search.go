package leakix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/leakctl/leakctl/internal/metrics"
	"github.com/leakctl/leakctl/internal/record"
)

// Search scopes.
const (
	ScopeLeak    = "leak"
	ScopeService = "service"
)

// DefaultPages bounds classic pagination when the caller does not say.
const DefaultPages = 2

// probePlugin is pro-only; searching it with a free key answers an
// empty body, which is how privilege is detected.
const probePlugin = "WpUserEnumHttp"

// SearchRequest describes one search.
type SearchRequest struct {
	// Query is passed to the API verbatim.
	Query string

	// Scope selects the index, ScopeLeak or ScopeService. Empty means
	// ScopeLeak.
	Scope string

	// Pages bounds classic pagination; zero means DefaultPages. Pages
	// are fetched from 0 up and stop early at the first empty one.
	Pages int

	// Plugins narrows results to the named plugins. Unknown names are
	// rejected against the live plugin list before anything runs.
	Plugins []string

	// Bulk streams the complete result set over the export endpoint
	// instead of paging. Leak scope and a pro key only.
	Bulk bool
}

// Normalize fills defaults and rejects invalid combinations before any
// network activity.
func (r *SearchRequest) Normalize() error {
	if r.Scope == "" {
		r.Scope = ScopeLeak
	}
	if r.Scope != ScopeLeak && r.Scope != ScopeService {
		return fmt.Errorf("%w, got %q", ErrInvalidScope, r.Scope)
	}
	if r.Bulk && r.Scope != ScopeLeak {
		return ErrBulkNeedsLeakScope
	}
	if r.Pages <= 0 {
		r.Pages = DefaultPages
	}
	return nil
}

// queryWithPlugins appends the plugin filter clause.
func queryWithPlugins(query string, plugins []string) string {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	if len(names) == 0 {
		return query
	}
	return query + " +plugin:(" + strings.Join(names, " ") + ")"
}

// Search runs req and returns a stream over the matching records.
// Classic searches fetch nothing before the first Next; bulk opens the
// export connection right away. Close the stream when done with it,
// consumed or not.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*Stream, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if err := c.ValidatePlugins(ctx, req.Plugins); err != nil {
		return nil, err
	}
	q := queryWithPlugins(req.Query, req.Plugins)
	if req.Bulk {
		if c.Pro(ctx) {
			return c.bulkStream(ctx, q)
		}
		c.log.Warn("bulk export needs a pro key, falling back to paged search")
	}
	return &Stream{src: &pageSource{c: c, ctx: ctx, scope: req.Scope, query: q, pages: req.Pages}}, nil
}

// searchPage fetches one 0-indexed page and decodes its events.
func (c *Client) searchPage(ctx context.Context, scope, query string, page int) ([]record.Record, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("q", query)
	params.Set("scope", scope)
	payload, cached, err := c.fetchJSON(ctx, "/search", params, true)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, err
	}
	if !cached {
		metrics.RequestsTotal.WithLabelValues("search", "ok").Inc()
	}
	return c.decodeEvents(payload)
}

// errPageLimit ends pagination when the API refuses deeper pages.
var errPageLimit = errors.New("leakix: page limit")

// decodeEvents handles the /search answer shapes: a bare array, an
// {"events": [...]} envelope, an {"Error": ...} object, a single event
// object, or null.
func (c *Client) decodeEvents(payload []byte) ([]record.Record, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("leakix: decoding search answer: %w", err)
	}
	switch t := v.(type) {
	case []any:
		return c.wrapAll(t), nil
	case map[string]any:
		if msg, ok := t["Error"].(string); ok {
			if msg == "Page limit" {
				return nil, errPageLimit
			}
			return nil, fmt.Errorf("leakix: search answered error: %s", msg)
		}
		if evs, ok := t["events"].([]any); ok {
			return c.wrapAll(evs), nil
		}
		r, err := record.Wrap(t)
		if err != nil {
			return nil, err
		}
		return []record.Record{r}, nil
	default:
		return nil, fmt.Errorf("leakix: unexpected search answer type %T", v)
	}
}

// wrapAll turns decoded elements into records, skipping what will not
// wrap. A bad element never ends the stream.
func (c *Client) wrapAll(items []any) []record.Record {
	recs := make([]record.Record, 0, len(items))
	for _, it := range items {
		r, err := record.Wrap(it)
		if err != nil {
			c.log.Warnw("skipping malformed event", "err", err)
			metrics.RecordsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		recs = append(recs, r)
	}
	return recs
}
