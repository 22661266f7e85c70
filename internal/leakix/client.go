// Package leakix implements the LeakIX API client: paged and bulk
// search, host, domain and subdomain lookups, and plugin listing.
// Payloads are cached by request fingerprint, live requests are paced
// and retried the way the API expects.
package leakix

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/leakctl/leakctl/internal/cache"
	"github.com/leakctl/leakctl/internal/httpclient"
	"github.com/leakctl/leakctl/internal/logging"
	"github.com/leakctl/leakctl/internal/metrics"
)

// Version is reported in the User-Agent header and by the CLI.
const Version = "1.4.0"

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://leakix.net"

const (
	// Free keys tolerate roughly one search page every 1.2s.
	defaultRequestsPerSecond = 0.8
	// Applied when a 429 answer does not say how long to wait.
	defaultLimitedFor      = 60 * time.Second
	defaultRetryMaxElapsed = 30 * time.Second
	apiKeyLength           = 48
	maxErrorBody           = 512
)

// Config configures a Client. Only APIKey is required; zero values
// take the documented defaults.
type Config struct {
	// APIKey authenticates every request.
	APIKey string

	// BaseURL points at the API root. Defaults to DefaultBaseURL.
	BaseURL string

	// HTTPClient performs the requests. Defaults to a tuned client
	// without a global timeout so bulk exports can stream; bound
	// request lifetime through the context instead.
	HTTPClient *http.Client

	// Cache stores payloads between runs. Nil disables caching.
	Cache *cache.Cache

	// Logger receives warnings and debug output. Nil discards.
	Logger *logging.Logger

	// UserAgent overrides the default leakctl/<Version>.
	UserAgent string

	// RequestsPerSecond paces live search pages. Defaults to 0.8.
	RequestsPerSecond float64

	// RetryMaxElapsed bounds retries of transient failures on one
	// request. Defaults to 30s.
	RetryMaxElapsed time.Duration
}

// Client talks to one LeakIX instance. Safe for concurrent use.
type Client struct {
	key        string
	base       string
	hc         *http.Client
	cache      *cache.Cache
	log        *logging.Logger
	ua         string
	lim        *rate.Limiter
	maxElapsed time.Duration

	// Host and domain lookups are memoized per process on top of the
	// shared cache; batch runs revisit the same targets.
	lookups *expirable.LRU[string, []byte]

	proOnce sync.Once
	pro     bool

	// swapped out by tests so 429 waits do not stall them
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	if len(key) != apiKeyLength {
		log.Warnf("api key is %d characters, expected %d", len(key), apiKeyLength)
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpclient.Default()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "leakctl/" + Version
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	maxElapsed := cfg.RetryMaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = defaultRetryMaxElapsed
	}
	return &Client{
		key:        key,
		base:       base,
		hc:         hc,
		cache:      cfg.Cache,
		log:        log,
		ua:         ua,
		lim:        rate.NewLimiter(rate.Limit(rps), 1),
		maxElapsed: maxElapsed,
		lookups:    expirable.NewLRU[string, []byte](1024, nil, 15*time.Minute),
		sleep:      sleepContext,
	}, nil
}

// Cache exposes the response cache, nil when caching is disabled.
func (c *Client) Cache() *cache.Cache { return c.cache }

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do issues one GET with auth headers. The caller owns the body.
func (c *Client) do(ctx context.Context, endpoint string, params url.Values, accept bool) (*http.Response, error) {
	u := c.base + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", c.key)
	req.Header.Set("User-Agent", c.ua)
	if accept {
		req.Header.Set("Accept", "application/json")
	}
	return c.hc.Do(req)
}

// fetchJSON answers endpoint+params from the cache when it can, and
// otherwise fetches live: limiter wait (paced requests only), backoff
// on transient failures, 429 honored by sleeping out the advertised
// window and reissuing. Reports whether the payload came from cache.
func (c *Client) fetchJSON(ctx context.Context, endpoint string, params url.Values, paced bool) ([]byte, bool, error) {
	fp := cache.Fingerprint(endpoint, params)
	if c.cache != nil {
		if b, ok := c.cache.Get(ctx, fp); ok {
			metrics.CacheTotal.WithLabelValues("hit").Inc()
			return b, true, nil
		}
		metrics.CacheTotal.WithLabelValues("miss").Inc()
	}
	for {
		if paced {
			if err := c.lim.Wait(ctx); err != nil {
				return nil, false, err
			}
		}
		payload, err := c.fetchOnce(ctx, endpoint, params)
		if err != nil {
			var rl *rateLimitError
			if errors.As(err, &rl) {
				metrics.RateLimitWaits.Inc()
				c.log.Warnf("rate limited on %s, waiting %s", endpoint, rl.Wait)
				if serr := c.sleep(ctx, rl.Wait); serr != nil {
					return nil, false, serr
				}
				continue
			}
			return nil, false, err
		}
		if c.cache != nil {
			c.cache.Put(ctx, fp, payload)
		}
		return payload, false, nil
	}
}

// fetchOnce runs one request with backoff on transport errors and 5xx.
func (c *Client) fetchOnce(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	var payload []byte
	op := func() error {
		resp, err := c.do(ctx, endpoint, params, true)
		if err != nil {
			return err
		}
		defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()
		if err := checkStatus(resp, endpoint); err != nil {
			return err
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		payload = b
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return payload, nil
}

// checkStatus classifies an answer: 2xx passes, 5xx retries, 429
// aborts the backoff loop so the caller can honor the advertised wait,
// everything else is permanent.
func checkStatus(resp *http.Response, endpoint string) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == 429:
		return backoff.Permanent(&rateLimitError{Wait: limitedFor(resp.Header)})
	case resp.StatusCode >= 500:
		return apiError(resp, endpoint)
	default:
		return backoff.Permanent(apiError(resp, endpoint))
	}
}

// limitedFor reads the x-limited-for answer header, in seconds.
func limitedFor(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("x-limited-for"))
	if v == "" {
		return defaultLimitedFor
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultLimitedFor
	}
	return time.Duration(n) * time.Second
}

func apiError(resp *http.Response, endpoint string) *APIError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Endpoint:   endpoint,
		Body:       strings.TrimSpace(string(b)),
	}
}
