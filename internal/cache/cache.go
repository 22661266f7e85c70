// Package cache persists API responses keyed by request fingerprint so
// repeated queries are answered without touching the network. Entries
// expire by TTL; the TTL setting itself is persisted alongside the
// entries. Cache failures on the fetch path degrade to cache misses,
// they never abort the request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/leakctl/leakctl/internal/logging"
)

// DefaultTTL applies until the operator changes it.
const DefaultTTL = 5 * time.Minute

// ErrInvalidTTL rejects zero or negative TTL settings.
var ErrInvalidTTL = errors.New("cache: ttl must be positive")

// Fingerprint derives the cache key for a request. url.Values.Encode
// sorts by key, so logically identical requests produce the same
// fingerprint across processes, and any difference in endpoint, page,
// scope, query or plugin filter produces a different one.
func Fingerprint(endpoint string, params url.Values) string {
	sum := sha256.Sum256([]byte(endpoint + ":" + params.Encode()))
	return hex.EncodeToString(sum[:])
}

// Entry is one stored response. TTL is stamped at Put time; later TTL
// changes do not affect entries already written.
type Entry struct {
	Payload  []byte
	StoredAt time.Time
	TTL      time.Duration
}

// Expired reports whether the entry is past its lifetime at now.
func (e Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return true
	}
	return now.Sub(e.StoredAt) > e.TTL
}

// StoreStats describes a store's current contents.
type StoreStats struct {
	Entries   int // everything held, including not-yet-pruned expired
	Active    int
	Bytes     int64
	Location  string
	OldestAge time.Duration
	NewestAge time.Duration
}

// Store is the durable backend. FileStore is the default; RedisStore
// serves shared deployments.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context, now time.Time) (StoreStats, error)
	TTL(ctx context.Context) (time.Duration, bool, error)
	SetTTL(ctx context.Context, ttl time.Duration) error
	Close() error
}

// Stats is the operator-facing view.
type Stats struct {
	Entries   int
	Active    int
	TTL       time.Duration
	Bytes     int64
	Location  string
	OldestAge time.Duration
	NewestAge time.Duration
}

// Cache layers TTL policy over a Store.
type Cache struct {
	store Store
	log   *logging.Logger

	mu  sync.RWMutex
	ttl time.Duration
}

// New wraps store. The persisted TTL setting wins over DefaultTTL when
// present. A nil log discards.
func New(ctx context.Context, store Store, log *logging.Logger) *Cache {
	if log == nil {
		log = logging.Nop()
	}
	c := &Cache{store: store, log: log, ttl: DefaultTTL}
	if ttl, ok, err := store.TTL(ctx); err != nil {
		log.Warnw("cache: reading ttl setting", "err", err)
	} else if ok {
		c.ttl = ttl
	}
	return c
}

// Get returns the cached payload for key, or ok=false. Expired entries
// are deleted on observation and reported as misses; stale data is
// never returned. Store errors degrade to a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warnw("cache: read failed, treating as miss", "key", key, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if e.Expired(time.Now()) {
		if err := c.store.Delete(ctx, key); err != nil {
			c.log.Warnw("cache: dropping expired entry", "key", key, "err", err)
		}
		return nil, false
	}
	return e.Payload, true
}

// Put stores payload under key with the current TTL. Failures are
// logged and swallowed so a broken cache never fails a fetch.
func (c *Cache) Put(ctx context.Context, key string, payload []byte) {
	e := Entry{Payload: payload, StoredAt: time.Now(), TTL: c.TTL()}
	if err := c.store.Put(ctx, key, e); err != nil {
		c.log.Warnw("cache: write failed", "key", key, "err", err)
	}
}

// TTL returns the TTL applied to new entries.
func (c *Cache) TTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttl
}

// SetTTL persists a new TTL for subsequent Puts. Existing entries keep
// the TTL they were stored with.
func (c *Cache) SetTTL(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := c.store.SetTTL(ctx, ttl); err != nil {
		return err
	}
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
	return nil
}

// Clear removes every entry. Idempotent.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Stats reports current contents and configuration.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	ss, err := c.store.Stats(ctx, time.Now())
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Entries:   ss.Entries,
		Active:    ss.Active,
		TTL:       c.TTL(),
		Bytes:     ss.Bytes,
		Location:  ss.Location,
		OldestAge: ss.OldestAge,
		NewestAge: ss.NewestAge,
	}, nil
}

// Close releases the store.
func (c *Cache) Close() error {
	return c.store.Close()
}
