package cache

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func newFileCache(t *testing.T, path string) *Cache {
	t.Helper()
	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return New(context.Background(), store, nil)
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("/search", url.Values{"q": {"ssl"}, "page": {"0"}, "scope": {"leak"}})
	b := Fingerprint("/search", url.Values{"scope": {"leak"}, "page": {"0"}, "q": {"ssl"}})
	if a != b {
		t.Error("same request, different fingerprints")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintDistinct(t *testing.T) {
	base := url.Values{"q": {"ssl"}, "page": {"0"}, "scope": {"leak"}}
	fp := Fingerprint("/search", base)
	variants := []struct {
		name     string
		endpoint string
		params   url.Values
	}{
		{"page", "/search", url.Values{"q": {"ssl"}, "page": {"1"}, "scope": {"leak"}}},
		{"scope", "/search", url.Values{"q": {"ssl"}, "page": {"0"}, "scope": {"service"}}},
		{"query", "/search", url.Values{"q": {"tls"}, "page": {"0"}, "scope": {"leak"}}},
		{"endpoint", "/bulk/search", base},
	}
	for _, v := range variants {
		if Fingerprint(v.endpoint, v.params) == fp {
			t.Errorf("%s variant collided", v.name)
		}
	}
}

func TestFingerprintNoCollisions(t *testing.T) {
	queries := []string{"ssl", "tls", `+country:"France"`, "plugin:GitConfigHttpPlugin", ""}
	scopes := []string{"leak", "service"}
	seen := make(map[string]string)
	for _, q := range queries {
		for _, scope := range scopes {
			for page := 0; page < 20; page++ {
				params := url.Values{"q": {q}, "scope": {scope}, "page": {strconv.Itoa(page)}}
				fp := Fingerprint("/search", params)
				if prev, dup := seen[fp]; dup {
					t.Fatalf("collision between %q and %s", prev, params.Encode())
				}
				seen[fp] = params.Encode()
			}
		}
	}
	if len(seen) != len(queries)*len(scopes)*20 {
		t.Fatalf("expected %d distinct fingerprints, got %d", len(queries)*len(scopes)*20, len(seen))
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "api_cache.json")
	c := newFileCache(t, path)

	key := Fingerprint("/search", url.Values{"q": {"x"}})
	payload := []byte(`[{"ip":"1.2.3.4","port":443}]`)

	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("hit on empty cache")
	}
	c.Put(ctx, key, payload)
	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("miss after Put")
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}

	// No temp file left behind after the atomic rename.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file still present: %v", err)
	}

	// A second process sees the same bytes.
	c2 := newFileCache(t, path)
	got2, ok := c2.Get(ctx, key)
	if !ok || string(got2) != string(payload) {
		t.Errorf("reopened cache payload = %q ok=%v", got2, ok)
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	c := newFileCache(t, filepath.Join(t.TempDir(), "c.json"))
	if err := c.SetTTL(ctx, 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	c.Put(ctx, "k", []byte("v"))
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("fresh entry missed")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expired entry served")
	}
	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 0 {
		t.Errorf("expired entry not deleted, Entries = %d", st.Entries)
	}
}

func TestLoadPrunesExpired(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "c.json")
	c := newFileCache(t, path)
	if err := c.SetTTL(ctx, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	c.Put(ctx, "stale", []byte("v"))
	time.Sleep(50 * time.Millisecond)

	c2 := newFileCache(t, path)
	st, err := c2.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 0 {
		t.Errorf("reopen kept %d expired entries", st.Entries)
	}
}

func TestTTLPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "c.json")
	c := newFileCache(t, path)
	if got := c.TTL(); got != DefaultTTL {
		t.Errorf("initial TTL = %v, want %v", got, DefaultTTL)
	}
	if err := c.SetTTL(ctx, 10*time.Minute); err != nil {
		t.Fatal(err)
	}

	c2 := newFileCache(t, path)
	if got := c2.TTL(); got != 10*time.Minute {
		t.Errorf("reopened TTL = %v, want 10m", got)
	}
}

func TestSetTTLRejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	c := newFileCache(t, filepath.Join(t.TempDir(), "c.json"))
	for _, ttl := range []time.Duration{0, -time.Second} {
		if err := c.SetTTL(ctx, ttl); err == nil {
			t.Errorf("SetTTL(%v) accepted", ttl)
		}
	}
}

func TestCorruptStoreStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "c.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newFileCache(t, path)
	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 0 {
		t.Errorf("corrupt store reported %d entries", st.Entries)
	}
	// Still usable afterwards.
	c.Put(ctx, "k", []byte("v"))
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("cache unusable after corrupt load")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "c.json")
	c := newFileCache(t, path)
	if err := c.SetTTL(ctx, 7*time.Minute); err != nil {
		t.Fatal(err)
	}
	c.Put(ctx, "a", []byte("1"))
	c.Put(ctx, "b", []byte("2"))

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("entry survived Clear")
	}
	if st, err := c.Stats(ctx); err != nil {
		t.Fatalf("Stats after Clear: %v", err)
	} else if st.Entries != 0 || st.Active != 0 {
		t.Errorf("Stats after Clear = %d/%d, want 0/0", st.Entries, st.Active)
	}

	// TTL setting survives a clear and a reopen.
	c2 := newFileCache(t, path)
	if got := c2.TTL(); got != 7*time.Minute {
		t.Errorf("TTL after Clear+reopen = %v, want 7m", got)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "c.json")
	c := newFileCache(t, path)
	c.Put(ctx, "a", []byte("payload-a"))
	c.Put(ctx, "b", []byte("payload-b"))

	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 2 || st.Active != 2 {
		t.Errorf("Entries/Active = %d/%d, want 2/2", st.Entries, st.Active)
	}
	if st.TTL != DefaultTTL {
		t.Errorf("TTL = %v", st.TTL)
	}
	if st.Bytes <= 0 {
		t.Errorf("Bytes = %d", st.Bytes)
	}
	if st.Location != path {
		t.Errorf("Location = %q", st.Location)
	}
	if st.OldestAge < 0 || st.NewestAge > st.OldestAge {
		t.Errorf("ages oldest=%v newest=%v", st.OldestAge, st.NewestAge)
	}
}
