package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/leakctl/leakctl/internal/logging"
)

const fileVersion = 1

// FileStore keeps the whole cache in one JSON document: the entry map
// plus the ttl_minutes setting. The map is held in memory and written
// back on every mutation via write-temp-then-rename, so readers never
// observe a torn file.
type FileStore struct {
	path string
	log  *logging.Logger

	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration // 0 means unset
}

type fileDoc struct {
	Version    int                  `json:"version"`
	TTLMinutes float64              `json:"ttl_minutes,omitempty"`
	Entries    map[string]fileEntry `json:"entries"`
}

type fileEntry struct {
	Payload  []byte    `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
	TTLSec   int64     `json:"ttl_seconds"`
}

// DefaultPath returns the per-user cache file location.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cache: resolving cache dir: %w", err)
	}
	return filepath.Join(dir, "leakctl", "api_cache.json"), nil
}

// NewFileStore opens (or creates) the store at path. Entries already
// past their TTL are pruned before the store becomes visible. An
// unreadable or corrupt file is logged and treated as empty; it is
// never an error to open a damaged cache.
func NewFileStore(path string, log *logging.Logger) (*FileStore, error) {
	if log == nil {
		log = logging.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating %s: %w", filepath.Dir(path), err)
	}
	s := &FileStore{path: path, log: log, entries: make(map[string]Entry)}
	s.load()
	return s, nil
}

func (s *FileStore) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warnw("cache: unreadable store, starting empty", "path", s.path, "err", err)
		}
		return
	}
	var doc fileDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.log.Warnw("cache: corrupt store, starting empty", "path", s.path, "err", err)
		return
	}
	if doc.TTLMinutes > 0 {
		s.ttl = time.Duration(doc.TTLMinutes * float64(time.Minute))
	}
	now := time.Now()
	pruned := 0
	for key, fe := range doc.Entries {
		e := Entry{Payload: fe.Payload, StoredAt: fe.StoredAt, TTL: time.Duration(fe.TTLSec) * time.Second}
		if e.Expired(now) {
			pruned++
			continue
		}
		s.entries[key] = e
	}
	if pruned > 0 {
		s.log.Debugw("cache: pruned expired entries", "pruned", pruned, "kept", len(s.entries))
		if err := s.save(); err != nil {
			s.log.Warnw("cache: persisting pruned store", "err", err)
		}
	}
}

// save writes the document atomically. Callers hold s.mu.
func (s *FileStore) save() error {
	doc := fileDoc{Version: fileVersion, Entries: make(map[string]fileEntry, len(s.entries))}
	if s.ttl > 0 {
		doc.TTLMinutes = s.ttl.Minutes()
	}
	for key, e := range s.entries {
		doc.Entries[key] = fileEntry{Payload: e.Payload, StoredAt: e.StoredAt, TTLSec: int64(e.TTL / time.Second)}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cache: encoding store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("cache: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: replacing %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *FileStore) Put(ctx context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return s.save()
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.save()
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	if s.ttl > 0 {
		// Keep the document so the ttl_minutes setting survives.
		return s.save()
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: removing %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Stats(ctx context.Context, now time.Time) (StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := StoreStats{Entries: len(s.entries), Location: s.path}
	var oldest, newest time.Time
	for _, e := range s.entries {
		if !e.Expired(now) {
			st.Active++
		}
		if oldest.IsZero() || e.StoredAt.Before(oldest) {
			oldest = e.StoredAt
		}
		if newest.IsZero() || e.StoredAt.After(newest) {
			newest = e.StoredAt
		}
	}
	if !oldest.IsZero() {
		st.OldestAge = now.Sub(oldest)
		st.NewestAge = now.Sub(newest)
	}
	if fi, err := os.Stat(s.path); err == nil {
		st.Bytes = fi.Size()
	}
	return st, nil
}

func (s *FileStore) TTL(ctx context.Context) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl <= 0 {
		return 0, false, nil
	}
	return s.ttl, true, nil
}

func (s *FileStore) SetTTL(ctx context.Context, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
	return s.save()
}

func (s *FileStore) Close() error { return nil }
