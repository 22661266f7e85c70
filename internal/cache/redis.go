package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leakctl/leakctl/internal/logging"
)

const (
	redisPrefix = "leakctl:cache:"
	redisTTLKey = "leakctl:cache:ttl"
)

// RedisStore holds entries in redis for deployments where several
// operators share one cache. Entry lifetime rides on redis key expiry,
// so there is nothing to prune at open time.
type RedisStore struct {
	cli  *redis.Client
	addr string
	log  *logging.Logger
}

// NewRedisStore connects and pings addr.
func NewRedisStore(addr string, log *logging.Logger) (*RedisStore, error) {
	if log == nil {
		log = logging.Nop()
	}
	cli := redis.NewClient(&redis.Options{Addr: addr})
	if err := cli.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis %s: %w", addr, err)
	}
	return &RedisStore{cli: cli, addr: addr, log: log}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.cli.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: redis get: %w", err)
	}
	var fe fileEntry
	if err := json.Unmarshal(raw, &fe); err != nil {
		return Entry{}, false, fmt.Errorf("cache: redis entry decode: %w", err)
	}
	e := Entry{Payload: fe.Payload, StoredAt: fe.StoredAt, TTL: time.Duration(fe.TTLSec) * time.Second}
	return e, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, e Entry) error {
	raw, err := json.Marshal(fileEntry{Payload: e.Payload, StoredAt: e.StoredAt, TTLSec: int64(e.TTL / time.Second)})
	if err != nil {
		return fmt.Errorf("cache: redis entry encode: %w", err)
	}
	if err := s.cli.Set(ctx, redisPrefix+key, raw, e.TTL).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.cli.Del(ctx, redisPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache: redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.cli.Keys(ctx, redisPrefix+"*").Result()
	if err != nil {
		return fmt.Errorf("cache: redis keys: %w", err)
	}
	keep := keys[:0]
	for _, k := range keys {
		if k != redisTTLKey {
			keep = append(keep, k)
		}
	}
	if len(keep) == 0 {
		return nil
	}
	if err := s.cli.Del(ctx, keep...).Err(); err != nil {
		return fmt.Errorf("cache: redis clear: %w", err)
	}
	return nil
}

func (s *RedisStore) Stats(ctx context.Context, now time.Time) (StoreStats, error) {
	keys, err := s.cli.Keys(ctx, redisPrefix+"*").Result()
	if err != nil {
		return StoreStats{}, fmt.Errorf("cache: redis keys: %w", err)
	}
	st := StoreStats{Location: "redis://" + s.addr}
	var oldest, newest time.Time
	for _, k := range keys {
		if k == redisTTLKey {
			continue
		}
		raw, err := s.cli.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return StoreStats{}, fmt.Errorf("cache: redis get: %w", err)
		}
		var fe fileEntry
		if err := json.Unmarshal(raw, &fe); err != nil {
			continue
		}
		st.Entries++
		st.Bytes += int64(len(raw))
		e := Entry{StoredAt: fe.StoredAt, TTL: time.Duration(fe.TTLSec) * time.Second}
		if !e.Expired(now) {
			st.Active++
		}
		if oldest.IsZero() || fe.StoredAt.Before(oldest) {
			oldest = fe.StoredAt
		}
		if newest.IsZero() || fe.StoredAt.After(newest) {
			newest = fe.StoredAt
		}
	}
	if !oldest.IsZero() {
		st.OldestAge = now.Sub(oldest)
		st.NewestAge = now.Sub(newest)
	}
	return st, nil
}

func (s *RedisStore) TTL(ctx context.Context) (time.Duration, bool, error) {
	raw, err := s.cli.Get(ctx, redisTTLKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache: redis ttl get: %w", err)
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sec <= 0 {
		return 0, false, nil
	}
	return time.Duration(sec) * time.Second, true, nil
}

func (s *RedisStore) SetTTL(ctx context.Context, ttl time.Duration) error {
	if err := s.cli.Set(ctx, redisTTLKey, strconv.FormatInt(int64(ttl/time.Second), 10), 0).Err(); err != nil {
		return fmt.Errorf("cache: redis ttl set: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.cli.Close() }
