package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leakctl/leakctl/internal/logging"
)

// Redis carries suppression across runs: a record seen by yesterday's
// cron invocation stays suppressed today until the TTL lapses.
type Redis struct {
	cli        *redis.Client
	ttl        time.Duration
	log        *logging.Logger
	errorCount int
}

func NewRedis(addr string, ttl time.Duration, log *logging.Logger) (*Redis, error) {
	if log == nil {
		log = logging.Nop()
	}
	cli := redis.NewClient(&redis.Options{Addr: addr})
	if err := cli.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("dedup: redis %s: %w", addr, err)
	}
	return &Redis{cli: cli, ttl: ttl, log: log}, nil
}

func (r *Redis) Seen(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := r.cli.SetNX(ctx, "leakctl:seen:"+key, 1, r.ttl).Result()
	if err != nil {
		r.errorCount++
		if r.errorCount%100 == 1 { // avoid log spam when redis is down
			r.log.Warnw("dedup: redis error, passing record through", "count", r.errorCount, "err", err)
		}
		return false // be permissive on failure
	}
	return !ok
}

func (r *Redis) Close() error { return r.cli.Close() }
