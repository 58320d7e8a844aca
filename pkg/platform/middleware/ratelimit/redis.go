package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a fixed-window counter in Redis, shared by every replica
// pointing at the same instance.
type RedisWindow struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisWindow admits up to limit requests per key in each window.
func NewRedisWindow(client redis.Cmdable, limit int, window time.Duration) *RedisWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisWindow{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "zkgate:ratelimit",
		now:    time.Now,
	}
}

// Allow increments the counter for key in the current window.
func (w *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	slot := w.now().UnixNano() / int64(w.window)
	k := w.prefix + ":" + key + ":" + strconv.FormatInt(slot, 10)

	pipe := w.client.TxPipeline()
	count := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, w.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() <= w.limit, nil
}
