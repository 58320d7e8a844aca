// Package ratelimit throttles expensive endpoints per client address with a
// token bucket.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	dErrors "zkgate/pkg/domain-errors"
	"zkgate/pkg/platform/httputil"
	"zkgate/pkg/platform/sync"
	"zkgate/pkg/requestcontext"
)

// Config describes one bucket per client.
type Config struct {
	PerMinute int
	Burst     int
	// IdleTTL is how long an unused client bucket is kept.
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64
}

// Limiter holds per-client buckets.
type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	clients *sync.ShardedMap[*clientLimiter]
	now     func() time.Time
	logger  *slog.Logger
	shared  Window
}

// Window counts requests per client across replicas.
type Window interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger for rejected requests.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithShared adds a window consulted after the local bucket admits a
// request. If the window errors the request is admitted on the local
// decision alone.
func WithShared(w Window) Option {
	return func(l *Limiter) {
		l.shared = w
	}
}

// New creates a Limiter. A non-positive rate disables limiting.
func New(cfg Config, opts ...Option) *Limiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	l := &Limiter{
		limit:   rate.Limit(float64(cfg.PerMinute) / 60.0),
		burst:   burst,
		idleTTL: idle,
		clients: sync.NewShardedMap[*clientLimiter](),
		now:     time.Now,
		logger:  slog.Default(),
	}
	if cfg.PerMinute <= 0 {
		l.limit = rate.Inf
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Middleware rejects requests over the client's budget with 429 and a
// Retry-After header.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		client := requestcontext.ClientIP(ctx)
		if !l.allow(ctx, client) {
			l.logger.WarnContext(ctx, "rate limit exceeded",
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Clients returns the number of tracked client buckets.
func (l *Limiter) Clients() int {
	return l.clients.Len()
}

// Start evicts idle buckets until ctx is cancelled.
func (l *Limiter) Start(ctx context.Context) error {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.EvictIdle()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// EvictIdle removes buckets unused for longer than the idle TTL.
func (l *Limiter) EvictIdle() int {
	cutoff := l.now().Add(-l.idleTTL).UnixNano()
	return l.clients.DeleteFunc(func(_ string, c *clientLimiter) bool {
		return c.lastAccess.Load() < cutoff
	})
}

func (l *Limiter) allow(ctx context.Context, client string) bool {
	if l.limit == rate.Inf {
		return true
	}
	fresh := &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
	c, _ := l.clients.LoadOrStore(client, fresh)
	now := l.now()
	c.lastAccess.Store(now.UnixNano())
	if !c.limiter.AllowN(now, 1) {
		return false
	}
	if l.shared == nil {
		return true
	}
	ok, err := l.shared.Allow(ctx, client)
	if err != nil {
		l.logger.WarnContext(ctx, "shared rate limit unavailable", "error", err)
		return true
	}
	return ok
}

// retryAfterSeconds estimates the time until one token is refilled.
func (l *Limiter) retryAfterSeconds() int {
	secs := int(math.Ceil(1.0 / float64(l.limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}
