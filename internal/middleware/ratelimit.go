// internal/middleware/ratelimit.go
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/unclebandit/revive-backend/internal/handler"
)

const window = time.Minute

// Counter decides whether one more request fits in key's budget for the current window.
type Counter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// RedisCounter is a fixed one-minute window shared by every API instance.
type RedisCounter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb, now: time.Now}
}

func (c *RedisCounter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, c.now().Unix()/int64(window.Seconds()))

	n, err := c.rdb.Incr(ctx, bucket).Result()
	if err != nil {
		return false, fmt.Errorf("RedisCounter - Allow - Incr: %w", err)
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, bucket, window).Err(); err != nil {
			return false, fmt.Errorf("RedisCounter - Allow - Expire: %w", err)
		}
	}
	return n <= int64(limit), nil
}

// LocalCounter is a per-process token bucket refilled at limit per minute.
// Limiters idle for a whole window are dropped; by then their bucket is full,
// so a new limiter behaves the same.
type LocalCounter struct {
	mu        sync.Mutex
	limiters  map[string]*localLimiter
	lastSweep time.Time
	now       func() time.Time
}

type localLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalCounter() *LocalCounter {
	return &LocalCounter{limiters: map[string]*localLimiter{}, now: time.Now}
}

func (c *LocalCounter) Allow(_ context.Context, key string, limit int) (bool, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) >= window {
		c.evictIdle(now)
	}

	l, ok := c.limiters[key]
	if !ok {
		l = &localLimiter{limiter: rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)}
		c.limiters[key] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1), nil
}

func (c *LocalCounter) evictIdle(now time.Time) {
	for key, l := range c.limiters {
		if now.Sub(l.lastSeen) >= window {
			delete(c.limiters, key)
		}
	}
	c.lastSweep = now
}

type Limits struct {
	IPPerMinute      int
	WebhookPerMinute int
}

// RateLimit applies one global budget to /webhooks and a per-client-IP budget
// to everything else. Counter failures let the request through.
func RateLimit(counter Counter, limits Limits, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, limit := "ip:"+clientIP(r), limits.IPPerMinute
			if strings.HasPrefix(r.URL.Path, "/webhooks") {
				key, limit = "webhooks", limits.WebhookPerMinute
			}
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := counter.Allow(r.Context(), key, limit)
			if err != nil {
				log.Warn("rate limiter unavailable", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "60")
				handler.WriteMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
