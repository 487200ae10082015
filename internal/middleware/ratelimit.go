package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const rateLimitKeyPrefix = "ridepool:ratelimit:"

// RateLimiter is a fixed-window request counter kept in Redis.
// Requests are let through when Redis is unavailable.
type RateLimiter struct {
	incr   func(ctx context.Context, key string, window time.Duration) (int64, error)
	limit  int64
	window time.Duration
}

// NewRateLimiter allows limit requests per caller per window
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &RateLimiter{
		incr: func(ctx context.Context, key string, window time.Duration) (int64, error) {
			pipe := client.TxPipeline()
			count := pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, window)
			if _, err := pipe.Exec(ctx); err != nil {
				return 0, err
			}
			return count.Val(), nil
		},
		limit:  int64(limit),
		window: window,
	}
}

// Middleware counts the request against the caller, or the client IP for
// anonymous requests, and answers 429 once the window's budget is spent
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := GetUserID(r.Context())
		if caller == "" {
			caller = "ip:" + clientHost(r.RemoteAddr)
		}
		bucket := time.Now().Unix() / int64(l.window.Seconds())
		key := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, caller, bucket)

		count, err := l.incr(r.Context(), key, l.window)
		if err != nil {
			log.Warn().Err(err).Str("user_id", caller).Msg("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		remaining := l.limit - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > l.limit {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			respondError(w, "Too many requests, please try again later.", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientHost strips the port so every connection from one client shares a
// bucket. Addresses already rewritten by RealIP carry no port.
func clientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
