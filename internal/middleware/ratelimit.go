package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig is a fixed window: RequestsPerWindow requests per client per Window
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	KeyPrefix         string
}

type rateDecision struct {
	allowed   bool
	remaining int
	reset     time.Duration
}

type rateLimiter struct {
	client *redis.Client
	config RateLimitConfig
}

// take counts one request for client and reports whether it fits in the current window
func (l *rateLimiter) take(ctx context.Context, client string) (rateDecision, error) {
	key := fmt.Sprintf("%s:%s", l.config.KeyPrefix, client)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return rateDecision{}, err
	}

	// a counter without expiry opens a new window, including one whose EXPIRE was lost
	reset := ttl.Val()
	if reset < 0 {
		if err := l.client.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return rateDecision{}, err
		}
		reset = l.config.Window
	}

	count := int(incr.Val())
	return rateDecision{
		allowed:   count <= l.config.RequestsPerWindow,
		remaining: max(l.config.RequestsPerWindow-count, 0),
		reset:     reset,
	}, nil
}

// RateLimitMiddleware limits requests per client with a Redis counter.
// When Redis is unavailable requests are let through.
func RateLimitMiddleware(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	limiter := &rateLimiter{client: redisClient, config: config}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := rateLimitClient(r)

			decision, err := limiter.take(r.Context(), client)
			if err != nil {
				logger.Error("Rate limiter unavailable, allowing request",
					zap.Error(err),
					zap.String("client", client),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(decision.reset).Unix(), 10))

			if !decision.allowed {
				logger.Warn("Rate limit exceeded",
					zap.String("client", client),
					zap.String("path", r.URL.Path),
					zap.Int("limit", config.RequestsPerWindow),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.reset.Seconds()))))
				RespondWithError(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitClient is the authenticated user when there is one, the remote IP otherwise.
// RemoteAddr has already been rewritten by chi's RealIP.
func rateLimitClient(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
