package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateCounter is the subset of *redis.Client used for fixed-window counting.
type RateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client RateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// RateLimitMiddleware allows limit requests per window for each user, or each client IP
// when authentication is disabled. A nil counter or a non-positive limit disables it.
// Counter errors let the request through.
func RateLimitMiddleware(counter RateCounter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	if window < time.Second {
		window = time.Minute
	}
	return func(c *gin.Context) {
		if counter == nil || limit <= 0 {
			c.Next()
			return
		}

		client := UserID(c)
		if client == "" {
			client = c.ClientIP()
		}
		bucket := time.Now().Unix() / int64(window.Seconds())
		key := "ratelimit:" + scope + ":" + client + ":" + strconv.FormatInt(bucket, 10)

		count, err := incrWithTTL(c.Request.Context(), counter, key, window)
		if err != nil {
			LoggerFromContext(c).Warn("rate limit counter unavailable", slog.Any("error", err))
			c.Next()
			return
		}
		if count > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
