package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"civic-api/internal/iplocate"
	"civic-api/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const DeviceHeader = "X-Device-ID"

// DeviceLimiter caps submissions per device (or client IP when no device id
// is sent) in a rolling window using Redis INCR with a TTL set on first hit.
type DeviceLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	window time.Duration
	l      *slog.Logger
}

func NewDeviceLimiter(rdb *redis.Client, limit int, window time.Duration, l *slog.Logger) *DeviceLimiter {
	return &DeviceLimiter{rdb: rdb, prefix: "civic:submit", limit: int64(limit), window: window, l: l}
}

func (d *DeviceLimiter) key(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(DeviceHeader))
	if id == "" {
		id = "ip:" + iplocate.ClientIP(c.Request)
	}
	return d.prefix + ":" + id
}

// Hit counts one request and reports whether it is within the limit plus the
// remaining TTL of the window.
func (d *DeviceLimiter) Hit(ctx context.Context, key string) (bool, time.Duration, error) {
	n, err := d.rdb.Incr(ctx, key).Result()
	if err != nil {
		return true, 0, err
	}
	if n == 1 {
		if err := d.rdb.Expire(ctx, key, d.window).Err(); err != nil {
			return true, 0, err
		}
	}
	if n <= d.limit {
		return true, 0, nil
	}
	ttl, _ := d.rdb.TTL(ctx, key).Result()
	return false, ttl, nil
}

// Handler fails open when Redis is missing or erroring.
func (d *DeviceLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if d == nil || d.rdb == nil || d.limit <= 0 {
			c.Next()
			return
		}
		ok, retry, err := d.Hit(c.Request.Context(), d.key(c))
		if err != nil {
			d.l.Warn("device_limit_redis_error", "err", err)
			c.Next()
			return
		}
		if !ok {
			metrics.RateLimitedTotal.WithLabelValues("device").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retry.Seconds(),
			})
			return
		}
		c.Next()
	}
}
