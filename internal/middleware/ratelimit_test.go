package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketRefillsEachSecond(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tb := NewTokenBucket(2)
	tb.now = func() time.Time { return now }
	tb.lastSec = now.Unix()

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	now = now.Add(time.Second)
	assert.True(t, tb.Allow())
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tb := NewTokenBucket(1)
	frozen := time.Now()
	tb.now = func() time.Time { return frozen }
	tb.lastSec = frozen.Unix()

	r := gin.New()
	r.Use(RateLimit(tb))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestDeviceLimiterWithoutRedisPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := NewDeviceLimiter(nil, 1, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := gin.New()
	r.POST("/", d.Handler(), func(c *gin.Context) { c.Status(http.StatusCreated) })
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	}
}

// Set CIVIC_TEST_REDIS_ADDR to run against a real server.
func TestDeviceLimiterRedis(t *testing.T) {
	addr := os.Getenv("CIVIC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CIVIC_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	gin.SetMode(gin.TestMode)
	d := NewDeviceLimiter(rdb, 2, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.prefix = fmt.Sprintf("civic:test:%d", time.Now().UnixNano())
	r := gin.New()
	r.POST("/", d.Handler(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(DeviceHeader, "device-a")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{201, 201, 429}, codes)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(DeviceHeader, "device-b")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, "limits are per device")
}
