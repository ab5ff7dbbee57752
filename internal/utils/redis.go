package utils

import (
	"os"
	"strconv"

	"civic-api/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis returns nil when addr is empty so callers can treat Redis as optional.
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// OpenRedisFromEnv reads REDIS_HOST, REDIS_PORT, REDIS_PASS and REDIS_DB.
// A bad REDIS_DB falls back to 0. With REDIS_HOST unset Redis is disabled.
func OpenRedisFromEnv() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil
	}
	addr := host + ":" + envOr("REDIS_PORT", "6379")
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, _ := strconv.Atoi(v); n >= 0 {
			db = n
		}
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return OpenRedis(addr, os.Getenv("REDIS_PASS"), db)
}
