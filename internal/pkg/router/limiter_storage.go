package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/SatsFox/internal/pkg/cache"
	"github.com/ManuelReschke/SatsFox/internal/pkg/env"
)

// NewLimiterStorage returns a Redis-backed fiber.Storage for rate limit
// counters so limits hold across replicas. It uses the cache server on a
// separate database.
func NewLimiterStorage() fiber.Storage {
	opts := cache.Options()
	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	log.Infof("[Router] Rate limiter storage on redis %s:%d", host, port)
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: env.GetInt("LIMITER_CACHE_DB", 2),
		Reset:    false,
	})
}
