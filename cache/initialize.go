package cache

import (
	"os"

	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/logger"
	"go.uber.org/zap"

	"taskhub-service/config"
)

// Initialize connects the redis-backed cache that holds session entries and
// short-lived tokens. Like the database handle, the returned instance is
// created once at startup and passed down explicitly.
func Initialize(cfg config.RedisConfig) cache.Cache {
	c, err := cache.New(cache.Config{
		Type:          "redis",
		RedisAddr:     cfg.Addr,
		RedisPassword: cfg.Password,
		RedisDB:       cfg.DB,
	})
	if err != nil {
		logger.Error("Failed to initialize cache:", zap.Error(err))
		os.Exit(1)
	}
	return c
}
