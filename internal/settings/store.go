// Package settings persists small key/value flags (such as whether the image
// cache is enabled) outside the blob directory so they survive cache clears.
package settings

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tvshelf/imgcache/internal/config"
)

// Store 是最小化的键值存储，值统一为字符串。
type Store interface {
	// Get 返回 key 的值；ok=false 表示未设置。
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// New 根据配置选择 file 或 redis 后端。
func New(cfg config.SettingsConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.SettingsBackendFile:
		return NewFileStore(cfg.FilePath)
	case config.SettingsBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisStore(client, cfg.RedisNamespace), nil
	default:
		return nil, fmt.Errorf("unsupported settings backend: %s", cfg.Backend)
	}
}
