package cache

import (
	"fmt"
	"log"

	"github.com/discord2vrc/discord2vrc/config"
)

// NewProvider 根据配置创建缓存提供者
func NewProvider(cfg *config.Config) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	switch cfg.CacheType {
	case "", "memory":
		provider, err = NewMemory(DefaultMemoryConfig())
	case "redis":
		provider, err = NewRedis(RedisConfig{
			Addr:     cfg.CacheRedisAddr,
			Password: cfg.CacheRedisPassword,
			DB:       cfg.CacheRedisDB,
		})
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.CacheType)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[Cache] Provider '%s' initialized successfully", provider.Name())
	return provider, nil
}
