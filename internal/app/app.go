package app

import (
	"context"
	"fmt"
	"log"

	"github.com/discord2vrc/discord2vrc/cache"
	"github.com/discord2vrc/discord2vrc/config"
	"github.com/discord2vrc/discord2vrc/database"
	"github.com/discord2vrc/discord2vrc/database/repo/channels"
	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"github.com/discord2vrc/discord2vrc/internal/capture"
	"github.com/discord2vrc/discord2vrc/internal/chat"
	"github.com/discord2vrc/discord2vrc/internal/image"
	"github.com/discord2vrc/discord2vrc/internal/query"
	"github.com/discord2vrc/discord2vrc/internal/registry"
	"github.com/discord2vrc/discord2vrc/storage"
	"github.com/discord2vrc/discord2vrc/utils"
)

// Container 依赖注入容器 - 管理所有服务的生命周期
type Container struct {
	config          *config.Config
	databaseFactory *database.Factory
	cache           cache.Provider
	storage         storage.Provider
	transcoder      image.Transcoder
	registry        *registry.Registry
	query           *query.Service

	ChannelsRepo *channels.Repository
	ImagesRepo   *images.Repository
}

// NewContainer 创建新的依赖注入容器
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config: cfg,
	}
}

// Init 初始化数据库、缓存、存储与注册表
func (c *Container) Init(ctx context.Context) error {
	if err := c.InitDatabase(); err != nil {
		return err
	}
	if err := c.InitServices(ctx); err != nil {
		return err
	}
	return nil
}

// InitDatabase 连接数据库并执行迁移
func (c *Container) InitDatabase() error {
	utils.LogIfDev("Initializing DI container...")

	factory, err := database.NewFactory(c.config)
	if err != nil {
		return fmt.Errorf("failed to initialize database factory: %w", err)
	}
	c.databaseFactory = factory

	if err := factory.AutoMigrate(); err != nil {
		return err
	}

	provider := factory.GetProvider()
	c.ChannelsRepo = channels.NewRepository(provider)
	c.ImagesRepo = images.NewRepository(provider)
	utils.LogIfDev("Repositories initialized")
	return nil
}

// InitServices 初始化缓存、存储与查询服务，需在 InitDatabase 之后调用
func (c *Container) InitServices(ctx context.Context) error {
	if c.databaseFactory == nil {
		return fmt.Errorf("database not initialized")
	}

	cacheProvider, err := cache.NewProvider(c.config)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	c.cache = cacheProvider

	storageProvider, err := storage.NewProvider(c.config)
	if err != nil {
		return err
	}
	c.storage = storageProvider

	c.registry = registry.New(c.ChannelsRepo)
	if err := c.registry.Reload(ctx); err != nil {
		return err
	}
	log.Printf("[Container] Channel registry loaded, %d channels", len(c.registry.Channels()))

	c.query = query.NewService(c.ImagesRepo, c.registry,
		query.WithCache(c.cache, c.config.CacheImageTTL),
		query.WithMinInterval(c.config.RandomMinInterval),
	)

	utils.LogIfDev("DI container initialized successfully")
	return nil
}

// Pipeline 创建绑定到指定聊天传输层的采集流程
func (c *Container) Pipeline(transport chat.Transport, opts ...capture.Option) (*capture.Pipeline, error) {
	if c.transcoder == nil {
		t, err := image.NewTranscoder(c.config.ImageEncoder)
		if err != nil {
			return nil, err
		}
		c.transcoder = t
		log.Printf("[Container] Image transcoder '%s' initialized", t.Name())
	}

	opts = append([]capture.Option{
		capture.WithCache(c.cache),
		capture.WithFeedback(capture.NewReactionFeedback(transport)),
	}, opts...)
	return capture.NewPipeline(c.registry, c.ImagesRepo, transport, c.transcoder, c.storage, c.config.StorageUploadsFolder, opts...), nil
}

// GetConfig 获取配置
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetDatabaseProvider 获取数据库提供者
func (c *Container) GetDatabaseProvider() database.Provider {
	if c.databaseFactory == nil {
		return nil
	}
	return c.databaseFactory.GetProvider()
}

// GetCache 获取缓存提供者
func (c *Container) GetCache() cache.Provider {
	return c.cache
}

// GetStorage 获取存储提供者
func (c *Container) GetStorage() storage.Provider {
	return c.storage
}

// GetRegistry 获取频道注册表
func (c *Container) GetRegistry() *registry.Registry {
	return c.registry
}

// GetQuery 获取查询服务
func (c *Container) GetQuery() *query.Service {
	return c.query
}

// Close 关闭所有服务
func (c *Container) Close() error {
	utils.LogIfDev("Closing DI container...")

	if c.transcoder != nil {
		c.transcoder.Close()
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			utils.LogIfDevf("Error closing cache: %v", err)
		}
	}
	if c.databaseFactory != nil {
		if err := c.databaseFactory.Close(); err != nil {
			utils.LogIfDevf("Error closing database factory: %v", err)
		}
	}

	utils.LogIfDev("DI container closed")
	return nil
}
