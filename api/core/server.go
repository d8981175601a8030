package core

import (
	_ "embed"
	"net/http"
	"time"

	"github.com/discord2vrc/discord2vrc/api/common"
	handlerChannels "github.com/discord2vrc/discord2vrc/api/handler/channels"
	handlerImages "github.com/discord2vrc/discord2vrc/api/handler/images"
	"github.com/discord2vrc/discord2vrc/api/handler/vrc"
	"github.com/discord2vrc/discord2vrc/api/middleware"
	"github.com/discord2vrc/discord2vrc/cache"
	"github.com/discord2vrc/discord2vrc/config"
	"github.com/discord2vrc/discord2vrc/database"
	"github.com/discord2vrc/discord2vrc/internal/metrics"
	"github.com/discord2vrc/discord2vrc/internal/query"
	"github.com/discord2vrc/discord2vrc/internal/registry"
	"github.com/discord2vrc/discord2vrc/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

//go:embed landing.html
var landingHTML []byte

var startTime = time.Now()

// maxConcurrentRequests 同时处理的请求上限
const maxConcurrentRequests = 200

// ServerDependencies 服务器依赖项
type ServerDependencies struct {
	Config   *config.Config
	DB       database.Provider
	Cache    cache.Provider
	Storage  storage.Provider
	Query    *query.Service
	Registry *registry.Registry
}

// 启动gin
func setupRouter(deps *ServerDependencies) (*gin.Engine, func()) {
	cfg := deps.Config
	router := gin.New()

	// 仅在开发版本时启用 gin 日志
	if config.IsDevelopment() {
		router.Use(gin.Logger())
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router.Use(gin.Recovery())
	// 图片地址会被任意站点和客户端引用，只开放只读方法
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}))
	_ = router.SetTrustedProxies(nil)

	router.Use(middleware.NewConcurrencyLimiter(maxConcurrentRequests).Middleware())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())

	apiRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitApiRPS, cfg.RateLimitApiBurst, cfg.RateLimitExpireTime)
	imageRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitImageRPS, cfg.RateLimitImageBurst, cfg.RateLimitExpireTime)
	cleanup := func() {
		apiRateLimiter.StopCleanup()
		imageRateLimiter.StopCleanup()
	}

	health := NewHealthHandler(deps.DB, deps.Cache, deps.Storage)
	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", landingHTML)
	})
	router.GET("/health", health.Handle)
	router.GET("/version", func(c *gin.Context) {
		common.RespondSuccess(c, gin.H{
			"version": config.Version,
			"commit":  config.CommitHash,
			"uptime":  time.Since(startTime).Round(time.Second).String(),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	imageHandler := handlerImages.NewHandler(deps.Query, deps.Storage)
	vrcHandler := vrc.NewHandler(deps.Query, cfg.StoragePublicPrefix)
	channelHandler := handlerChannels.NewHandler(deps.Query, deps.Registry)

	// 公共资源
	router.GET(vrc.PlaceholderPath, imageHandler.Placeholder)
	staticGroup := router.Group(cfg.StoragePublicPrefix)
	staticGroup.Use(imageRateLimiter.Middleware())
	{
		staticGroup.GET("/*filepath", imageHandler.ServeFile) // GET /static/uploads/{attachment_id}.jpg
	}

	// VRChat 重定向接口
	vrcGroup := router.Group("/vrc")
	vrcGroup.Use(imageRateLimiter.Middleware())
	{
		all := vrcGroup.Group("/all")
		{
			all.GET("/latest", vrcHandler.Latest)         // GET /vrc/all/latest
			all.GET("/image/:index", vrcHandler.Image)    // GET /vrc/all/image/{index}?order=
			all.GET("/random", vrcHandler.Random)         // GET /vrc/all/random
			all.GET("/randomsync", vrcHandler.RandomSync) // GET /vrc/all/randomsync?interval=&offset=
		}

		channel := vrcGroup.Group("/channel/:alias")
		{
			channel.GET("/latest", vrcHandler.Latest)         // GET /vrc/channel/{alias}/latest
			channel.GET("/image/:index", vrcHandler.Image)    // GET /vrc/channel/{alias}/image/{index}?order=
			channel.GET("/random", vrcHandler.Random)         // GET /vrc/channel/{alias}/random
			channel.GET("/randomsync", vrcHandler.RandomSync) // GET /vrc/channel/{alias}/randomsync?interval=&offset=
		}
	}

	apiGroup := router.Group("/api")
	apiGroup.Use(func(c *gin.Context) { // 所有API禁止缓存
		c.Header("Cache-Control", "no-store")
		c.Next()
	})
	apiGroup.Use(apiRateLimiter.Middleware())
	{
		apiGroup.GET("/channels", channelHandler.ListChannels) // GET /api/channels

		// alias 为 all 时不限频道
		channelGroup := apiGroup.Group("/channel/:alias")
		{
			channelGroup.GET("", channelHandler.ListImages)  // GET /api/channel/{alias}?skip=&limit=&order=&deleted=
			channelGroup.GET("/count", channelHandler.Count)  // GET /api/channel/{alias}/count?deleted=
			channelGroup.GET("/info", channelHandler.Info)   // GET /api/channel/{alias}/info
		}

		apiGroup.GET("/image/:attachment_id", imageHandler.GetImage) // GET /api/image/{attachment_id}
	}

	return router, cleanup
}

// NewServer 创建 http.Server，返回的清理函数需在关闭后调用
func NewServer(deps *ServerDependencies) (*http.Server, func()) {
	cfg := deps.Config
	router, clean := setupRouter(deps)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return srv, clean
}
