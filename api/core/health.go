package core

import (
	"context"
	"net/http"
	"time"

	"github.com/discord2vrc/discord2vrc/cache"
	"github.com/discord2vrc/discord2vrc/config"
	"github.com/discord2vrc/discord2vrc/database"
	"github.com/discord2vrc/discord2vrc/storage"
	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 5 * time.Second

// healthProbeKey 缓存探测使用的键
const healthProbeKey = "health:probe"

// HealthHandler 依赖健康检查
type HealthHandler struct {
	db      database.Provider
	cache   cache.Provider
	storage storage.Provider
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(db database.Provider, c cache.Provider, s storage.Provider) *HealthHandler {
	return &HealthHandler{db: db, cache: c, storage: s}
}

// Handle GET /health，任一依赖异常时返回 503
func (h *HealthHandler) Handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks := gin.H{
		"database": checkDatabaseHealth(ctx, h.db),
		"cache":    checkCacheHealth(ctx, h.cache),
		"storage":  checkStorageHealth(ctx, h.storage),
	}

	status := "ok"
	httpStatus := http.StatusOK
	for _, result := range checks {
		if result != "ok" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":  status,
		"uptime":  time.Since(startTime).Round(time.Second).String(),
		"version": config.Version,
		"checks":  checks,
	})
}

func checkDatabaseHealth(ctx context.Context, provider database.Provider) string {
	if provider == nil {
		return "not initialized"
	}
	if err := provider.PingContext(ctx); err != nil {
		return "unavailable: " + err.Error()
	}
	return "ok"
}

func checkCacheHealth(ctx context.Context, provider cache.Provider) string {
	if provider == nil {
		return "not initialized"
	}
	if _, err := provider.Exists(ctx, healthProbeKey); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

func checkStorageHealth(ctx context.Context, provider storage.Provider) string {
	if provider == nil {
		return "not initialized"
	}
	if err := provider.Health(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
