package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/discord2vrc/discord2vrc/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(router *gin.Engine, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestIPRateLimiter 测试按 IP 限流
func TestIPRateLimiter(t *testing.T) {
	rl := NewIPRateLimiter(0.001, 2, time.Minute)
	defer rl.StopCleanup()

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	a := map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}
	b := map[string]string{"X-Real-IP": "10.0.0.9"}

	assert.Equal(t, http.StatusOK, serve(router, "/x", a).Code)
	assert.Equal(t, http.StatusOK, serve(router, "/x", a).Code)
	w := serve(router, "/x", a)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many requests")

	// 其他客户端不受影响
	assert.Equal(t, http.StatusOK, serve(router, "/x", b).Code)

	rl.evictBefore(time.Now().Add(time.Second))
	assert.Equal(t, http.StatusOK, serve(router, "/x", a).Code)

	// 重复停止不会 panic
	rl.StopCleanup()
}

// TestIPRateLimiterDisabled 测试 rps 为 0 时不限流
func TestIPRateLimiterDisabled(t *testing.T) {
	rl := NewIPRateLimiter(0, 1, time.Minute)
	defer rl.StopCleanup()

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(router, "/x", nil).Code)
	}
}

// TestConcurrencyLimiter 测试并发上限
func TestConcurrencyLimiter(t *testing.T) {
	cl := NewConcurrencyLimiter(1)
	entered := make(chan struct{})
	release := make(chan struct{})

	router := gin.New()
	router.Use(cl.Middleware())
	router.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.Status(http.StatusOK)
	})
	router.GET("/fast", func(c *gin.Context) { c.Status(http.StatusOK) })

	done := make(chan int)
	go func() { done <- serve(router, "/slow", nil).Code }()
	<-entered

	assert.Equal(t, http.StatusServiceUnavailable, serve(router, "/fast", nil).Code)
	close(release)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, http.StatusOK, serve(router, "/fast", nil).Code)
}

// TestRequestID 测试请求 ID 的透传与生成
func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestIDKey))
	})

	w := serve(router, "/x", map[string]string{RequestIDHeader: "abc"})
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc", w.Body.String())

	w = serve(router, "/x", nil)
	generated := w.Header().Get(RequestIDHeader)
	require.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())
}

// TestMetrics 测试请求耗时按路由模板记录
func TestMetrics(t *testing.T) {
	router := gin.New()
	router.Use(Metrics())
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.CollectAndCount(metrics.HTTPRequestDuration)
	serve(router, "/items/1", nil)
	serve(router, "/items/2", nil)
	serve(router, "/missing", nil)

	// 两个请求共享同一组标签，未匹配的请求单独一组
	assert.Equal(t, before+2, testutil.CollectAndCount(metrics.HTTPRequestDuration))
}
