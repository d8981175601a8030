// Package vrc 提供给 VRChat 客户端的重定向接口
package vrc

import (
	"errors"
	"log"
	"net/http"
	"path"
	"strconv"

	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"github.com/discord2vrc/discord2vrc/internal/query"
	"github.com/discord2vrc/discord2vrc/internal/random"
	"github.com/discord2vrc/discord2vrc/internal/registry"
	"github.com/discord2vrc/discord2vrc/utils"
	"github.com/gin-gonic/gin"
)

// PlaceholderPath 无匹配图片时的重定向目标
const PlaceholderPath = "/placeholder.png"

const defaultInterval = "5"

// Handler 重定向处理器，任何失败都重定向到占位图
type Handler struct {
	query        *query.Service
	publicPrefix string
}

// NewHandler 创建处理器，publicPrefix 为存储根目录对应的 URL 前缀
func NewHandler(q *query.Service, publicPrefix string) *Handler {
	if publicPrefix == "" {
		publicPrefix = "/"
	}
	return &Handler{query: q, publicPrefix: publicPrefix}
}

// Latest GET /vrc/all/latest, /vrc/channel/:alias/latest
func (h *Handler) Latest(c *gin.Context) {
	img, err := h.query.Latest(c.Request.Context(), c.Param("alias"))
	h.redirect(c, img, err)
}

// Image GET /vrc/all/image/:index, /vrc/channel/:alias/image/:index
func (h *Handler) Image(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		h.redirect(c, nil, nil)
		return
	}
	order, ok := images.ParseOrder(c.Query("order"))
	if !ok {
		h.redirect(c, nil, nil)
		return
	}
	img, err := h.query.Nth(c.Request.Context(), c.Param("alias"), index, order)
	h.redirect(c, img, err)
}

// Random GET /vrc/all/random, /vrc/channel/:alias/random
func (h *Handler) Random(c *gin.Context) {
	img, err := h.query.Random(c.Request.Context(), c.Param("alias"))
	h.redirect(c, img, err)
}

// RandomSync GET /vrc/all/randomsync, /vrc/channel/:alias/randomsync
func (h *Handler) RandomSync(c *gin.Context) {
	interval, err := strconv.ParseInt(c.DefaultQuery("interval", defaultInterval), 10, 64)
	if err != nil {
		h.redirect(c, nil, nil)
		return
	}
	offset, err := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	if err != nil {
		h.redirect(c, nil, nil)
		return
	}
	img, err := h.query.RandomSync(c.Request.Context(), c.Param("alias"), interval, offset)
	h.redirect(c, img, err)
}

func (h *Handler) redirect(c *gin.Context, img *models.Image, err error) {
	if err != nil && !errors.Is(err, registry.ErrChannelUnknown) && !errors.Is(err, random.ErrInvalidInterval) &&
		!utils.IsClientDisconnect(err) {
		log.Printf("[VRC] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}

	// 客户端需要每次重新解析目标
	c.Header("Cache-Control", "no-store")
	if err != nil || img == nil {
		c.Redirect(http.StatusFound, PlaceholderPath)
		return
	}
	c.Redirect(http.StatusFound, path.Join(h.publicPrefix, img.Filepath))
}
