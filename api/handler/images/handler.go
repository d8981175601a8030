package images

import (
	"bytes"
	_ "embed"
	"errors"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/discord2vrc/discord2vrc/api/common"
	"github.com/discord2vrc/discord2vrc/internal/query"
	"github.com/discord2vrc/discord2vrc/storage"
	"github.com/discord2vrc/discord2vrc/utils"
	"github.com/gin-gonic/gin"
)

//go:embed assets/placeholder.png
var placeholderPNG []byte

// placeholderModTime 占位图随二进制发布，以进程启动时间作为修改时间
var placeholderModTime = time.Now()

// Handler 图片记录与文件访问
type Handler struct {
	query   *query.Service
	storage storage.Provider
}

// NewHandler 创建处理器
func NewHandler(q *query.Service, store storage.Provider) *Handler {
	return &Handler{query: q, storage: store}
}

// GetImage 按附件 ID 返回图片记录
func (h *Handler) GetImage(c *gin.Context) {
	attachmentID, err := strconv.ParseInt(c.Param("attachment_id"), 10, 64)
	if err != nil || attachmentID <= 0 {
		common.RespondError(c, http.StatusBadRequest, "Invalid attachment id")
		return
	}

	img, err := h.query.Image(c.Request.Context(), attachmentID)
	switch {
	case err == nil:
		common.RespondSuccess(c, img)
	case errors.Is(err, query.ErrImageNotFound):
		common.RespondError(c, http.StatusNotFound, "Image not found")
	case errors.Is(err, query.ErrTemporaryFailure):
		common.RespondError(c, http.StatusServiceUnavailable, "Service temporarily unavailable, please retry")
	case utils.IsClientDisconnect(err):
		c.Status(http.StatusRequestTimeout)
	default:
		log.Printf("[Images] Failed to fetch image %d: %v", attachmentID, err)
		common.RespondError(c, http.StatusInternalServerError, "Error retrieving image")
	}
}

// ServeFile 从存储读取公共资源文件
func (h *Handler) ServeFile(c *gin.Context) {
	filePath := strings.TrimPrefix(c.Param("filepath"), "/")
	if !storage.IsValidStoragePath(filePath) {
		common.RespondError(c, http.StatusNotFound, "File not found")
		return
	}

	stream, err := h.storage.GetWithContext(c.Request.Context(), filePath)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) && !utils.IsClientDisconnect(err) {
			log.Printf("[Images] Failed to read %s from %s storage: %v",
				utils.SanitizeLogMessage(filePath), h.storage.Name(), err)
		}
		common.RespondError(c, http.StatusNotFound, "File not found")
		return
	}
	defer func() {
		if closer, ok := stream.(io.Closer); ok {
			_ = closer.Close()
		}
	}()

	// 上传文件路径只由附件 ID 决定，内容不会变化
	c.Header("Cache-Control", "public, max-age=2592000, immutable")
	http.ServeContent(c.Writer, c.Request, path.Base(filePath), time.Time{}, stream)
}

// Placeholder 没有匹配图片时的占位图
func (h *Handler) Placeholder(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	http.ServeContent(c.Writer, c.Request, "placeholder.png", placeholderModTime, bytes.NewReader(placeholderPNG))
}
