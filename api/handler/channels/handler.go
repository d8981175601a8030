package channels

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/discord2vrc/discord2vrc/api/common"
	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"github.com/discord2vrc/discord2vrc/internal/query"
	"github.com/discord2vrc/discord2vrc/internal/registry"
	"github.com/gin-gonic/gin"
)

// Lister 返回注册表快照
type Lister interface {
	Channels() []*models.Channel
}

// Handler 频道图片的 JSON 接口
type Handler struct {
	query    *query.Service
	channels Lister
}

// NewHandler 创建处理器
func NewHandler(q *query.Service, channels Lister) *Handler {
	return &Handler{query: q, channels: channels}
}

// CountResponse 计数响应
type CountResponse struct {
	Count int64 `json:"count"`
}

// ListChannels GET /api/channels 当前订阅中的频道
func (h *Handler) ListChannels(c *gin.Context) {
	out := make([]*models.Channel, 0)
	for _, ch := range h.channels.Channels() {
		if ch.Subscribed {
			out = append(out, ch)
		}
	}
	common.RespondSuccess(c, out)
}

// ListImages GET /api/channel/:alias?skip=&limit=&order=&deleted=
func (h *Handler) ListImages(c *gin.Context) {
	params := query.ListParams{Alias: c.Param("alias")}

	var err error
	if params.Skip, err = intQuery(c, "skip", 0); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if params.Limit, err = intQuery(c, "limit", query.MaxLimit); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	order, ok := images.ParseOrder(c.Query("order"))
	if !ok {
		common.RespondError(c, http.StatusBadRequest, "order must be asc or desc")
		return
	}
	params.Order = order
	if params.Deleted, err = boolQuery(c, "deleted"); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.query.List(c.Request.Context(), params)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	if len(list) == 0 {
		common.RespondNotFound(c)
		return
	}
	common.RespondSuccess(c, list)
}

// Count GET /api/channel/:alias/count?deleted=
func (h *Handler) Count(c *gin.Context) {
	deleted, err := boolQuery(c, "deleted")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.query.Count(c.Request.Context(), c.Param("alias"), deleted)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	common.RespondSuccess(c, CountResponse{Count: n})
}

// Info GET /api/channel/:alias/info
func (h *Handler) Info(c *gin.Context) {
	ch, err := h.query.Channel(c.Param("alias"))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	common.RespondSuccess(c, ch)
}

func (h *Handler) respondQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidParameter):
		common.RespondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrChannelUnknown):
		common.RespondNotFound(c)
	default:
		log.Printf("[Channels] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		common.RespondError(c, http.StatusInternalServerError, "Error retrieving images")
	}
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func boolQuery(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", name)
	}
	return &v, nil
}
