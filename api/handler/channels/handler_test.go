package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/discord2vrc/discord2vrc/api/common"
	"github.com/discord2vrc/discord2vrc/database/dbtest"
	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/discord2vrc/discord2vrc/database/repo/channels"
	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"github.com/discord2vrc/discord2vrc/internal/query"
	"github.com/discord2vrc/discord2vrc/internal/registry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router   *gin.Engine
	repo     *images.Repository
	registry *registry.Registry
}

func setup(t *testing.T) *fixture {
	db := dbtest.New(t)
	reg := registry.New(channels.NewRepository(db))
	require.NoError(t, reg.Reload(context.Background()))
	repo := images.NewRepository(db)
	h := NewHandler(query.NewService(repo, reg), reg)

	router := gin.New()
	router.GET("/api/channels", h.ListChannels)
	router.GET("/api/channel/:alias", h.ListImages)
	router.GET("/api/channel/:alias/count", h.Count)
	router.GET("/api/channel/:alias/info", h.Info)
	return &fixture{router: router, repo: repo, registry: reg}
}

func (f *fixture) subscribe(t *testing.T, channelID, alias string, attachmentIDs ...int64) *models.Channel {
	ctx := context.Background()
	ch, err := f.registry.Subscribe(ctx, registry.ChannelInfo{ChannelID: channelID, Name: channelID}, alias)
	require.NoError(t, err)
	for _, id := range attachmentIDs {
		_, _, err := f.repo.CreateIfAbsent(ctx, &models.Image{
			Filename:     fmt.Sprintf("%d.png", id),
			Filepath:     fmt.Sprintf("uploads/%d.jpg", id),
			AttachmentID: id,
			ChannelRefID: ch.ID,
			CreatedAt:    time.Unix(1_600_000_000+id, 0).UTC(),
			RetrievedAt:  time.Unix(1_600_000_000, 0).UTC(),
		})
		require.NoError(t, err)
	}
	return ch
}

func (f *fixture) get(t *testing.T, path string, data interface{}) (int, common.Response) {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var resp struct {
		common.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	if data != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return w.Code, resp.Response
}

// TestListImages 测试分页列表
func TestListImages(t *testing.T) {
	f := setup(t)
	f.subscribe(t, "c1", "a", 1, 2, 3)
	f.subscribe(t, "c2", "b", 4)

	var list []models.Image
	code, _ := f.get(t, "/api/channel/all", &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 4)
	assert.EqualValues(t, 4, list[0].AttachmentID)

	list = nil
	code, _ = f.get(t, "/api/channel/a?skip=1&limit=1&order=asc", &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.EqualValues(t, 2, list[0].AttachmentID)

	code, resp := f.get(t, "/api/channel/a?skip=50", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, common.MsgNoItems, resp.Msg)

	code, resp = f.get(t, "/api/channel/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, common.MsgNoItems, resp.Msg)

	for _, path := range []string{
		"/api/channel/a?skip=101",
		"/api/channel/a?limit=101",
		"/api/channel/a?skip=x",
		"/api/channel/a?order=up",
		"/api/channel/a?deleted=maybe",
	} {
		code, resp = f.get(t, path, nil)
		assert.Equal(t, http.StatusBadRequest, code, path)
		assert.Equal(t, common.StatusError, resp.Status, path)
	}
}

// TestDeletedFilter 测试删除状态过滤
func TestDeletedFilter(t *testing.T) {
	f := setup(t)
	a := f.subscribe(t, "c1", "a", 1, 2)
	f.subscribe(t, "c2", "b", 3)
	_, err := f.repo.SoftDeleteByChannel(context.Background(), a.ID)
	require.NoError(t, err)

	var list []models.Image
	code, _ := f.get(t, "/api/channel/all?deleted=true", &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 2)
	for _, img := range list {
		assert.True(t, img.Deleted)
	}

	var count CountResponse
	code, _ = f.get(t, "/api/channel/all/count?deleted=false", &count)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, count.Count)
}

// TestCount 测试计数
func TestCount(t *testing.T) {
	f := setup(t)
	f.subscribe(t, "c1", "a", 1, 2)
	f.subscribe(t, "c2", "b")

	var count CountResponse
	code, _ := f.get(t, "/api/channel/a/count", &count)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, count.Count)

	count = CountResponse{}
	code, _ = f.get(t, "/api/channel/b/count", &count)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, count.Count)

	code, _ = f.get(t, "/api/channel/missing/count", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

// TestInfoAndChannels 测试频道信息与频道列表
func TestInfoAndChannels(t *testing.T) {
	f := setup(t)
	f.subscribe(t, "c1", "a")
	f.subscribe(t, "c2", "b")
	require.NoError(t, f.registry.Unsubscribe(context.Background(), "c2"))

	var ch models.Channel
	code, _ := f.get(t, "/api/channel/a/info", &ch)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "c1", ch.ChannelID)
	assert.Equal(t, "a", ch.Alias)

	code, _ = f.get(t, "/api/channel/b/info", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.get(t, "/api/channel/all/info", nil)
	assert.Equal(t, http.StatusNotFound, code)

	var list []models.Channel
	code, _ = f.get(t, "/api/channels", &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].Alias)
}
