package images

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/discord2vrc/discord2vrc/database/dbtest"
	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/discord2vrc/discord2vrc/database/repo/channels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	repo     *Repository
	channelA *models.Channel
	channelB *models.Channel
}

func setup(t *testing.T) *fixture {
	db := dbtest.New(t)
	chRepo := channels.NewRepository(db)
	ctx := context.Background()

	a := &models.Channel{ChannelID: "a", ChannelName: "A", Alias: "alpha", Subscribed: true}
	b := &models.Channel{ChannelID: "b", ChannelName: "B", Alias: "beta", Subscribed: true}
	require.NoError(t, chRepo.Create(ctx, a))
	require.NoError(t, chRepo.Create(ctx, b))

	return &fixture{repo: NewRepository(db), channelA: a, channelB: b}
}

func newImage(channel *models.Channel, attachmentID int64, createdAt time.Time) *models.Image {
	return &models.Image{
		Filename:     fmt.Sprintf("%d.jpg", attachmentID),
		Filepath:     fmt.Sprintf("uploads/%d.jpg", attachmentID),
		AttachmentID: attachmentID,
		ChannelRefID: channel.ID,
		Username:     "user",
		UserNum:      "0001",
		UserID:       "42",
		MessageID:    "m1",
		CreatedAt:    createdAt,
		RetrievedAt:  time.Now(),
	}
}

// TestCreateIfAbsent 测试按附件 ID 去重插入
func TestCreateIfAbsent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()

	first, created, err := f.repo.CreateIfAbsent(ctx, newImage(f.channelA, 10, base))
	require.NoError(t, err)
	assert.True(t, created)

	dup := newImage(f.channelB, 10, base.Add(time.Hour))
	dup.MessageID = "m2"
	second, created, err := f.repo.CreateIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "m1", second.MessageID)
	assert.Equal(t, f.channelA.ID, second.ChannelRefID)

	total, err := f.repo.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

// TestSoftDeleteAndUndelete 测试频道清除与重新发现
func TestSoftDeleteAndUndelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()

	for i := int64(1); i <= 3; i++ {
		_, _, err := f.repo.CreateIfAbsent(ctx, newImage(f.channelA, i, base))
		require.NoError(t, err)
	}
	_, _, err := f.repo.CreateIfAbsent(ctx, newImage(f.channelB, 99, base))
	require.NoError(t, err)

	ids, err := f.repo.SoftDeleteByChannel(ctx, f.channelA.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)

	activeA, err := f.repo.Count(ctx, Active(&f.channelA.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 0, activeA)

	activeB, err := f.repo.Count(ctx, Active(&f.channelB.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 1, activeB)

	// 再次清除不应返回任何附件
	ids, err = f.repo.SoftDeleteByChannel(ctx, f.channelA.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	changed, err := f.repo.Undelete(ctx, 2)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.repo.Undelete(ctx, 2)
	require.NoError(t, err)
	assert.False(t, changed)

	img, err := f.repo.GetByAttachmentID(ctx, 2)
	require.NoError(t, err)
	assert.False(t, img.Deleted)
	require.NotNil(t, img.Channel)
	assert.Equal(t, "alpha", img.Channel.Alias)
}

// TestListPagination 测试分页上限
func TestListPagination(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()

	for i := int64(1); i <= 250; i++ {
		_, _, err := f.repo.CreateIfAbsent(ctx, newImage(f.channelA, i, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	page, err := f.repo.List(ctx, Active(nil), SortByAttachmentID, Desc, 0, 100)
	require.NoError(t, err)
	require.Len(t, page, 100)
	assert.EqualValues(t, 250, page[0].AttachmentID)
	assert.EqualValues(t, 151, page[99].AttachmentID)

	tail, err := f.repo.List(ctx, Active(nil), SortByAttachmentID, Desc, 240, 100)
	require.NoError(t, err)
	assert.Len(t, tail, 10)

	capped, err := f.repo.List(ctx, Filter{}, SortByCreatedAt, Asc, 0, 500)
	require.NoError(t, err)
	require.Len(t, capped, MaxPageSize)
	assert.EqualValues(t, 1, capped[0].AttachmentID)

	empty, err := f.repo.List(ctx, Filter{}, SortByCreatedAt, Asc, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// TestNthTieBreak 测试相同时间戳按附件 ID 排序
func TestNthTieBreak(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	same := time.Unix(1_700_000_000, 0).UTC()

	for _, id := range []int64{5, 3, 9} {
		_, _, err := f.repo.CreateIfAbsent(ctx, newImage(f.channelA, id, same))
		require.NoError(t, err)
	}

	img, err := f.repo.Nth(ctx, Active(&f.channelA.ID), SortByCreatedAt, Desc, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 9, img.AttachmentID)

	img, err = f.repo.Nth(ctx, Active(&f.channelA.ID), SortByCreatedAt, Asc, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, img.AttachmentID)

	_, err = f.repo.Nth(ctx, Active(&f.channelA.ID), SortByCreatedAt, Asc, 3)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = f.repo.Nth(ctx, Active(&f.channelB.ID), SortByAttachmentID, Desc, 0)
	assert.True(t, IsNotFound(err))
}

// TestRandom 测试随机抽取遵循过滤条件
func TestRandom(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()

	_, _, err := f.repo.CreateIfAbsent(ctx, newImage(f.channelA, 1, base))
	require.NoError(t, err)
	_, _, err = f.repo.CreateIfAbsent(ctx, newImage(f.channelB, 2, base))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		img, err := f.repo.Random(ctx, Active(&f.channelB.ID))
		require.NoError(t, err)
		assert.EqualValues(t, 2, img.AttachmentID)
	}

	deleted := true
	_, err = f.repo.Random(ctx, Filter{Deleted: &deleted})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

// TestParseOrder 测试排序方向解析
func TestParseOrder(t *testing.T) {
	o, ok := ParseOrder("asc")
	assert.True(t, ok)
	assert.Equal(t, Asc, o)

	o, ok = ParseOrder("")
	assert.True(t, ok)
	assert.Equal(t, Desc, o)

	_, ok = ParseOrder("sideways")
	assert.False(t, ok)
}
