package random

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/discord2vrc/discord2vrc/database/dbtest"
	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/discord2vrc/discord2vrc/database/repo/channels"
	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, n int) (*images.Repository, *models.Channel) {
	db := dbtest.New(t)
	ctx := context.Background()
	ch := &models.Channel{ChannelID: "c", ChannelName: "c", Alias: "c", Subscribed: true}
	require.NoError(t, channels.NewRepository(db).Create(ctx, ch))

	repo := images.NewRepository(db)
	base := time.Unix(1_600_000_000, 0).UTC()
	for i := 1; i <= n; i++ {
		_, _, err := repo.CreateIfAbsent(ctx, &models.Image{
			Filename:     fmt.Sprintf("%d.png", i),
			Filepath:     fmt.Sprintf("uploads/%d.jpg", i),
			AttachmentID: int64(i),
			ChannelRefID: ch.ID,
			CreatedAt:    base.Add(time.Duration(n-i) * time.Minute),
			RetrievedAt:  base,
		})
		require.NoError(t, err)
	}
	return repo, ch
}

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

// TestBucket 测试时间分桶
func TestBucket(t *testing.T) {
	assert.EqualValues(t, 200, Bucket(time.Unix(1000, 0), 5, 0))
	assert.EqualValues(t, 200, Bucket(time.Unix(1004, 0), 5, 0))
	assert.EqualValues(t, 201, Bucket(time.Unix(1005, 0), 5, 0))
	assert.EqualValues(t, 199, Bucket(time.Unix(1004, 0), 5, 1))
	assert.EqualValues(t, 190, Bucket(time.Unix(1004, 0), 5, 10))
}

// TestIndexDeterministic 测试同一桶下标一致且在范围内
func TestIndexDeterministic(t *testing.T) {
	for bucket := int64(0); bucket < 200; bucket++ {
		k := Index(bucket, 37)
		assert.Equal(t, k, Index(bucket, 37))
		assert.GreaterOrEqual(t, k, 0)
		assert.Less(t, k, 37)
	}
}

// TestPickSameBucket 测试同一时间窗口内结果相同
func TestPickSameBucket(t *testing.T) {
	repo, _ := seed(t, 50)
	ctx := context.Background()
	filter := images.Active(nil)

	a, err := NewSampler(repo, WithClock(fixedClock(1_700_000_000))).Pick(ctx, 5, 0, filter, images.SortByAttachmentID)
	require.NoError(t, err)
	b, err := NewSampler(repo, WithClock(fixedClock(1_700_000_004))).Pick(ctx, 5, 0, filter, images.SortByAttachmentID)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.AttachmentID, b.AttachmentID)

	// 下一个桶使用 offset=1 应回到当前桶的结果
	c, err := NewSampler(repo, WithClock(fixedClock(1_700_000_005))).Pick(ctx, 5, 1, filter, images.SortByAttachmentID)
	require.NoError(t, err)
	assert.Equal(t, a.AttachmentID, c.AttachmentID)
}

// TestPickMatchesIndex 测试选中的记录是降序排列后的第 k 条
func TestPickMatchesIndex(t *testing.T) {
	repo, ch := seed(t, 20)
	ctx := context.Background()
	now := int64(1_700_000_123)

	k := Index(Bucket(time.Unix(now, 0), 7, 0), 20)
	img, err := NewSampler(repo, WithClock(fixedClock(now))).Pick(ctx, 7, 0, images.Active(&ch.ID), images.SortByAttachmentID)
	require.NoError(t, err)
	assert.EqualValues(t, 20-k, img.AttachmentID)

	// 按时间降序时附件 ID 越小越新
	img, err = NewSampler(repo, WithClock(fixedClock(now))).Pick(ctx, 7, 0, images.Active(&ch.ID), images.SortByCreatedAt)
	require.NoError(t, err)
	assert.EqualValues(t, k+1, img.AttachmentID)
}

// TestPickEmptyAndInvalid 测试无记录与非法间隔
func TestPickEmptyAndInvalid(t *testing.T) {
	repo, _ := seed(t, 0)
	s := NewSampler(repo)

	img, err := s.Pick(context.Background(), 5, 0, images.Active(nil), images.SortByAttachmentID)
	require.NoError(t, err)
	assert.Nil(t, img)

	_, err = s.Pick(context.Background(), 0, 0, images.Active(nil), images.SortByAttachmentID)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}
