package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSource(t *testing.T, dsn string) {
	db, err := openDatabase("sqlite", dsn)
	require.NoError(t, err)
	defer closeDatabase(db)
	require.NoError(t, db.AutoMigrate(models.All()...))

	now := time.Unix(1_700_000_000, 0).UTC()
	list := []models.Channel{
		{ID: 1, ChannelID: "c1", ChannelName: "general", Alias: "gallery", Subscribed: true},
		{ID: 2, ChannelID: "c2", ChannelName: "old", Alias: "c2", Subscribed: false},
	}
	require.NoError(t, db.Create(&list).Error)
	for i := int64(1); i <= 7; i++ {
		img := models.Image{
			ID:           uint(i),
			Filename:     "a.png",
			Filepath:     "uploads/a.jpg",
			AttachmentID: 100 + i,
			ChannelRefID: uint(1 + i%2),
			CreatedAt:    now,
			RetrievedAt:  now,
			Deleted:      i == 3,
		}
		require.NoError(t, db.Create(&img).Error)
	}
}

// TestRunCopy 测试数据库间复制
func TestRunCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	seedSource(t, src)

	opts := copyOptions{fromType: "sqlite", fromDSN: src, toType: "sqlite", toDSN: dst, batchSize: 3, onConflict: "skip"}
	require.NoError(t, runCopy(context.Background(), opts))
	// 再次复制时全部跳过
	require.NoError(t, runCopy(context.Background(), opts))

	db, err := openDatabase("sqlite", dst)
	require.NoError(t, err)
	defer closeDatabase(db)

	var chs []models.Channel
	require.NoError(t, db.Order("id").Find(&chs).Error)
	require.Len(t, chs, 2)
	assert.True(t, chs[0].Subscribed)
	assert.False(t, chs[1].Subscribed)

	var count int64
	require.NoError(t, db.Model(&models.Image{}).Count(&count).Error)
	assert.EqualValues(t, 7, count)
	var deleted models.Image
	require.NoError(t, db.Where("attachment_id = ?", 103).First(&deleted).Error)
	assert.True(t, deleted.Deleted)

	opts.onConflict = "error"
	assert.Error(t, runCopy(context.Background(), opts))
}

// TestCopyOptionsValidate 测试参数校验
func TestCopyOptionsValidate(t *testing.T) {
	ok := copyOptions{fromType: "sqlite", fromDSN: "a.db", toType: "postgres", toDSN: "host=x", batchSize: 10, onConflict: "skip"}
	assert.NoError(t, ok.validate())

	bad := ok
	bad.onConflict = "overwrite"
	assert.Error(t, bad.validate())

	bad = ok
	bad.toType, bad.toDSN = "sqlite", "a.db"
	assert.Error(t, bad.validate())

	bad = ok
	bad.fromDSN = ""
	assert.Error(t, bad.validate())

	bad = ok
	bad.batchSize = 0
	assert.Error(t, bad.validate())
}

// TestParseAttachmentIDs 测试附件 ID 参数解析
func TestParseAttachmentIDs(t *testing.T) {
	ids, err := parseAttachmentIDs([]string{"1", "1099511627776"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1099511627776}, ids)

	_, err = parseAttachmentIDs([]string{"1", "x"})
	assert.Error(t, err)
	_, err = parseAttachmentIDs([]string{"0"})
	assert.Error(t, err)
}
