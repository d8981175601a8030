// Package dbtest 提供基于内存 SQLite 的测试数据库
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/discord2vrc/discord2vrc/database"
	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// New 创建一个已迁移的独立内存数据库，测试结束时自动关闭
func New(t testing.TB) database.Provider {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 单连接避免共享缓存下的表锁冲突
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...))

	provider := database.NewGormProviderFromDB(db, "sqlite")
	t.Cleanup(func() {
		_ = provider.Close()
	})
	return provider
}
