package database

import (
	"context"

	"gorm.io/gorm"
)

// Provider 数据库提供者接口
// 仓储层只依赖该接口，sqlite 和 postgres 共用同一实现
type Provider interface {
	// DB 返回底层 *gorm.DB 实例
	DB() *gorm.DB

	// WithContext 返回带上下文的 *gorm.DB
	WithContext(ctx context.Context) *gorm.DB

	// TransactionWithContext 在事务中执行 fn，fn 返回错误时回滚
	TransactionWithContext(ctx context.Context, fn func(tx *gorm.DB) error) error

	// AutoMigrate 自动迁移数据库结构
	AutoMigrate(models ...interface{}) error

	// PingContext 检查数据库连接
	PingContext(ctx context.Context) error

	// Close 关闭数据库连接
	Close() error

	// Name 返回数据库类型（sqlite / postgres）
	Name() string
}
