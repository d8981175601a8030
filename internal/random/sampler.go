// Package random 实现时间分桶的确定性随机选图
package random

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"gorm.io/gorm"
)

// pcgStream PCG 的固定第二种子，改变它会改变所有客户端的抽取结果
const pcgStream uint64 = 0x9E3779B97F4A7C15

// ErrInvalidInterval 时间间隔小于 1 秒
var ErrInvalidInterval = errors.New("interval must be at least 1 second")

// Store 采样依赖的查询接口
type Store interface {
	Count(ctx context.Context, filter images.Filter) (int64, error)
	Nth(ctx context.Context, filter images.Filter, key images.SortKey, order images.Order, index int) (*models.Image, error)
}

// Sampler 同一时间桶内所有调用方得到相同的记录
type Sampler struct {
	store Store
	now   func() time.Time
}

// Option 配置 Sampler
type Option func(*Sampler)

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// NewSampler 创建采样器
func NewSampler(store Store, opts ...Option) *Sampler {
	s := &Sampler{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bucket 计算 floor(now/interval) - offset，offset 以整桶为单位
func Bucket(now time.Time, interval, offset int64) int64 {
	sec := now.Unix()
	b := sec / interval
	if sec%interval != 0 && sec < 0 {
		b--
	}
	return b - offset
}

// Index 由时间桶确定性地得到 [0, n) 内的下标
func Index(bucket int64, n int) int {
	r := rand.New(rand.NewPCG(uint64(bucket), pcgStream))
	return r.IntN(n)
}

// Pick 在满足 filter 的记录中按 key 降序选出当前时间桶对应的一条，无记录时返回 nil
func (s *Sampler) Pick(ctx context.Context, interval, offset int64, filter images.Filter, key images.SortKey) (*models.Image, error) {
	if interval < 1 {
		return nil, ErrInvalidInterval
	}

	n, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	k := Index(Bucket(s.now(), interval, offset), int(n))
	img, err := s.store.Nth(ctx, filter, key, images.Desc, k)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 计数与查询之间记录被删除
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}
