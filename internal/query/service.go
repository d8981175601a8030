// Package query 提供图片的分页、计数、定位与随机查询
package query

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/discord2vrc/discord2vrc/cache"
	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"github.com/discord2vrc/discord2vrc/internal/random"
	"github.com/discord2vrc/discord2vrc/internal/registry"
	"golang.org/x/sync/singleflight"
)

const (
	// MaxSkip skip 参数上限
	MaxSkip = 100
	// MaxLimit limit 参数上限
	MaxLimit = images.MaxPageSize

	lookupTimeout = 30 * time.Second
)

var (
	// ErrInvalidParameter 查询参数越界
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrImageNotFound 附件 ID 对应的记录不存在
	ErrImageNotFound = errors.New("image not found")
	// ErrTemporaryFailure 查询超时，可重试
	ErrTemporaryFailure = errors.New("temporary failure, should be retried")
)

// Store 图片查询接口
type Store interface {
	GetByAttachmentID(ctx context.Context, attachmentID int64) (*models.Image, error)
	Count(ctx context.Context, filter images.Filter) (int64, error)
	List(ctx context.Context, filter images.Filter, key images.SortKey, order images.Order, skip, limit int) ([]*models.Image, error)
	Nth(ctx context.Context, filter images.Filter, key images.SortKey, order images.Order, index int) (*models.Image, error)
	Random(ctx context.Context, filter images.Filter) (*models.Image, error)
}

// Resolver 频道快照查询接口
type Resolver interface {
	Resolve(alias string) (*models.Channel, bool)
	Get(channelID string) (*models.Channel, bool)
}

// ListParams 列表查询参数
type ListParams struct {
	// Alias 为空或 "all" 时查询全部频道
	Alias   string
	Skip    int
	Limit   int
	Order   images.Order
	Deleted *bool
}

// Service 查询服务
type Service struct {
	store    Store
	channels Resolver
	sampler  *random.Sampler

	cache    cache.Provider
	cacheTTL time.Duration
	group    singleflight.Group

	minInterval int64
}

// Option 配置 Service
type Option func(*Service)

// WithCache 设置图片记录缓存
func WithCache(c cache.Provider, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithMinInterval 同步随机允许的最小时间间隔（秒）
func WithMinInterval(sec int) Option {
	return func(s *Service) { s.minInterval = int64(sec) }
}

// WithSampler 替换采样器
func WithSampler(sampler *random.Sampler) Option {
	return func(s *Service) { s.sampler = sampler }
}

// NewService 创建查询服务
func NewService(store Store, channels Resolver, opts ...Option) *Service {
	s := &Service{
		store:       store,
		channels:    channels,
		minInterval: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sampler == nil {
		s.sampler = random.NewSampler(store)
	}
	return s
}

// MinInterval 同步随机允许的最小时间间隔（秒）
func (s *Service) MinInterval() int64 {
	return s.minInterval
}

// Channel 解析别名
func (s *Service) Channel(alias string) (*models.Channel, error) {
	ch, ok := s.channels.Resolve(alias)
	if !ok {
		return nil, registry.ErrChannelUnknown
	}
	return ch, nil
}

// scope 将别名转换为频道过滤条件，空别名和 "all" 不限频道
func (s *Service) scope(alias string) (*uint, error) {
	if alias == "" || alias == registry.AllAlias {
		return nil, nil
	}
	ch, err := s.Channel(alias)
	if err != nil {
		return nil, err
	}
	id := ch.ID
	return &id, nil
}

// List 分页查询，按附件 ID 排序
func (s *Service) List(ctx context.Context, p ListParams) ([]*models.Image, error) {
	if p.Skip < 0 || p.Skip > MaxSkip {
		return nil, fmt.Errorf("%w: skip must be between 0 and %d", ErrInvalidParameter, MaxSkip)
	}
	if p.Limit < 0 || p.Limit > MaxLimit {
		return nil, fmt.Errorf("%w: limit must be between 0 and %d", ErrInvalidParameter, MaxLimit)
	}
	channelRefID, err := s.scope(p.Alias)
	if err != nil {
		return nil, err
	}
	filter := images.Filter{ChannelRefID: channelRefID, Deleted: p.Deleted}
	return s.store.List(ctx, filter, images.SortByAttachmentID, p.Order, p.Skip, p.Limit)
}

// Count 统计数量，deleted 为 nil 时不区分删除状态
func (s *Service) Count(ctx context.Context, alias string, deleted *bool) (int64, error) {
	channelRefID, err := s.scope(alias)
	if err != nil {
		return 0, err
	}
	return s.store.Count(ctx, images.Filter{ChannelRefID: channelRefID, Deleted: deleted})
}

// Latest 最新的未删除图片，无记录时返回 nil
func (s *Service) Latest(ctx context.Context, alias string) (*models.Image, error) {
	return s.Nth(ctx, alias, 0, images.Desc)
}

// Nth 按附件 ID 排序后的第 index 条未删除图片，越界时返回 nil
func (s *Service) Nth(ctx context.Context, alias string, index int, order images.Order) (*models.Image, error) {
	channelRefID, err := s.scope(alias)
	if err != nil {
		return nil, err
	}
	img, err := s.store.Nth(ctx, images.Active(channelRefID), images.SortByAttachmentID, order, index)
	if images.IsNotFound(err) {
		return nil, nil
	}
	return img, err
}

// Random 数据库随机抽取一张未删除图片，无记录时返回 nil
func (s *Service) Random(ctx context.Context, alias string) (*models.Image, error) {
	channelRefID, err := s.scope(alias)
	if err != nil {
		return nil, err
	}
	img, err := s.store.Random(ctx, images.Active(channelRefID))
	if images.IsNotFound(err) {
		return nil, nil
	}
	return img, err
}

// RandomSync 同一时间桶内返回相同图片
// 全部频道按附件 ID 降序，单个频道按消息时间降序
func (s *Service) RandomSync(ctx context.Context, alias string, interval, offset int64) (*models.Image, error) {
	if interval < s.minInterval {
		return nil, fmt.Errorf("%w: interval must be at least %d", random.ErrInvalidInterval, s.minInterval)
	}
	channelRefID, err := s.scope(alias)
	if err != nil {
		return nil, err
	}
	key := images.SortByAttachmentID
	if channelRefID != nil {
		key = images.SortByCreatedAt
	}
	return s.sampler.Pick(ctx, interval, offset, images.Active(channelRefID), key)
}

// Image 按附件 ID 获取图片记录（带缓存和 singleflight）
func (s *Service) Image(ctx context.Context, attachmentID int64) (*models.Image, error) {
	key := cache.ImageMeta.BuildID(attachmentID)

	if s.cache != nil {
		var img models.Image
		if err := s.cache.Get(ctx, key, &img); err == nil {
			return s.withCurrentChannel(&img), nil
		} else if !cache.IsCacheMiss(err) {
			log.Printf("[Query] Failed to read cache for image %d: %v", attachmentID, err)
		}
	}

	resultChan := s.group.DoChan(strconv.FormatInt(attachmentID, 10), func() (interface{}, error) {
		img, err := s.store.GetByAttachmentID(context.WithoutCancel(ctx), attachmentID)
		if images.IsNotFound(err) {
			return nil, ErrImageNotFound
		}
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(context.WithoutCancel(ctx), key, img, s.cacheTTL); err != nil {
				log.Printf("[Query] Failed to cache image %d: %v", attachmentID, err)
			}
		}
		return img, nil
	})

	select {
	case result := <-resultChan:
		if result.Err != nil {
			return nil, result.Err
		}
		return s.withCurrentChannel(result.Val.(*models.Image)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(lookupTimeout):
		s.group.Forget(strconv.FormatInt(attachmentID, 10))
		return nil, ErrTemporaryFailure
	}
}

// withCurrentChannel 用注册表快照替换记录中的频道信息，缓存的别名在改名和取消订阅后不会过期
func (s *Service) withCurrentChannel(img *models.Image) *models.Image {
	if img.Channel == nil {
		return img
	}
	ch, ok := s.channels.Get(img.Channel.ChannelID)
	if !ok {
		return img
	}
	out := *img
	out.Channel = ch
	return &out
}
