package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/discord2vrc/discord2vrc/database/repo/channels"
	"gorm.io/gorm"
)

var (
	// ErrAliasConflict 别名已属于其他频道
	ErrAliasConflict = errors.New("alias already belongs to another channel")
	// ErrNotSubscribed 频道未订阅
	ErrNotSubscribed = errors.New("channel is not subscribed")
	// ErrChannelUnknown 别名或频道不存在
	ErrChannelUnknown = errors.New("channel unknown")
	// ErrInvalidAlias 别名为空或包含非法字符
	ErrInvalidAlias = errors.New("invalid alias")
)

// ChannelInfo 订阅时由聊天传输层提供的频道信息
type ChannelInfo struct {
	ChannelID string
	Name      string
	Guild     string
	GuildID   string
}

// Store 频道持久化接口
type Store interface {
	GetByChannelID(ctx context.Context, channelID string) (*models.Channel, error)
	GetByAlias(ctx context.Context, alias string) (*models.Channel, error)
	List(ctx context.Context) ([]*models.Channel, error)
	Create(ctx context.Context, channel *models.Channel) error
	Save(ctx context.Context, channel *models.Channel) error
}

type snapshot struct {
	byID    map[string]*models.Channel
	byAlias map[string]*models.Channel
	ordered []*models.Channel
}

// Registry 频道注册表
// 内存快照在每次变更后以及 Reload 时从存储重建，其他进程的变更在下一次 Reload 前不可见
type Registry struct {
	store Store

	// mu 串行化变更操作，避免同一进程内的别名预检竞争
	mu sync.Mutex

	snapMu sync.RWMutex
	snap   snapshot
}

// New 创建注册表，需调用 Reload 加载初始快照
func New(store Store) *Registry {
	return &Registry{
		store: store,
		snap:  snapshot{byID: map[string]*models.Channel{}, byAlias: map[string]*models.Channel{}},
	}
}

// Reload 从存储重建内存快照
func (r *Registry) Reload(ctx context.Context) error {
	list, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load channels: %w", err)
	}

	next := snapshot{
		byID:    make(map[string]*models.Channel, len(list)),
		byAlias: make(map[string]*models.Channel, len(list)),
		ordered: list,
	}
	for _, ch := range list {
		next.byID[ch.ChannelID] = ch
		next.byAlias[ch.Alias] = ch
	}

	r.snapMu.Lock()
	r.snap = next
	r.snapMu.Unlock()
	return nil
}

// Subscribe 订阅频道
// 已存在的频道重新启用，alias 非空时同时改名；新频道默认使用显示名作为别名
func (r *Registry) Subscribe(ctx context.Context, info ChannelInfo, alias string) (*models.Channel, error) {
	alias = strings.TrimSpace(alias)
	if alias != "" && !validAlias(alias) {
		return nil, ErrInvalidAlias
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.GetByChannelID(ctx, info.ChannelID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if existing == nil {
		if alias == "" {
			alias = info.Name
		}
		if !validAlias(alias) {
			return nil, ErrInvalidAlias
		}
		if err := r.checkAlias(ctx, alias, info.ChannelID); err != nil {
			return nil, err
		}
		channel := &models.Channel{
			ChannelID:   info.ChannelID,
			ChannelName: info.Name,
			Alias:       alias,
			Guild:       info.Guild,
			GuildID:     info.GuildID,
			Subscribed:  true,
		}
		if err := r.store.Create(ctx, channel); err != nil {
			return nil, mapStoreError(err)
		}
		log.Printf("[Registry] Subscribed channel %s as %q", channel.ChannelID, channel.Alias)
		return channel, r.Reload(ctx)
	}

	if alias != "" && alias != existing.Alias {
		if err := r.checkAlias(ctx, alias, info.ChannelID); err != nil {
			return nil, err
		}
		existing.Alias = alias
	}
	existing.Subscribed = true
	if info.Name != "" {
		existing.ChannelName = info.Name
	}
	if info.Guild != "" {
		existing.Guild = info.Guild
	}
	if info.GuildID != "" {
		existing.GuildID = info.GuildID
	}
	if err := r.store.Save(ctx, existing); err != nil {
		return nil, mapStoreError(err)
	}
	log.Printf("[Registry] Re-subscribed channel %s as %q", existing.ChannelID, existing.Alias)
	return existing, r.Reload(ctx)
}

// Unsubscribe 取消订阅，别名重置为频道 ID 以释放原别名
func (r *Registry) Unsubscribe(ctx context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	channel, err := r.subscribed(ctx, channelID)
	if err != nil {
		return err
	}

	channel.Subscribed = false
	channel.Alias = channel.ChannelID
	if err := r.store.Save(ctx, channel); err != nil {
		return mapStoreError(err)
	}
	log.Printf("[Registry] Unsubscribed channel %s", channelID)
	return r.Reload(ctx)
}

// Rename 修改已订阅频道的别名
func (r *Registry) Rename(ctx context.Context, channelID, alias string) (*models.Channel, error) {
	alias = strings.TrimSpace(alias)
	if !validAlias(alias) {
		return nil, ErrInvalidAlias
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	channel, err := r.subscribed(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.Alias == alias {
		return channel, nil
	}
	if err := r.checkAlias(ctx, alias, channelID); err != nil {
		return nil, err
	}

	old := channel.Alias
	channel.Alias = alias
	if err := r.store.Save(ctx, channel); err != nil {
		return nil, mapStoreError(err)
	}
	log.Printf("[Registry] Renamed channel %s: %q -> %q", channelID, old, alias)
	return channel, r.Reload(ctx)
}

// Resolve 通过别名查找频道（快照）
func (r *Registry) Resolve(alias string) (*models.Channel, bool) {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	ch, ok := r.snap.byAlias[alias]
	return ch, ok
}

// Get 通过频道 ID 查找频道（快照）
func (r *Registry) Get(channelID string) (*models.Channel, bool) {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	ch, ok := r.snap.byID[channelID]
	return ch, ok
}

// IsActive 频道已知且处于订阅状态
func (r *Registry) IsActive(channelID string) bool {
	ch, ok := r.Get(channelID)
	return ok && ch.Subscribed
}

// Channels 返回快照中的所有频道
func (r *Registry) Channels() []*models.Channel {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	out := make([]*models.Channel, len(r.snap.ordered))
	copy(out, r.snap.ordered)
	return out
}

func (r *Registry) subscribed(ctx context.Context, channelID string) (*models.Channel, error) {
	channel, err := r.store.GetByChannelID(ctx, channelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotSubscribed
	}
	if err != nil {
		return nil, err
	}
	if !channel.Subscribed {
		return nil, ErrNotSubscribed
	}
	return channel, nil
}

// checkAlias 别名预检，唯一索引兜底并发竞争
func (r *Registry) checkAlias(ctx context.Context, alias, channelID string) error {
	owner, err := r.store.GetByAlias(ctx, alias)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if owner.ChannelID != channelID {
		return ErrAliasConflict
	}
	return nil
}

func mapStoreError(err error) error {
	if errors.Is(err, channels.ErrAliasTaken) {
		return ErrAliasConflict
	}
	return err
}

// AllAlias 在查询接口中表示全部频道，不能作为频道别名
const AllAlias = "all"

// validAlias 别名会出现在 URL 路径中，不允许空白和斜杠
func validAlias(alias string) bool {
	if alias == "" || alias == AllAlias || len(alias) > 100 {
		return false
	}
	return !strings.ContainsAny(alias, "/ \t\r\n?#")
}
