package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/discord2vrc/discord2vrc/database"
	"github.com/discord2vrc/discord2vrc/database/models"
	"gorm.io/gorm"
)

// ErrAliasTaken 别名已被其他频道占用（唯一索引冲突）
var ErrAliasTaken = errors.New("alias already taken")

// Repository 频道仓库
type Repository struct {
	db database.Provider
}

// NewRepository 创建新的频道仓库
func NewRepository(db database.Provider) *Repository {
	return &Repository{db: db}
}

// GetByChannelID 通过上游频道 ID 获取频道
func (r *Repository) GetByChannelID(ctx context.Context, channelID string) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&channel).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// GetByAlias 通过别名获取频道
func (r *Repository) GetByAlias(ctx context.Context, alias string) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.WithContext(ctx).Where("alias = ?", alias).First(&channel).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// GetByID 通过主键获取频道
func (r *Repository) GetByID(ctx context.Context, id uint) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.WithContext(ctx).First(&channel, id).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// List 获取所有频道，按主键排序
func (r *Repository) List(ctx context.Context) ([]*models.Channel, error) {
	var channels []*models.Channel
	err := r.db.WithContext(ctx).Order("id asc").Find(&channels).Error
	return channels, err
}

// Create 创建频道
func (r *Repository) Create(ctx context.Context, channel *models.Channel) error {
	err := r.db.WithContext(ctx).Create(channel).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAliasTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create channel %s: %w", channel.ChannelID, err)
	}
	return nil
}

// Save 更新频道的可变字段
func (r *Repository) Save(ctx context.Context, channel *models.Channel) error {
	result := r.db.WithContext(ctx).Model(&models.Channel{}).
		Where("id = ?", channel.ID).
		Updates(map[string]interface{}{
			"channel_name": channel.ChannelName,
			"alias":        channel.Alias,
			"guild":        channel.Guild,
			"guild_id":     channel.GuildID,
			"subscribed":   channel.Subscribed,
		})
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return ErrAliasTaken
	}
	if result.Error != nil {
		return fmt.Errorf("failed to update channel %s: %w", channel.ChannelID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
