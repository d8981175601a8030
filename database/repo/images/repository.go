package images

import (
	"context"
	"errors"
	"fmt"

	"github.com/discord2vrc/discord2vrc/database"
	"github.com/discord2vrc/discord2vrc/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxPageSize 单次列表查询的最大条数
const MaxPageSize = 100

// Repository 图片仓库 - 封装所有图片相关的数据库操作
type Repository struct {
	db database.Provider
}

// NewRepository 创建新的图片仓库
func NewRepository(db database.Provider) *Repository {
	return &Repository{db: db}
}

// GetByAttachmentID 通过附件 ID 获取图片（含频道）
func (r *Repository) GetByAttachmentID(ctx context.Context, attachmentID int64) (*models.Image, error) {
	var image models.Image
	err := r.db.WithContext(ctx).Preload("Channel").
		Where("attachment_id = ?", attachmentID).First(&image).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// CreateIfAbsent 附件 ID 不存在时插入记录
// 并发写入同一附件时，后写入者不产生新行，返回已存在的记录且 created 为 false
func (r *Repository) CreateIfAbsent(ctx context.Context, image *models.Image) (*models.Image, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attachment_id"}},
			DoNothing: true,
		}).
		Create(image)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to insert image %d: %w", image.AttachmentID, result.Error)
	}
	if result.RowsAffected > 0 {
		return image, true, nil
	}

	existing, err := r.GetByAttachmentID(ctx, image.AttachmentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reload image %d after conflict: %w", image.AttachmentID, err)
	}
	return existing, false, nil
}

// Undelete 清除软删除标记，返回是否有记录被修改
func (r *Repository) Undelete(ctx context.Context, attachmentID int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Image{}).
		Where("attachment_id = ? AND deleted = ?", attachmentID, true).
		Update("deleted", false)
	if result.Error != nil {
		return false, fmt.Errorf("failed to undelete image %d: %w", attachmentID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SoftDeleteByChannel 批量软删除频道下所有未删除的图片，返回受影响的附件 ID
func (r *Repository) SoftDeleteByChannel(ctx context.Context, channelRefID uint) ([]int64, error) {
	var ids []int64
	err := r.db.TransactionWithContext(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&models.Image{}).
			Where("channel_ref_id = ? AND deleted = ?", channelRefID, false).
			Pluck("attachment_id", &ids).Error; err != nil {
			return fmt.Errorf("failed to collect images of channel %d: %w", channelRefID, err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Model(&models.Image{}).
			Where("channel_ref_id = ? AND deleted = ?", channelRefID, false).
			Update("deleted", true).Error; err != nil {
			return fmt.Errorf("failed to soft delete images of channel %d: %w", channelRefID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Count 统计满足条件的图片数量
func (r *Repository) Count(ctx context.Context, filter Filter) (int64, error) {
	var total int64
	err := filter.apply(r.db.WithContext(ctx).Model(&models.Image{})).Count(&total).Error
	return total, err
}

// List 分页查询图片，limit 被限制在 [0, MaxPageSize]
func (r *Repository) List(ctx context.Context, filter Filter, key SortKey, order Order, skip, limit int) ([]*models.Image, error) {
	if skip < 0 {
		skip = 0
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	images := make([]*models.Image, 0)
	if limit <= 0 {
		return images, nil
	}

	err := filter.apply(r.db.WithContext(ctx).Model(&models.Image{})).
		Preload("Channel").
		Order(orderClause(key, order)).
		Offset(skip).
		Limit(limit).
		Find(&images).Error
	return images, err
}

// Nth 返回排序后第 index 条记录，不存在时返回 gorm.ErrRecordNotFound
func (r *Repository) Nth(ctx context.Context, filter Filter, key SortKey, order Order, index int) (*models.Image, error) {
	if index < 0 {
		return nil, gorm.ErrRecordNotFound
	}
	var images []*models.Image
	err := filter.apply(r.db.WithContext(ctx).Model(&models.Image{})).
		Preload("Channel").
		Order(orderClause(key, order)).
		Offset(index).
		Limit(1).
		Find(&images).Error
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return images[0], nil
}

// Random 由数据库随机抽取一条记录
func (r *Repository) Random(ctx context.Context, filter Filter) (*models.Image, error) {
	var image models.Image
	err := filter.apply(r.db.WithContext(ctx).Model(&models.Image{})).
		Preload("Channel").
		Order("RANDOM()").
		Take(&image).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
