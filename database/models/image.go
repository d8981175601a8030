package models

import "time"

// Image 从频道采集的图片附件
type Image struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	Filename string `gorm:"not null" json:"filename"`
	// Filepath 相对公共资源根目录的存储路径，如 uploads/123.jpg
	Filepath string `gorm:"not null" json:"filepath"`
	// AttachmentID 上游分配的附件 ID，唯一去重键
	AttachmentID int64 `gorm:"uniqueIndex:idx_images_attachment_id;not null" json:"attachment_id,string"`

	ChannelRefID uint     `gorm:"index:idx_images_channel;not null" json:"-"`
	Channel      *Channel `gorm:"foreignKey:ChannelRefID" json:"channel,omitempty"`

	Username  string `json:"username"`
	UserNum   string `json:"user_num"`
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`

	// CreatedAt 消息发送时间（作者侧），创建时显式写入
	CreatedAt   time.Time `gorm:"index:idx_images_created_at;not null" json:"created_at"`
	RetrievedAt time.Time `gorm:"not null" json:"retrieved_at"`
	Deleted     bool      `gorm:"index:idx_images_deleted;default:false;not null" json:"deleted"`
}

// All 所有需要迁移的模型
func All() []interface{} {
	return []interface{}{
		&Channel{},
		&Image{},
	}
}
