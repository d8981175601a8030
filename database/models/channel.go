package models

import "time"

// Channel 已订阅（或曾经订阅）的聊天频道
// 记录不会被物理删除，取消订阅只会把 Subscribed 置为 false
type Channel struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ChannelID   string `gorm:"uniqueIndex:idx_channels_channel_id;not null" json:"channel_id"`
	ChannelName string `gorm:"not null" json:"channel_name"`
	// Alias 公开的频道别名，全局唯一
	Alias      string    `gorm:"uniqueIndex:idx_channels_alias;not null" json:"alias"`
	Guild      string    `json:"guild"`
	GuildID    string    `gorm:"index:idx_channels_guild_id" json:"guild_id"`
	Subscribed bool      `gorm:"not null" json:"subscribed"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
