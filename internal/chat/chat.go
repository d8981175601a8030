// Package chat 定义采集流程依赖的聊天传输层抽象
package chat

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAttachmentNotFound 附件已不存在
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrTransportUnavailable 传输层请求失败
	ErrTransportUnavailable = errors.New("transport unavailable")
)

const (
	EmojiLoading = "⌛"
	EmojiSuccess = "✅"
)

// Author 消息作者
type Author struct {
	ID            string
	Name          string
	Discriminator string
	Bot           bool
}

// Attachment 消息附件
type Attachment struct {
	ID       int64
	Filename string
	URL      string
	Size     int
}

// Reaction 消息上的表情回应，Me 表示包含机器人自己的回应
type Reaction struct {
	Emoji string
	Me    bool
}

// Message 聊天消息
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	Author      Author
	Content     string
	CreatedAt   time.Time
	Attachments []Attachment
	Reactions   []Reaction
}

// HasAttachments 消息是否携带附件
func (m *Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// ChannelInfo 频道与所属服务器信息
type ChannelInfo struct {
	ID        string
	Name      string
	GuildID   string
	GuildName string
}

// Transport 聊天传输层
type Transport interface {
	// FetchAttachment 下载附件内容，失败时返回 ErrAttachmentNotFound 或 ErrTransportUnavailable
	FetchAttachment(ctx context.Context, attachment Attachment) ([]byte, error)
	// History 获取频道最近 limit 条消息，按时间从新到旧
	History(ctx context.Context, channelID string, limit int) ([]*Message, error)
	React(ctx context.Context, channelID, messageID, emoji string) error
	Unreact(ctx context.Context, channelID, messageID, emoji string) error
	// Reply 回复指定消息
	Reply(ctx context.Context, channelID, messageID, content string) error
	// Send 发送消息并返回消息 ID
	Send(ctx context.Context, channelID, content string) (string, error)
	Delete(ctx context.Context, channelID, messageID string) error
	Channel(ctx context.Context, channelID string) (*ChannelInfo, error)
}
