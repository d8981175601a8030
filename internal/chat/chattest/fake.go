// Package chattest 提供内存中的 chat.Transport 实现
package chattest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/discord2vrc/discord2vrc/internal/chat"
)

// Call 记录一次带内容的传输层调用
type Call struct {
	ChannelID string
	MessageID string
	Value     string
}

// Transport 可编程的假传输层
type Transport struct {
	mu sync.Mutex

	// Blobs 附件 ID 到内容
	Blobs map[int64][]byte
	// FetchErrs 附件 ID 到下载错误
	FetchErrs map[int64]error
	// HistoryByChannel 频道消息，按时间从新到旧
	HistoryByChannel map[string][]*chat.Message
	Channels         map[string]*chat.ChannelInfo

	Fetched   []int64
	Reactions []Call
	Unreacts  []Call
	Replies   []Call
	Sent      []Call
	Deleted   []Call

	nextID int
}

// New 创建假传输层
func New() *Transport {
	return &Transport{
		Blobs:            map[int64][]byte{},
		FetchErrs:        map[int64]error{},
		HistoryByChannel: map[string][]*chat.Message{},
		Channels:         map[string]*chat.ChannelInfo{},
	}
}

var _ chat.Transport = (*Transport)(nil)

func (t *Transport) FetchAttachment(ctx context.Context, att chat.Attachment) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Fetched = append(t.Fetched, att.ID)
	if err, ok := t.FetchErrs[att.ID]; ok {
		return nil, err
	}
	data, ok := t.Blobs[att.ID]
	if !ok {
		return nil, fmt.Errorf("%w: no blob for %d", chat.ErrAttachmentNotFound, att.ID)
	}
	return data, nil
}

func (t *Transport) History(ctx context.Context, channelID string, limit int) ([]*chat.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.HistoryByChannel[channelID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]*chat.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (t *Transport) React(ctx context.Context, channelID, messageID, emoji string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Reactions = append(t.Reactions, Call{channelID, messageID, emoji})
	return nil
}

func (t *Transport) Unreact(ctx context.Context, channelID, messageID, emoji string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Unreacts = append(t.Unreacts, Call{channelID, messageID, emoji})
	return nil
}

func (t *Transport) Reply(ctx context.Context, channelID, messageID, content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Replies = append(t.Replies, Call{channelID, messageID, content})
	return nil
}

func (t *Transport) Send(ctx context.Context, channelID, content string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := "sent-" + strconv.Itoa(t.nextID)
	t.Sent = append(t.Sent, Call{channelID, id, content})
	return id, nil
}

func (t *Transport) Delete(ctx context.Context, channelID, messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Deleted = append(t.Deleted, Call{ChannelID: channelID, MessageID: messageID})
	return nil
}

func (t *Transport) Channel(ctx context.Context, channelID string) (*chat.ChannelInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.Channels[channelID]; ok {
		return info, nil
	}
	return &chat.ChannelInfo{ID: channelID, Name: "channel-" + channelID}, nil
}

// SentContents 返回已发送消息的内容
func (t *Transport) SentContents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.Sent))
	for _, c := range t.Sent {
		out = append(out, c.Value)
	}
	return out
}

// ReactionsOn 返回某条消息收到的表情回应
func (t *Transport) ReactionsOn(messageID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, c := range t.Reactions {
		if c.MessageID == messageID {
			out = append(out, c.Value)
		}
	}
	return out
}
