package capture

import (
	"context"
	"log"

	"github.com/discord2vrc/discord2vrc/internal/chat"
)

// Feedback 处理消息前后的用户可见反馈
type Feedback interface {
	Begin(ctx context.Context, msg *chat.Message)
	End(ctx context.Context, msg *chat.Message, res Result)
}

// ReactionFeedback 以表情回应展示进度：⌛ 处理中，✅ 至少记录了一张图片
type ReactionFeedback struct {
	transport chat.Transport
}

// NewReactionFeedback 创建表情反馈
func NewReactionFeedback(transport chat.Transport) *ReactionFeedback {
	return &ReactionFeedback{transport: transport}
}

func (f *ReactionFeedback) Begin(ctx context.Context, msg *chat.Message) {
	if err := f.transport.React(ctx, msg.ChannelID, msg.ID, chat.EmojiLoading); err != nil {
		log.Printf("[Capture] Failed to add loading reaction to message %s: %v", msg.ID, err)
	}
}

func (f *ReactionFeedback) End(ctx context.Context, msg *chat.Message, res Result) {
	if res.Recorded > 0 {
		if err := f.transport.React(ctx, msg.ChannelID, msg.ID, chat.EmojiSuccess); err != nil {
			log.Printf("[Capture] Failed to add success reaction to message %s: %v", msg.ID, err)
		}
	}
	if err := f.transport.Unreact(ctx, msg.ChannelID, msg.ID, chat.EmojiLoading); err != nil {
		log.Printf("[Capture] Failed to remove loading reaction from message %s: %v", msg.ID, err)
	}
}
