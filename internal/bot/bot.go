// Package bot 处理聊天消息：实时采集与操作员命令
package bot

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/discord2vrc/discord2vrc/config"
	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"github.com/discord2vrc/discord2vrc/internal/capture"
	"github.com/discord2vrc/discord2vrc/internal/chat"
	"github.com/discord2vrc/discord2vrc/internal/registry"
	"github.com/discord2vrc/discord2vrc/internal/worker"
)

const (
	// temporaryDelay 临时消息自动删除的延迟
	temporaryDelay = 3 * time.Second

	msgUnknownCommand  = "Unknown command"
	msgUnexpectedError = "Unexpected error, see console log for details"
)

// Registry 频道注册表
type Registry interface {
	Subscribe(ctx context.Context, info registry.ChannelInfo, alias string) (*models.Channel, error)
	Unsubscribe(ctx context.Context, channelID string) error
	Rename(ctx context.Context, channelID, alias string) (*models.Channel, error)
	Get(channelID string) (*models.Channel, bool)
}

// Capturer 采集流程
type Capturer interface {
	Handle(ctx context.Context, msg *chat.Message) (capture.Result, error)
	Rescan(ctx context.Context, channelID string, limit int) (capture.Result, error)
	Purge(ctx context.Context, channelID string) (int, error)
}

// Counter 图片计数
type Counter interface {
	Count(ctx context.Context, filter images.Filter) (int64, error)
}

// Bot 消息入口
type Bot struct {
	cfg       *config.Config
	transport chat.Transport
	registry  Registry
	capturer  Capturer
	counter   Counter
	pool      *worker.Pool

	selfID func() string
	// later 延迟执行，测试中替换为同步调用
	later func(d time.Duration, f func())

	commands map[string]command
}

// Option 配置 Bot
type Option func(*Bot)

// WithSelfID 设置机器人自身用户 ID 的来源
func WithSelfID(selfID func() string) Option {
	return func(b *Bot) { b.selfID = selfID }
}

// WithPool 设置执行消息处理的协程池，未设置时同步处理
func WithPool(pool *worker.Pool) Option {
	return func(b *Bot) { b.pool = pool }
}

// WithScheduler 替换延迟执行函数
func WithScheduler(later func(d time.Duration, f func())) Option {
	return func(b *Bot) { b.later = later }
}

// New 创建 Bot
func New(cfg *config.Config, transport chat.Transport, reg Registry, capturer Capturer, counter Counter, opts ...Option) *Bot {
	b := &Bot{
		cfg:       cfg,
		transport: transport,
		registry:  reg,
		capturer:  capturer,
		counter:   counter,
		selfID:    func() string { return "" },
		later: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.commands = b.commandTable()
	return b
}

// Listener 返回网关回调，消息被投递到协程池处理
func (b *Bot) Listener(ctx context.Context) func(*chat.Message) {
	return func(msg *chat.Message) {
		if b.pool == nil {
			b.Dispatch(ctx, msg)
			return
		}
		if !b.pool.Submit(func() { b.Dispatch(ctx, msg) }) {
			log.Printf("[Bot] Message %s in channel %s dropped, worker queue is full", msg.ID, msg.ChannelID)
		}
	}
}

// Dispatch 处理一条消息：操作员命令或图片采集
func (b *Bot) Dispatch(ctx context.Context, msg *chat.Message) {
	if msg.Author.ID != "" && msg.Author.ID == b.selfID() {
		return
	}

	if name, args, ok := parseCommand(b.cfg.DiscordCommandPrefix, msg.Content); ok {
		// 私信与非操作员的命令静默忽略
		if msg.GuildID == "" || !b.cfg.IsOwner(msg.Author.ID) {
			return
		}
		b.runCommand(ctx, msg, name, args)
		return
	}

	if msg.GuildID == "" || !msg.HasAttachments() {
		return
	}
	if _, err := b.capturer.Handle(ctx, msg); err != nil {
		log.Printf("[Bot] Failed to capture message %s in channel %s: %v", msg.ID, msg.ChannelID, err)
	}
}

func (b *Bot) runCommand(ctx context.Context, msg *chat.Message, name string, args []string) {
	cmd, ok := b.commands[name]
	if !ok {
		b.deleteMessage(ctx, msg)
		b.sendTemporary(ctx, msg.ChannelID, msgUnknownCommand)
		return
	}

	log.Printf("[Bot] Command %q from %s in channel %s", name, msg.Author.ID, msg.ChannelID)
	err := cmd(ctx, msg, args)

	var userErr *userError
	switch {
	case err == nil:
	case errors.As(err, &userErr):
		b.reply(ctx, msg, userErr.msg)
	default:
		log.Printf("[Bot] Command %q in channel %s failed: %v", name, msg.ChannelID, err)
		b.deleteMessage(ctx, msg)
		b.sendTemporary(ctx, msg.ChannelID, msgUnexpectedError)
	}
}

// userError 回复给操作员的可预期错误
type userError struct {
	msg string
}

func (e *userError) Error() string { return e.msg }

func userErrorf(msg string) error {
	return &userError{msg: msg}
}

func (b *Bot) reply(ctx context.Context, msg *chat.Message, content string) {
	if err := b.transport.Reply(ctx, msg.ChannelID, msg.ID, content); err != nil {
		log.Printf("[Bot] Failed to reply to message %s: %v", msg.ID, err)
	}
}

func (b *Bot) deleteMessage(ctx context.Context, msg *chat.Message) {
	if err := b.transport.Delete(ctx, msg.ChannelID, msg.ID); err != nil {
		log.Printf("[Bot] Failed to delete message %s: %v", msg.ID, err)
	}
}

// sendTemporary 发送一条几秒后自动删除的消息
func (b *Bot) sendTemporary(ctx context.Context, channelID, content string) {
	id, err := b.transport.Send(ctx, channelID, content)
	if err != nil {
		log.Printf("[Bot] Failed to send message to channel %s: %v", channelID, err)
		return
	}
	b.later(temporaryDelay, func() {
		if err := b.transport.Delete(context.WithoutCancel(ctx), channelID, id); err != nil {
			log.Printf("[Bot] Failed to delete temporary message %s: %v", id, err)
		}
	})
}
