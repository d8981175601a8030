package bot

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"github.com/discord2vrc/discord2vrc/internal/chat"
	"github.com/discord2vrc/discord2vrc/internal/registry"
)

type command func(ctx context.Context, msg *chat.Message, args []string) error

func (b *Bot) commandTable() map[string]command {
	return map[string]command{
		"subscribe":   b.subscribe,
		"unsubscribe": b.unsubscribe,
		"alias":       b.alias,
		"rescan":      b.rescan,
		"purge":       b.purge,
		"info":        b.info,
		"clear":       b.clear,
		"ping":        b.ping,
	}
}

// registryError 把注册表错误转换为回复内容
func registryError(err error, alias string) error {
	switch {
	case errors.Is(err, registry.ErrAliasConflict):
		return userErrorf(fmt.Sprintf("Alias `%s` is already used by another channel", alias))
	case errors.Is(err, registry.ErrInvalidAlias):
		return userErrorf(fmt.Sprintf("Invalid alias `%s`", alias))
	case errors.Is(err, registry.ErrNotSubscribed):
		return userErrorf("This channel is not subscribed")
	}
	return err
}

func (b *Bot) subscribe(ctx context.Context, msg *chat.Message, args []string) error {
	var a aliasArgs
	if err := decodeArgs([]string{"alias"}, args, &a); err != nil {
		return userErrorf("Usage: subscribe [alias]")
	}

	info, err := b.transport.Channel(ctx, msg.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to look up channel %s: %w", msg.ChannelID, err)
	}
	ch, err := b.registry.Subscribe(ctx, registry.ChannelInfo{
		ChannelID: msg.ChannelID,
		Name:      info.Name,
		Guild:     info.GuildName,
		GuildID:   msg.GuildID,
	}, a.Alias)
	if err != nil {
		alias := a.Alias
		if alias == "" {
			alias = info.Name
		}
		return registryError(err, alias)
	}

	b.reply(ctx, msg, fmt.Sprintf("Subscribed this channel as `%s`", ch.Alias))
	return nil
}

func (b *Bot) unsubscribe(ctx context.Context, msg *chat.Message, args []string) error {
	if err := b.registry.Unsubscribe(ctx, msg.ChannelID); err != nil {
		return registryError(err, "")
	}
	b.reply(ctx, msg, "Unsubscribed this channel")
	return nil
}

func (b *Bot) alias(ctx context.Context, msg *chat.Message, args []string) error {
	var a aliasArgs
	if err := decodeArgs([]string{"alias"}, args, &a); err != nil || a.Alias == "" {
		return userErrorf("Usage: alias <new_alias>")
	}
	ch, err := b.registry.Rename(ctx, msg.ChannelID, a.Alias)
	if err != nil {
		return registryError(err, a.Alias)
	}
	b.reply(ctx, msg, fmt.Sprintf("Channel alias set to `%s`", ch.Alias))
	return nil
}

// limitArg 解析可选的 limit 参数，限制在配置的最大值内
func (b *Bot) limitArg(args []string, name string) (int, error) {
	l := limitArgs{Limit: b.cfg.RescanDefaultLimit}
	if err := decodeArgs([]string{"limit"}, args, &l); err != nil || l.Limit <= 0 {
		return 0, userErrorf(fmt.Sprintf("Usage: %s [limit]", name))
	}
	if b.cfg.RescanMaxLimit > 0 && l.Limit > b.cfg.RescanMaxLimit {
		l.Limit = b.cfg.RescanMaxLimit
	}
	return l.Limit, nil
}

func (b *Bot) rescan(ctx context.Context, msg *chat.Message, args []string) error {
	limit, err := b.limitArg(args, "rescan")
	if err != nil {
		return err
	}
	if ch, ok := b.registry.Get(msg.ChannelID); !ok || !ch.Subscribed {
		return userErrorf("This channel is not subscribed")
	}

	b.deleteMessage(ctx, msg)
	progressID, err := b.transport.Send(ctx, msg.ChannelID, fmt.Sprintf("Rescanning the last %d messages for images", limit))
	if err != nil {
		return fmt.Errorf("failed to send progress message: %w", err)
	}

	// 命令消息已删除，历史中不会重复计入
	res, err := b.capturer.Rescan(ctx, msg.ChannelID, limit)
	if delErr := b.transport.Delete(ctx, msg.ChannelID, progressID); delErr != nil {
		log.Printf("[Bot] Failed to delete progress message %s: %v", progressID, delErr)
	}
	if err != nil {
		return err
	}

	b.sendTemporary(ctx, msg.ChannelID, fmt.Sprintf("Rescan complete, added %d images", res.Captured))
	return nil
}

func (b *Bot) purge(ctx context.Context, msg *chat.Message, args []string) error {
	n, err := b.capturer.Purge(ctx, msg.ChannelID)
	if errors.Is(err, registry.ErrChannelUnknown) {
		return userErrorf("This channel is not subscribed")
	}
	if err != nil {
		return err
	}
	b.reply(ctx, msg, fmt.Sprintf("Purged %d images from this channel", n))
	return nil
}

func (b *Bot) info(ctx context.Context, msg *chat.Message, args []string) error {
	ch, ok := b.registry.Get(msg.ChannelID)
	if !ok {
		return userErrorf("This channel is not subscribed")
	}

	id := ch.ID
	active, err := b.counter.Count(ctx, images.Active(&id))
	if err != nil {
		return err
	}
	total, err := b.counter.Count(ctx, images.Filter{ChannelRefID: &id})
	if err != nil {
		return err
	}

	state := "no"
	if ch.Subscribed {
		state = "yes"
	}
	b.reply(ctx, msg, fmt.Sprintf("Alias: `%s`\nSubscribed: %s\nImages: %d (%d deleted)",
		ch.Alias, state, active, total-active))
	return nil
}

// clear 删除最近 limit 条消息中机器人自己的消息与表情回应
func (b *Bot) clear(ctx context.Context, msg *chat.Message, args []string) error {
	limit, err := b.limitArg(args, "clear")
	if err != nil {
		return err
	}

	history, err := b.transport.History(ctx, msg.ChannelID, limit)
	if err != nil {
		return err
	}
	self := b.selfID()
	for _, m := range history {
		if m.ID == msg.ID {
			continue
		}
		if self != "" && m.Author.ID == self {
			if err := b.transport.Delete(ctx, m.ChannelID, m.ID); err != nil {
				return err
			}
			continue
		}
		for _, r := range m.Reactions {
			if !r.Me {
				continue
			}
			if err := b.transport.Unreact(ctx, m.ChannelID, m.ID, r.Emoji); err != nil {
				return err
			}
		}
	}

	b.deleteMessage(ctx, msg)
	return nil
}

func (b *Bot) ping(ctx context.Context, msg *chat.Message, args []string) error {
	b.deleteMessage(ctx, msg)
	b.sendTemporary(ctx, msg.ChannelID, "pong!")
	return nil
}
