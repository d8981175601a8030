// Package discord 基于 discordgo 的聊天传输层实现
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/discord2vrc/discord2vrc/internal/chat"
)

// historyPageSize Discord 单次拉取消息的上限
const historyPageSize = 100

// maxAttachmentSize 单个附件的下载上限
const maxAttachmentSize = 64 << 20

// session 传输层用到的 discordgo 方法，便于测试替换
type session interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionRemove(channelID, messageID, emojiID, userID string, options ...discordgo.RequestOption) error
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

// Transport chat.Transport 的 Discord 实现
type Transport struct {
	session    session
	httpClient *http.Client

	guildMu    sync.RWMutex
	guildNames map[string]string
}

var _ chat.Transport = (*Transport)(nil)

// NewTransport 创建传输层
func NewTransport(s session, httpClient *http.Client) *Transport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Transport{
		session:    s,
		httpClient: httpClient,
		guildNames: make(map[string]string),
	}
}

// FetchAttachment 下载附件内容
func (t *Transport) FetchAttachment(ctx context.Context, attachment chat.Attachment) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attachment.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrTransportUnavailable, err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", chat.ErrAttachmentNotFound, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", chat.ErrTransportUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrTransportUnavailable, err)
	}
	if len(data) > maxAttachmentSize {
		return nil, fmt.Errorf("%w: attachment exceeds %d bytes", chat.ErrTransportUnavailable, maxAttachmentSize)
	}
	return data, nil
}

// History 分页拉取最近 limit 条消息，按时间从新到旧
func (t *Transport) History(ctx context.Context, channelID string, limit int) ([]*chat.Message, error) {
	messages := make([]*chat.Message, 0, limit)
	before := ""
	for len(messages) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := limit - len(messages)
		if page > historyPageSize {
			page = historyPageSize
		}

		batch, err := t.session.ChannelMessages(channelID, page, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, wrapRESTError(err)
		}
		for _, m := range batch {
			messages = append(messages, ConvertMessage(m))
		}
		if len(batch) < page {
			break
		}
		before = batch[len(batch)-1].ID
	}
	return messages, nil
}

func (t *Transport) React(ctx context.Context, channelID, messageID, emoji string) error {
	return wrapRESTError(t.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)))
}

func (t *Transport) Unreact(ctx context.Context, channelID, messageID, emoji string) error {
	return wrapRESTError(t.session.MessageReactionRemove(channelID, messageID, emoji, "@me", discordgo.WithContext(ctx)))
}

func (t *Transport) Reply(ctx context.Context, channelID, messageID, content string) error {
	_, err := t.session.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
		MessageID: messageID,
		ChannelID: channelID,
	}, discordgo.WithContext(ctx))
	return wrapRESTError(err)
}

func (t *Transport) Send(ctx context.Context, channelID, content string) (string, error) {
	msg, err := t.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrapRESTError(err)
	}
	return msg.ID, nil
}

func (t *Transport) Delete(ctx context.Context, channelID, messageID string) error {
	return wrapRESTError(t.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

// Channel 查询频道及所属服务器名称，服务器名称按 ID 缓存
func (t *Transport) Channel(ctx context.Context, channelID string) (*chat.ChannelInfo, error) {
	ch, err := t.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapRESTError(err)
	}

	info := &chat.ChannelInfo{ID: ch.ID, Name: ch.Name, GuildID: ch.GuildID}
	if ch.GuildID == "" {
		return info, nil
	}

	t.guildMu.RLock()
	name, ok := t.guildNames[ch.GuildID]
	t.guildMu.RUnlock()
	if !ok {
		guild, err := t.session.Guild(ch.GuildID, discordgo.WithContext(ctx))
		if err != nil {
			log.Printf("[Discord] Failed to resolve guild %s: %v", ch.GuildID, err)
			return info, nil
		}
		name = guild.Name
		t.guildMu.Lock()
		t.guildNames[ch.GuildID] = name
		t.guildMu.Unlock()
	}
	info.GuildName = name
	return info, nil
}

// ConvertMessage 把 discordgo 消息转换为 chat.Message
func ConvertMessage(m *discordgo.Message) *chat.Message {
	msg := &chat.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if m.Author != nil {
		msg.Author = chat.Author{
			ID:            m.Author.ID,
			Name:          m.Author.Username,
			Discriminator: m.Author.Discriminator,
			Bot:           m.Author.Bot,
		}
	}

	for _, att := range m.Attachments {
		id, err := strconv.ParseInt(att.ID, 10, 64)
		if err != nil {
			log.Printf("[Discord] Skipping attachment with non-numeric id %q on message %s", att.ID, m.ID)
			continue
		}
		msg.Attachments = append(msg.Attachments, chat.Attachment{
			ID:       id,
			Filename: att.Filename,
			URL:      att.URL,
			Size:     att.Size,
		})
	}

	for _, r := range m.Reactions {
		if r.Emoji == nil {
			continue
		}
		emoji := r.Emoji.Name
		if r.Emoji.ID != "" {
			emoji = r.Emoji.APIName()
		}
		msg.Reactions = append(msg.Reactions, chat.Reaction{Emoji: emoji, Me: r.Me})
	}
	return msg
}

func wrapRESTError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return fmt.Errorf("%w: discord api status %d: %v", chat.ErrTransportUnavailable, restErr.Response.StatusCode, err)
	}
	return fmt.Errorf("%w: %v", chat.ErrTransportUnavailable, err)
}
