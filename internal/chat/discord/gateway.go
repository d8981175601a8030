package discord

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/discord2vrc/discord2vrc/internal/chat"
)

// Gateway 维护与 Discord 的网关连接并分发新消息
type Gateway struct {
	session   *discordgo.Session
	transport *Transport

	mu     sync.RWMutex
	selfID string
}

// NewGateway 使用 bot token 创建网关连接（尚未打开）
func NewGateway(token string) (*Gateway, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	return &Gateway{
		session:   s,
		transport: NewTransport(s, nil),
	}, nil
}

// Transport 返回基于同一会话的传输层
func (g *Gateway) Transport() *Transport {
	return g.transport
}

// SelfID 机器人自身的用户 ID，Ready 事件之前为空
func (g *Gateway) SelfID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.selfID
}

// Run 打开网关连接并阻塞直到 ctx 结束
func (g *Gateway) Run(ctx context.Context, onMessage func(*chat.Message)) error {
	removeReady := g.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		g.mu.Lock()
		g.selfID = r.User.ID
		g.mu.Unlock()
		log.Printf("[Discord] Logged in as %s#%s (%s)", r.User.Username, r.User.Discriminator, r.User.ID)
	})
	defer removeReady()

	removeMessage := g.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if ctx.Err() != nil || m.Message == nil {
			return
		}
		onMessage(ConvertMessage(m.Message))
	})
	defer removeMessage()

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("discord open connection: %w", err)
	}
	log.Println("[Discord] Gateway connected")

	<-ctx.Done()

	log.Println("[Discord] Closing gateway connection...")
	if err := g.session.Close(); err != nil {
		return fmt.Errorf("discord close connection: %w", err)
	}
	return nil
}
