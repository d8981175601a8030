package bot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/discord2vrc/discord2vrc/config"
	"github.com/discord2vrc/discord2vrc/database/dbtest"
	"github.com/discord2vrc/discord2vrc/database/repo/channels"
	"github.com/discord2vrc/discord2vrc/database/repo/images"
	"github.com/discord2vrc/discord2vrc/internal/capture"
	"github.com/discord2vrc/discord2vrc/internal/chat"
	"github.com/discord2vrc/discord2vrc/internal/chat/chattest"
	imagex "github.com/discord2vrc/discord2vrc/internal/image"
	"github.com/discord2vrc/discord2vrc/internal/registry"
	"github.com/discord2vrc/discord2vrc/internal/worker"
	"github.com/discord2vrc/discord2vrc/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner  = "owner"
	selfID = "bot"
	guild  = "g1"
)

type env struct {
	bot       *Bot
	registry  *registry.Registry
	images    *images.Repository
	transport *chattest.Transport
}

func testConfig() *config.Config {
	return &config.Config{
		DiscordCommandPrefix: "!",
		DiscordOwners:        []string{owner},
		RescanDefaultLimit:   100,
		RescanMaxLimit:       1000,
	}
}

func immediate(d time.Duration, f func()) { f() }

func setup(t *testing.T) *env {
	db := dbtest.New(t)
	reg := registry.New(channels.NewRepository(db))
	require.NoError(t, reg.Reload(context.Background()))
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	tr := chattest.New()
	repo := images.NewRepository(db)
	pipeline := capture.NewPipeline(reg, repo, tr, imagex.NewStdTranscoder(), store, "uploads",
		capture.WithFeedback(capture.NewReactionFeedback(tr)),
		capture.WithSelfID(func() string { return selfID }))

	b := New(testConfig(), tr, reg, pipeline, repo,
		WithSelfID(func() string { return selfID }),
		WithScheduler(immediate),
	)
	return &env{bot: b, registry: reg, images: repo, transport: tr}
}

func pngBlob(t *testing.T) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func commandMsg(id, channelID, content string) *chat.Message {
	return &chat.Message{
		ID:        id,
		ChannelID: channelID,
		GuildID:   guild,
		Author:    chat.Author{ID: owner, Name: "op"},
		Content:   content,
	}
}

func upload(id, channelID string, attachmentID int64) *chat.Message {
	return &chat.Message{
		ID:          id,
		ChannelID:   channelID,
		GuildID:     guild,
		Author:      chat.Author{ID: "user-" + id, Name: "user"},
		CreatedAt:   time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		Attachments: []chat.Attachment{{ID: attachmentID, Filename: "photo.png"}},
	}
}

func (e *env) replies() []string {
	out := make([]string, 0, len(e.transport.Replies))
	for _, r := range e.transport.Replies {
		out = append(out, r.Value)
	}
	return out
}

func (e *env) deletedIDs() []string {
	out := make([]string, 0, len(e.transport.Deleted))
	for _, d := range e.transport.Deleted {
		out = append(out, d.MessageID)
	}
	return out
}

// TestIgnoresNonOwnersAndDMs 测试非操作员与私信的命令被忽略
func TestIgnoresNonOwnersAndDMs(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	msg := commandMsg("m1", "c1", "!subscribe")
	msg.Author.ID = "stranger"
	e.bot.Dispatch(ctx, msg)

	dm := commandMsg("m2", "c1", "!subscribe")
	dm.GuildID = ""
	e.bot.Dispatch(ctx, dm)

	assert.Empty(t, e.transport.Replies)
	assert.Empty(t, e.transport.Sent)
	assert.Empty(t, e.registry.Channels())
}

// TestSubscribeCommand 测试订阅、默认别名与别名冲突
func TestSubscribeCommand(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.transport.Channels["c2"] = &chat.ChannelInfo{ID: "c2", Name: "memes", GuildName: "Guild"}

	e.bot.Dispatch(ctx, commandMsg("m1", "c1", "!subscribe pics"))
	e.bot.Dispatch(ctx, commandMsg("m2", "c2", "!subscribe"))
	e.bot.Dispatch(ctx, commandMsg("m3", "c3", "!subscribe pics"))

	assert.Equal(t, []string{
		"Subscribed this channel as `pics`",
		"Subscribed this channel as `memes`",
		"Alias `pics` is already used by another channel",
	}, e.replies())
	assert.True(t, e.registry.IsActive("c1"))
	assert.True(t, e.registry.IsActive("c2"))
	assert.False(t, e.registry.IsActive("c3"))

	ch, ok := e.registry.Get("c2")
	require.True(t, ok)
	assert.Equal(t, "Guild", ch.Guild)
	assert.Equal(t, guild, ch.GuildID)
}

// TestAliasAndUnsubscribeCommands 测试改名与取消订阅
func TestAliasAndUnsubscribeCommands(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	e.bot.Dispatch(ctx, commandMsg("m1", "c1", "!alias newname"))
	e.bot.Dispatch(ctx, commandMsg("m2", "c1", "!subscribe pics"))
	e.bot.Dispatch(ctx, commandMsg("m3", "c1", "!alias"))
	e.bot.Dispatch(ctx, commandMsg("m4", "c1", "!alias art"))
	e.bot.Dispatch(ctx, commandMsg("m5", "c1", "!unsubscribe"))
	e.bot.Dispatch(ctx, commandMsg("m6", "c1", "!unsubscribe"))

	assert.Equal(t, []string{
		"This channel is not subscribed",
		"Subscribed this channel as `pics`",
		"Usage: alias <new_alias>",
		"Channel alias set to `art`",
		"Unsubscribed this channel",
		"This channel is not subscribed",
	}, e.replies())
	_, ok := e.registry.Resolve("art")
	assert.False(t, ok)
}

// TestUnknownCommand 测试未知命令
func TestUnknownCommand(t *testing.T) {
	e := setup(t)
	e.bot.Dispatch(context.Background(), commandMsg("m1", "c1", "!nope"))

	assert.Equal(t, []string{"Unknown command"}, e.transport.SentContents())
	assert.Equal(t, []string{"m1", "sent-1"}, e.deletedIDs())
}

// TestLiveCapture 测试实时采集与忽略自身消息
func TestLiveCapture(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.bot.Dispatch(ctx, commandMsg("m1", "c1", "!subscribe pics"))
	e.transport.Blobs[100] = pngBlob(t)
	e.transport.Blobs[101] = pngBlob(t)

	e.bot.Dispatch(ctx, upload("m2", "c1", 100))
	own := upload("m3", "c1", 101)
	own.Author.ID = selfID
	e.bot.Dispatch(ctx, own)

	assert.Equal(t, []string{chat.EmojiLoading, chat.EmojiSuccess}, e.transport.ReactionsOn("m2"))
	assert.Empty(t, e.transport.ReactionsOn("m3"))

	_, err := e.images.GetByAttachmentID(ctx, 100)
	require.NoError(t, err)
	_, err = e.images.GetByAttachmentID(ctx, 101)
	assert.True(t, images.IsNotFound(err))
}

// TestRescanCommand 测试回扫的进度消息与结果
func TestRescanCommand(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.bot.Dispatch(ctx, commandMsg("m0", "c1", "!subscribe pics"))
	e.transport.Blobs[1] = pngBlob(t)
	e.transport.Blobs[2] = pngBlob(t)

	// 机器人自己发送的消息不回扫
	botMsg := upload("h3", "c1", 3)
	botMsg.Author.ID = selfID
	botMsg.Author.Bot = true
	e.transport.HistoryByChannel["c1"] = []*chat.Message{botMsg, upload("h2", "c1", 2), upload("h1", "c1", 1)}

	e.bot.Dispatch(ctx, commandMsg("m1", "c1", "!rescan 10"))

	assert.Equal(t, []string{
		"Rescanning the last 10 messages for images",
		"Rescan complete, added 2 images",
	}, e.transport.SentContents())
	assert.Equal(t, []string{"m1", "sent-1", "sent-2"}, e.deletedIDs())

	n, err := e.images.Count(ctx, images.Active(nil))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// 再次回扫不新增
	e.bot.Dispatch(ctx, commandMsg("m2", "c1", "!rescan"))
	assert.Equal(t, "Rescan complete, added 0 images", e.transport.SentContents()[3])
}

// TestRescanArguments 测试回扫参数校验与上限
func TestRescanArguments(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	e.bot.Dispatch(ctx, commandMsg("m1", "c1", "!rescan"))
	e.bot.Dispatch(ctx, commandMsg("m2", "c1", "!subscribe pics"))
	e.bot.Dispatch(ctx, commandMsg("m3", "c1", "!rescan abc"))
	e.bot.Dispatch(ctx, commandMsg("m4", "c1", "!rescan 1 2"))
	e.bot.Dispatch(ctx, commandMsg("m5", "c1", "!rescan 5000"))

	assert.Equal(t, []string{
		"This channel is not subscribed",
		"Subscribed this channel as `pics`",
		"Usage: rescan [limit]",
		"Usage: rescan [limit]",
	}, e.replies())
	assert.Equal(t, "Rescanning the last 1000 messages for images", e.transport.SentContents()[0])
}

// TestPurgeAndInfoCommands 测试清除与频道信息
func TestPurgeAndInfoCommands(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.bot.Dispatch(ctx, commandMsg("m0", "c1", "!subscribe pics"))
	e.transport.Blobs[7] = pngBlob(t)
	e.bot.Dispatch(ctx, upload("m1", "c1", 7))

	e.bot.Dispatch(ctx, commandMsg("m2", "c1", "!info"))
	e.bot.Dispatch(ctx, commandMsg("m3", "c1", "!purge"))
	e.bot.Dispatch(ctx, commandMsg("m4", "c1", "!info"))
	e.bot.Dispatch(ctx, commandMsg("m5", "c9", "!purge"))

	assert.Equal(t, []string{
		"Subscribed this channel as `pics`",
		"Alias: `pics`\nSubscribed: yes\nImages: 1 (0 deleted)",
		"Purged 1 images from this channel",
		"Alias: `pics`\nSubscribed: yes\nImages: 0 (1 deleted)",
		"This channel is not subscribed",
	}, e.replies())
}

// TestClearCommand 测试删除自身消息与表情回应
func TestClearCommand(t *testing.T) {
	e := setup(t)
	e.transport.HistoryByChannel["c1"] = []*chat.Message{
		{ID: "b1", ChannelID: "c1", Author: chat.Author{ID: selfID}},
		{ID: "u1", ChannelID: "c1", Author: chat.Author{ID: "u"}, Reactions: []chat.Reaction{
			{Emoji: chat.EmojiSuccess, Me: true},
			{Emoji: "👍", Me: false},
		}},
	}

	e.bot.Dispatch(context.Background(), commandMsg("m1", "c1", "!clear 50"))

	assert.Equal(t, []string{"b1", "m1"}, e.deletedIDs())
	require.Len(t, e.transport.Unreacts, 1)
	assert.Equal(t, chattest.Call{ChannelID: "c1", MessageID: "u1", Value: chat.EmojiSuccess}, e.transport.Unreacts[0])
}

// TestPingCommand 测试 ping
func TestPingCommand(t *testing.T) {
	e := setup(t)
	e.bot.Dispatch(context.Background(), commandMsg("m1", "c1", "!PING"))

	assert.Equal(t, []string{"pong!"}, e.transport.SentContents())
	assert.Equal(t, []string{"m1", "sent-1"}, e.deletedIDs())
}

type failingCapturer struct{}

func (failingCapturer) Handle(ctx context.Context, msg *chat.Message) (capture.Result, error) {
	return capture.Result{}, errors.New("boom")
}

func (failingCapturer) Rescan(ctx context.Context, channelID string, limit int) (capture.Result, error) {
	return capture.Result{}, errors.New("boom")
}

func (failingCapturer) Purge(ctx context.Context, channelID string) (int, error) {
	return 0, errors.New("boom")
}

// TestUnexpectedError 测试内部错误的统一回复
func TestUnexpectedError(t *testing.T) {
	e := setup(t)
	b := New(testConfig(), e.transport, e.registry, failingCapturer{}, e.images, WithScheduler(immediate))

	b.Dispatch(context.Background(), commandMsg("m1", "c1", "!purge"))

	assert.Equal(t, []string{msgUnexpectedError}, e.transport.SentContents())
	assert.Equal(t, []string{"m1", "sent-1"}, e.deletedIDs())
}

// TestListenerUsesPool 测试消息投递到协程池
func TestListenerUsesPool(t *testing.T) {
	e := setup(t)
	pool := worker.NewPool(1, 10)
	b := New(testConfig(), e.transport, e.registry, failingCapturer{}, e.images,
		WithPool(pool), WithScheduler(immediate))

	b.Listener(context.Background())(commandMsg("m1", "c1", "!ping"))
	pool.Stop()

	assert.Equal(t, []string{"pong!"}, e.transport.SentContents())
	assert.EqualValues(t, 1, pool.GetStats().Executed)
}

// TestParseCommand 测试命令拆分
func TestParseCommand(t *testing.T) {
	name, args, ok := parseCommand("!", "!Rescan  20 ")
	assert.True(t, ok)
	assert.Equal(t, "rescan", name)
	assert.Equal(t, []string{"20"}, args)

	_, _, ok = parseCommand("!", "hello !rescan")
	assert.False(t, ok)
	_, _, ok = parseCommand("!", "!")
	assert.False(t, ok)

	var l limitArgs
	require.NoError(t, decodeArgs([]string{"limit"}, []string{"42"}, &l))
	assert.Equal(t, 42, l.Limit)
	assert.Error(t, decodeArgs([]string{"limit"}, []string{"x"}, &l))
	assert.Error(t, decodeArgs([]string{"limit"}, []string{"1", "2"}, &l))
}
