package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strconv"
	"time"

	"github.com/discord2vrc/discord2vrc/cache"
	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/discord2vrc/discord2vrc/internal/chat"
	"github.com/discord2vrc/discord2vrc/internal/image"
	"github.com/discord2vrc/discord2vrc/internal/metrics"
	"github.com/discord2vrc/discord2vrc/internal/registry"
	"github.com/discord2vrc/discord2vrc/storage"
	"github.com/discord2vrc/discord2vrc/utils"
	"github.com/discord2vrc/discord2vrc/utils/validator"
	"gorm.io/gorm"
)

// ImageStore 图片记录持久化接口
type ImageStore interface {
	GetByAttachmentID(ctx context.Context, attachmentID int64) (*models.Image, error)
	CreateIfAbsent(ctx context.Context, image *models.Image) (*models.Image, bool, error)
	Undelete(ctx context.Context, attachmentID int64) (bool, error)
	SoftDeleteByChannel(ctx context.Context, channelRefID uint) ([]int64, error)
}

// Channels 频道注册表查询接口
type Channels interface {
	Get(channelID string) (*models.Channel, bool)
	IsActive(channelID string) bool
}

// Result 单次处理的统计
type Result struct {
	// Recorded 已记录的图片数（新采集与重新发现之和）
	Recorded int
	// Captured 新采集的图片数
	Captured int
	// Undeleted 已存在记录的图片数
	Undeleted int
	// Failed 下载或解码失败被跳过的图片数
	Failed int
}

// Add 累加统计
func (r *Result) Add(o Result) {
	r.Recorded += o.Recorded
	r.Captured += o.Captured
	r.Undeleted += o.Undeleted
	r.Failed += o.Failed
}

// Pipeline 采集流程：去重、下载、转码、写入存储并持久化记录
type Pipeline struct {
	channels   Channels
	images     ImageStore
	transport  chat.Transport
	transcoder image.Transcoder
	storage    storage.Provider
	cache      cache.Provider

	uploadsFolder string
	feedback      Feedback
	now           func() time.Time
	selfID        func() string
}

// Option 配置 Pipeline
type Option func(*Pipeline)

// WithCache 设置需要失效的图片缓存
func WithCache(c cache.Provider) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithFeedback 设置处理消息前后的用户可见反馈
func WithFeedback(f Feedback) Option {
	return func(p *Pipeline) { p.feedback = f }
}

// WithSelfID 设置机器人自身的用户 ID，重新扫描时跳过自己发送的消息
func WithSelfID(selfID func() string) Option {
	return func(p *Pipeline) { p.selfID = selfID }
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline 创建采集流程
func NewPipeline(channels Channels, images ImageStore, transport chat.Transport, transcoder image.Transcoder, store storage.Provider, uploadsFolder string, opts ...Option) *Pipeline {
	p := &Pipeline{
		channels:      channels,
		images:        images,
		transport:     transport,
		transcoder:    transcoder,
		storage:       store,
		uploadsFolder: uploadsFolder,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// UploadPath 附件的存储路径，仅由附件 ID 决定
func (p *Pipeline) UploadPath(attachmentID int64) string {
	return path.Join(p.uploadsFolder, strconv.FormatInt(attachmentID, 10)+".jpg")
}

// Handle 处理一条实时消息，携带附件时在前后触发反馈
func (p *Pipeline) Handle(ctx context.Context, msg *chat.Message) (Result, error) {
	if !msg.HasAttachments() || !p.channels.IsActive(msg.ChannelID) {
		return Result{}, nil
	}

	if p.feedback != nil {
		p.feedback.Begin(ctx, msg)
	}
	res, err := p.ProcessMessage(ctx, msg)
	if p.feedback != nil {
		p.feedback.End(ctx, msg, res)
	}
	return res, err
}

// ProcessMessage 按附件顺序处理消息中的图片，频道未激活时不做任何事
// 存储层错误立即返回，下载失败的附件回复诊断信息后跳过
func (p *Pipeline) ProcessMessage(ctx context.Context, msg *chat.Message) (Result, error) {
	var res Result

	if !p.channels.IsActive(msg.ChannelID) {
		return res, nil
	}
	channel, ok := p.channels.Get(msg.ChannelID)
	if !ok {
		return res, nil
	}
	metrics.CaptureMessages.Inc()

	for _, att := range msg.Attachments {
		if !validator.IsImageFilename(att.Filename) {
			metrics.CaptureImages.WithLabelValues(metrics.ResultSkipped).Inc()
			continue
		}

		existing, err := p.images.GetByAttachmentID(ctx, att.ID)
		switch {
		case err == nil:
			if err := p.undelete(ctx, existing); err != nil {
				return res, err
			}
			res.Recorded++
			res.Undeleted++
			metrics.CaptureImages.WithLabelValues(metrics.ResultUndeleted).Inc()
			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return res, fmt.Errorf("failed to look up attachment %d: %w", att.ID, err)
		}

		outcome, err := p.capture(ctx, msg, channel, att)
		if err != nil {
			return res, err
		}
		switch outcome {
		case outcomeFailed:
			res.Failed++
			metrics.CaptureImages.WithLabelValues(metrics.ResultFailed).Inc()
		case outcomeExisting:
			res.Recorded++
			res.Undeleted++
			metrics.CaptureImages.WithLabelValues(metrics.ResultUndeleted).Inc()
		default:
			res.Recorded++
			res.Captured++
			metrics.CaptureImages.WithLabelValues(metrics.ResultCaptured).Inc()
		}
	}

	utils.LogIfDevf("[Capture] Message %s in channel %s: recorded=%d captured=%d failed=%d",
		msg.ID, msg.ChannelID, res.Recorded, res.Captured, res.Failed)
	return res, nil
}

// outcome 单个附件的采集结果
type outcome int

const (
	outcomeCaptured outcome = iota
	// outcomeExisting 并发写入时记录已由其他协程创建
	outcomeExisting
	outcomeFailed
)

// capture 下载并保存新附件；传输或解码失败时返回 outcomeFailed 且不返回错误
func (p *Pipeline) capture(ctx context.Context, msg *chat.Message, channel *models.Channel, att chat.Attachment) (outcome, error) {
	data, err := p.transport.FetchAttachment(ctx, att)
	if err != nil {
		if errors.Is(err, chat.ErrAttachmentNotFound) || errors.Is(err, chat.ErrTransportUnavailable) {
			p.diagnose(ctx, msg, fmt.Sprintf("Unable to download image %d: %v", att.ID, err))
			return outcomeFailed, nil
		}
		return outcomeFailed, err
	}

	encoded, err := p.transcoder.Transcode(data)
	if err != nil {
		p.diagnose(ctx, msg, fmt.Sprintf("Unable to process image %d: %v", att.ID, err))
		return outcomeFailed, nil
	}

	uploadPath := p.UploadPath(att.ID)
	exists, err := p.storage.Exists(ctx, uploadPath)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to check storage for %s: %w", uploadPath, err)
	}
	// 路径只由附件 ID 决定，已存在的文件不再覆盖
	if !exists {
		if err := p.storage.SaveWithContext(ctx, uploadPath, bytes.NewReader(encoded)); err != nil {
			return outcomeFailed, fmt.Errorf("failed to save %s: %w", uploadPath, err)
		}
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = p.now()
	}
	record := &models.Image{
		Filename:     att.Filename,
		Filepath:     uploadPath,
		AttachmentID: att.ID,
		ChannelRefID: channel.ID,
		Username:     msg.Author.Name,
		UserNum:      msg.Author.Discriminator,
		UserID:       msg.Author.ID,
		MessageID:    msg.ID,
		CreatedAt:    createdAt.UTC(),
		RetrievedAt:  p.now().UTC(),
	}
	saved, created, err := p.images.CreateIfAbsent(ctx, record)
	if err != nil {
		return outcomeFailed, err
	}
	if !created {
		// 并发采集同一附件时由先写入者保留归属信息
		if err := p.undelete(ctx, saved); err != nil {
			return outcomeFailed, err
		}
		return outcomeExisting, nil
	}

	log.Printf("[Capture] Saved attachment %d from %s in channel %s",
		att.ID, utils.SanitizeLogUsername(msg.Author.Name), channel.Alias)
	return outcomeCaptured, nil
}

func (p *Pipeline) undelete(ctx context.Context, img *models.Image) error {
	if !img.Deleted {
		return nil
	}
	changed, err := p.images.Undelete(ctx, img.AttachmentID)
	if err != nil {
		return err
	}
	if changed {
		p.invalidate(ctx, img.AttachmentID)
	}
	return nil
}

// Rescan 按发送顺序（从旧到新）重新处理频道最近 limit 条消息
func (p *Pipeline) Rescan(ctx context.Context, channelID string, limit int) (Result, error) {
	var total Result
	if limit <= 0 {
		return total, nil
	}
	if !p.channels.IsActive(channelID) {
		return total, registry.ErrNotSubscribed
	}

	history, err := p.transport.History(ctx, channelID, limit)
	if err != nil {
		return total, fmt.Errorf("failed to fetch history of channel %s: %w", channelID, err)
	}

	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if p.isSelf(msg) || !msg.HasAttachments() {
			continue
		}
		res, err := p.Handle(ctx, msg)
		total.Add(res)
		if err != nil {
			return total, err
		}
	}

	log.Printf("[Capture] Rescan of channel %s finished: %d messages, captured=%d recorded=%d failed=%d",
		channelID, len(history), total.Captured, total.Recorded, total.Failed)
	return total, nil
}

func (p *Pipeline) isSelf(msg *chat.Message) bool {
	if p.selfID == nil || msg.Author.ID == "" {
		return false
	}
	return msg.Author.ID == p.selfID()
}

// Purge 软删除频道下所有图片，不删除文件，不影响其他频道
func (p *Pipeline) Purge(ctx context.Context, channelID string) (int, error) {
	channel, ok := p.channels.Get(channelID)
	if !ok {
		return 0, registry.ErrChannelUnknown
	}

	ids, err := p.images.SoftDeleteByChannel(ctx, channel.ID)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		p.invalidate(ctx, id)
	}
	metrics.PurgedImages.Add(float64(len(ids)))

	log.Printf("[Capture] Purged %d images of channel %s (%s)", len(ids), channel.ChannelID, channel.Alias)
	return len(ids), nil
}

func (p *Pipeline) invalidate(ctx context.Context, attachmentID int64) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Delete(ctx, cache.ImageMeta.BuildID(attachmentID)); err != nil {
		log.Printf("[Capture] Failed to invalidate cache for attachment %d: %v", attachmentID, err)
	}
}

func (p *Pipeline) diagnose(ctx context.Context, msg *chat.Message, text string) {
	log.Printf("[Capture] %s (message %s)", text, msg.ID)
	if err := p.transport.Reply(ctx, msg.ChannelID, msg.ID, text); err != nil {
		log.Printf("[Capture] Failed to reply diagnostic to message %s: %v", msg.ID, err)
	}
}
