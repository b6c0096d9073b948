// Package relay 轮询源频道，把新消息与媒体组转发到目标频道
//
// 每个频道维护水位线（已处理的最大消息 ID）与已转发媒体组集合，
// 两者只由轮询 goroutine 修改，因此不加锁。
package relay

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"time"

	"relay_bot/internal/logger"
	"relay_bot/internal/metrics"
	"relay_bot/internal/telegram/classify"
	"relay_bot/internal/telegram/forward"
	"relay_bot/internal/telegram/models"
	"relay_bot/internal/telegram/repository"
	"relay_bot/internal/telegram/service"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// HistorySource 拉取频道最近的消息（新消息在前）
type HistorySource interface {
	History(ctx context.Context, channelID int64, limit int) ([]*models.Message, error)
}

// MediaArchiver 归档单条消息的附件，返回链接与媒体类型
type MediaArchiver interface {
	ArchiveMessage(ctx context.Context, msg *models.Message) ([]string, string)
}

// Options 轮询参数
type Options struct {
	CheckLimit   int           // 每次拉取的消息数
	PollInterval time.Duration // 两次轮询之间的间隔
	Pacing       time.Duration // 每转发一个单元后的等待
}

// DefaultOptions 默认轮询参数
func DefaultOptions() Options {
	return Options{
		CheckLimit:   10,
		PollInterval: 2 * time.Second,
		Pacing:       time.Second,
	}
}

// channelProgress 单个频道的转发进度
type channelProgress struct {
	watermark int
	groups    map[string]struct{}
}

// Engine 转发引擎
type Engine struct {
	channels []*models.Channel
	history  HistorySource
	content  service.ContentService
	archiver MediaArchiver
	gateway  forward.Gateway
	state    repository.StateRepository // nil 表示进度只保存在内存
	opts     Options

	progress map[int64]*channelProgress
	restored bool

	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine 创建转发引擎；archiver 与 state 可以为 nil
func NewEngine(
	channels []*models.Channel,
	history HistorySource,
	content service.ContentService,
	archiver MediaArchiver,
	gateway forward.Gateway,
	state repository.StateRepository,
	opts Options,
) *Engine {
	defaults := DefaultOptions()
	if opts.CheckLimit <= 0 {
		opts.CheckLimit = defaults.CheckLimit
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.Pacing < 0 {
		opts.Pacing = 0
	}

	progress := make(map[int64]*channelProgress, len(channels))
	for _, ch := range channels {
		progress[ch.ID] = &channelProgress{groups: make(map[string]struct{})}
	}

	return &Engine{
		channels: channels,
		history:  history,
		content:  content,
		archiver: archiver,
		gateway:  gateway,
		state:    state,
		opts:     opts,
		progress: progress,
		sleep:    sleepContext,
	}
}

// String 实现 fmt.Stringer（supervisor 日志使用）
func (e *Engine) String() string {
	return "relay-engine"
}

// Serve 持续轮询直到 ctx 取消
// 由 supervisor 重启时保留内存中的进度，持久化进度只在首次启动时读取
func (e *Engine) Serve(ctx context.Context) error {
	if !e.restored {
		e.restoreState(ctx)
		e.restored = true
	}

	logger.L().Infof("Relay engine started: channels=%d, check_limit=%d, interval=%s",
		len(e.channels), e.opts.CheckLimit, e.opts.PollInterval)

	for {
		if err := e.PollOnce(ctx); err != nil {
			return err
		}
		if err := e.sleep(ctx, e.opts.PollInterval); err != nil {
			return err
		}
	}
}

// PollOnce 依次处理所有频道一次；只在 ctx 取消时返回错误
func (e *Engine) PollOnce(ctx context.Context) error {
	started := time.Now()
	defer metrics.ObservePoll(started)

	entry := logger.WithRun(uuid.NewString())
	for _, ch := range e.channels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.pollChannel(ctx, entry, ch); err != nil {
			return err
		}
	}
	return nil
}

// Watermark 返回频道当前水位线
func (e *Engine) Watermark(channelID int64) int {
	if p, ok := e.progress[channelID]; ok {
		return p.watermark
	}
	return 0
}

// ForwardedGroup 媒体组是否已转发
func (e *Engine) ForwardedGroup(channelID int64, groupID string) bool {
	p, ok := e.progress[channelID]
	if !ok {
		return false
	}
	_, done := p.groups[groupID]
	return done
}

// pollChannel 拉取、过滤、分组并逐个处理单元
// 拉取失败只记录日志；只有 ctx 取消会返回错误
func (e *Engine) pollChannel(ctx context.Context, entry *log.Entry, ch *models.Channel) error {
	msgs, err := e.history.History(ctx, ch.ID, e.opts.CheckLimit)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.HistoryErrors.WithLabelValues(ch.Key()).Inc()
		entry.Errorf("Error processing channel %d: %v", ch.ID, err)
		return nil
	}

	kept := lo.Reject(msgs, func(m *models.Message, _ int) bool {
		return classify.ShouldSkip(m, ch)
	})
	slices.Reverse(kept)

	watermark := e.progressFor(ch).watermark
	fresh := lo.Filter(kept, func(m *models.Message, _ int) bool {
		return m.ID > watermark
	})
	if len(fresh) == 0 {
		return nil
	}

	for _, u := range partition(fresh) {
		if u.grouped() && e.ForwardedGroup(ch.ID, u.groupID) {
			continue
		}
		if e.processUnit(ctx, entry, ch, u) == 1 {
			if err := e.sleep(ctx, e.opts.Pacing); err != nil {
				return err
			}
		}
	}
	return nil
}

// processUnit 处理一个转发单元，真正转发（无论成功与否）返回 1，短路返回 0
func (e *Engine) processUnit(ctx context.Context, entry *log.Entry, ch *models.Channel, u unit) int {
	terminal := u.terminalID()
	progress := e.progressFor(ch)

	if terminal <= progress.watermark {
		return 0
	}
	if u.grouped() && e.ForwardedGroup(ch.ID, u.groupID) {
		e.advance(ctx, ch, terminal)
		return 0
	}

	contentType := classify.UnitContentType(u.messages)
	topicInfo := ""
	if topic, ok := classify.Topic(u.messages[0]); ok {
		topicInfo = ", topic: " + strconv.Itoa(topic)
	}
	entry.Infof("Processing message ID: %d (type: %s%s) from: %d | %s",
		terminal, contentType, topicInfo, ch.ID, classify.Preview(u.messages))

	if e.content.IsDuplicate(ctx, terminal, ch.ID) {
		metrics.DuplicatesSkipped.WithLabelValues(ch.Key()).Inc()
		entry.Infof("Skipping duplicate message (already processed): channel=%d, message_id=%d", ch.ID, terminal)
		e.advance(ctx, ch, terminal)
		e.markGroup(ctx, ch, u.groupID)
		return 0
	}

	var (
		links     []string
		mediaType string
	)
	if e.archiver != nil {
		for _, msg := range u.messages {
			msgLinks, msgType := e.archiver.ArchiveMessage(ctx, msg)
			links = append(links, msgLinks...)
			if mediaType == "" {
				mediaType = msgType
			}
		}
	}

	var err error
	if u.grouped() {
		err = e.gateway.ForwardBatch(ctx, ch, u.ids())
	} else {
		err = e.gateway.ForwardOne(ctx, ch, terminal)
	}

	if err != nil {
		metrics.ForwardFailures.WithLabelValues(ch.Key()).Inc()
		entry.Errorf("Error forwarding message: channel=%d, message_id=%d, error=%v", ch.ID, terminal, err)
	} else {
		metrics.UnitsForwarded.WithLabelValues(ch.Key(), u.kind()).Inc()

		text := classify.UnitText(u.messages)
		if text == "" {
			text = "[" + contentType + "]"
		}
		e.content.Save(ctx, &models.ContentRecord{
			Text:       text,
			Category:   ch.Category,
			MediaLinks: links,
			MediaType:  lo.EmptyableToPtr(mediaType),
			MessageID:  int64(terminal),
			ChannelID:  ch.Key(),
		})

		if len(links) > 0 {
			entry.Infof("Forwarded successfully (saved %d media items to R2): channel=%d, message_id=%d",
				len(links), ch.ID, terminal)
		} else {
			entry.Infof("Forwarded successfully: channel=%d, message_id=%d", ch.ID, terminal)
		}
	}

	// 无论转发成功与否都推进水位线，失败的单元不会在后续轮询中重试
	e.advance(ctx, ch, terminal)
	e.markGroup(ctx, ch, u.groupID)
	return 1
}

func (e *Engine) progressFor(ch *models.Channel) *channelProgress {
	p, ok := e.progress[ch.ID]
	if !ok {
		p = &channelProgress{groups: make(map[string]struct{})}
		e.progress[ch.ID] = p
	}
	return p
}

// advance 推进水位线（只增不减），持久化失败只记录日志
func (e *Engine) advance(ctx context.Context, ch *models.Channel, id int) {
	p := e.progressFor(ch)
	if id <= p.watermark {
		return
	}
	p.watermark = id
	metrics.Watermark.WithLabelValues(ch.Key()).Set(float64(id))

	if e.state == nil {
		return
	}
	if err := e.state.AdvanceWatermark(ctx, ch.Key(), int64(id)); err != nil {
		logger.L().Warnf("Failed to persist watermark: channel=%d, watermark=%d, error=%v", ch.ID, id, err)
	}
}

// markGroup 记录已转发的媒体组
func (e *Engine) markGroup(ctx context.Context, ch *models.Channel, groupID string) {
	if groupID == "" {
		return
	}
	p := e.progressFor(ch)
	if _, ok := p.groups[groupID]; ok {
		return
	}
	p.groups[groupID] = struct{}{}

	if e.state == nil {
		return
	}
	if err := e.state.AddForwardedGroup(ctx, ch.Key(), groupID); err != nil {
		logger.L().Warnf("Failed to persist media group: channel=%d, group=%s, error=%v", ch.ID, groupID, err)
	}
}

// restoreState 读取持久化的进度
func (e *Engine) restoreState(ctx context.Context) {
	if e.state == nil {
		return
	}

	for _, ch := range e.channels {
		saved, err := e.state.Load(ctx, ch.Key())
		if err != nil {
			logger.L().Warnf("Failed to load relay state: channel=%d, error=%v", ch.ID, err)
			continue
		}
		if saved == nil {
			continue
		}

		p := e.progressFor(ch)
		if w := int(saved.Watermark); w > p.watermark {
			p.watermark = w
			metrics.Watermark.WithLabelValues(ch.Key()).Set(float64(w))
		}
		for _, g := range saved.ForwardedGroups {
			p.groups[g] = struct{}{}
		}
		logger.L().Infof("Restored relay state: channel=%d, watermark=%d, groups=%d",
			ch.ID, p.watermark, len(p.groups))
	}
}

// unit 转发单元：一条独立消息或一个媒体组（按 ID 升序）
type unit struct {
	groupID  string
	messages []*models.Message
}

func (u unit) grouped() bool {
	return u.groupID != ""
}

func (u unit) terminalID() int {
	return u.messages[len(u.messages)-1].ID
}

func (u unit) ids() []int {
	return lo.Map(u.messages, func(m *models.Message, _ int) int { return m.ID })
}

func (u unit) kind() string {
	if u.grouped() {
		return "group"
	}
	return "message"
}

// partition 媒体组在前（按首次出现顺序），独立消息在后（保持时间顺序）
func partition(msgs []*models.Message) []unit {
	grouped, standalone := lo.FilterReject(msgs, func(m *models.Message, _ int) bool {
		return m.Grouped()
	})

	units := make([]unit, 0, len(msgs))
	for _, members := range lo.PartitionBy(grouped, func(m *models.Message) string { return m.MediaGroupID }) {
		slices.SortFunc(members, func(a, b *models.Message) int { return cmp.Compare(a.ID, b.ID) })
		units = append(units, unit{groupID: members[0].MediaGroupID, messages: members})
	}
	for _, m := range standalone {
		units = append(units, unit{messages: []*models.Message{m}})
	}
	return units
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
