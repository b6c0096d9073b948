package relay

import (
	"context"
	"errors"
	"fmt"

	"relay_bot/internal/config"
	"relay_bot/internal/logger"
	"relay_bot/internal/telegram/classify"
	"relay_bot/internal/telegram/models"

	"github.com/samber/lo"
)

// topicReportLimit 启动时统计话题命中数使用的消息数
const topicReportLimit = 20

// ErrNoSources 没有可访问的源频道
var ErrNoSources = errors.New("no valid source channels found")

// ChannelResolver 将配置中的频道引用解析为频道
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, ref string) (*models.Channel, error)
}

// Resolve 解析源频道与目标频道
// 无法访问的源频道会被丢弃；全部失败或目标频道不可访问时返回错误
func Resolve(
	ctx context.Context,
	resolver ChannelResolver,
	history HistorySource,
	cfg *config.Config,
) ([]*models.Channel, *models.Channel, error) {
	logger.L().Info("Verifying source channels")

	sources := make([]*models.Channel, 0, len(cfg.SourceChannels))
	for _, ref := range cfg.SourceChannels {
		ch, err := resolver.ResolveChannel(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.L().Warnf("Cannot access source channel %s: %v", ref, err)
			continue
		}

		keys := []string{ref, ch.Key(), ch.Username}
		ch.Category = cfg.CategoryFor(keys...)
		if topic, ok := cfg.TopicFor(keys...); ok {
			ch.TopicID = topic
		}
		logger.L().Infof("Source channel: %s (ID: %d, category: %s)", ch.Title, ch.ID, ch.Category)

		if ch.HasTopicFilter() {
			reportTopic(ctx, history, ch)
		}
		sources = append(sources, ch)
	}

	sources = lo.UniqBy(sources, func(ch *models.Channel) int64 { return ch.ID })
	if len(sources) == 0 {
		return nil, nil, ErrNoSources
	}

	target, err := resolver.ResolveChannel(ctx, cfg.TargetChannel)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot access target channel %s: %w", cfg.TargetChannel, err)
	}
	logger.L().Infof("Target channel: %s (ID: %d)", target.Title, target.ID)

	return sources, target, nil
}

// reportTopic 统计最近消息中属于过滤话题的数量（仅用于日志）
func reportTopic(ctx context.Context, history HistorySource, ch *models.Channel) {
	logger.L().Infof("Topic filter active: channel=%d only copies from topic %d", ch.ID, ch.TopicID)
	if history == nil {
		return
	}

	recent, err := history.History(ctx, ch.ID, topicReportLimit)
	if err != nil {
		logger.L().Warnf("Failed to read recent messages: channel=%d, error=%v", ch.ID, err)
		return
	}
	logger.L().Infof("Found %d/%d recent messages in topic %d",
		classify.CountInTopic(recent, ch.TopicID), len(recent), ch.TopicID)
}
