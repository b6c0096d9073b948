package forward

import (
	"context"
	"fmt"

	"relay_bot/internal/logger"
	"relay_bot/internal/telegram/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// botAPI *bot.Bot 中用到的转发方法
type botAPI interface {
	ForwardMessage(ctx context.Context, params *bot.ForwardMessageParams) (*botModels.Message, error)
	ForwardMessages(ctx context.Context, params *bot.ForwardMessagesParams) ([]botModels.MessageID, error)
}

// BotGateway 通过 Bot API 转发（Bot 需要是源频道与目标频道的管理员）
type BotGateway struct {
	api     botAPI
	target  int64
	limiter *RateLimiter
	policy  retryPolicy
}

// NewBotGateway 创建 Bot API 转发网关
func NewBotGateway(token string, target int64, limiter *RateLimiter) (*BotGateway, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return newBotGateway(b, target, limiter), nil
}

func newBotGateway(api botAPI, target int64, limiter *RateLimiter) *BotGateway {
	return &BotGateway{api: api, target: target, limiter: limiter, policy: botRetryPolicy}
}

// ForwardOne 转发单条消息
func (g *BotGateway) ForwardOne(ctx context.Context, from *models.Channel, messageID int) error {
	return g.withMigration(ctx, from.ID, func(ctx context.Context, target int64) error {
		_, err := g.api.ForwardMessage(ctx, &bot.ForwardMessageParams{
			ChatID:     target,
			FromChatID: from.ID,
			MessageID:  messageID,
		})
		return err
	})
}

// ForwardBatch 批量转发媒体组
func (g *BotGateway) ForwardBatch(ctx context.Context, from *models.Channel, messageIDs []int) error {
	return g.withMigration(ctx, from.ID, func(ctx context.Context, target int64) error {
		_, err := g.api.ForwardMessages(ctx, &bot.ForwardMessagesParams{
			ChatID:     target,
			FromChatID: from.ID,
			MessageIDs: messageIDs,
		})
		return err
	})
}

// withMigration 目标群组升级为超级群时切换到新 ID 再试一次
func (g *BotGateway) withMigration(ctx context.Context, key int64, call func(ctx context.Context, target int64) error) error {
	err := forwardWithRetry(ctx, g.limiter, g.policy, key, func(ctx context.Context) error {
		return call(ctx, g.target)
	})
	if err == nil {
		return nil
	}

	newTarget, ok := migrateToChatIDFromError(err)
	if !ok {
		return fmt.Errorf("bot forward failed: %w", err)
	}

	logger.L().Warnf("Target chat migrated: %d -> %d", g.target, newTarget)
	g.target = newTarget
	if err := forwardWithRetry(ctx, g.limiter, g.policy, key, func(ctx context.Context) error {
		return call(ctx, g.target)
	}); err != nil {
		return fmt.Errorf("bot forward failed after migration: %w", err)
	}
	return nil
}
