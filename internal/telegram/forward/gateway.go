package forward

import (
	"context"
	"fmt"
	"time"

	"relay_bot/internal/logger"
	"relay_bot/internal/telegram/models"
)

// Gateway 向目标频道转发消息
type Gateway interface {
	// ForwardOne 转发单条消息
	ForwardOne(ctx context.Context, from *models.Channel, messageID int) error

	// ForwardBatch 批量转发（媒体组），保持 ID 顺序
	ForwardBatch(ctx context.Context, from *models.Channel, messageIDs []int) error
}

const maxForwardAttempts = 3

// retryPolicy 决定错误是否可重试以及等待时间
type retryPolicy struct {
	shouldRetry func(err error) bool
	delay       func(err error, attempt int, key int64) time.Duration
}

// forwardWithRetry 带限速与重试的转发调用
func forwardWithRetry(
	ctx context.Context,
	limiter *RateLimiter,
	policy retryPolicy,
	key int64,
	call func(ctx context.Context) error,
) error {
	var lastErr error
	for attempt := 1; attempt <= maxForwardAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait error: %w", err)
		}

		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}
		if !policy.shouldRetry(lastErr) || attempt == maxForwardAttempts {
			break
		}

		delay := policy.delay(lastErr, attempt, key)
		logger.L().Warnf("Forward attempt %d failed for channel %d: %v, retrying in %v", attempt, key, lastErr, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
