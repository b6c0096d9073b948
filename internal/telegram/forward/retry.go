package forward

import (
	"errors"
	"time"

	"github.com/go-telegram/bot"
	"github.com/gotd/td/tgerr"
)

const (
	defaultForwardRetryDelay     = 3 * time.Second
	maxForwardExponentialBackoff = 30 * time.Second
	forwardRetryJitterStep       = 200 * time.Millisecond
)

// shouldRetryForward Bot API 错误分类：429 与未知错误重试，权限/参数/迁移类错误不重试
func shouldRetryForward(err error) bool {
	if err == nil {
		return false
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return true
	}

	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return false
	}

	switch {
	case errors.Is(err, bot.ErrorForbidden),
		errors.Is(err, bot.ErrorBadRequest),
		errors.Is(err, bot.ErrorUnauthorized),
		errors.Is(err, bot.ErrorNotFound):
		return false
	}
	return true
}

// migrateToChatIDFromError 提取群组升级后的新 chat id
func migrateToChatIDFromError(err error) (int64, bool) {
	var migrate *bot.MigrateError
	if !errors.As(err, &migrate) || migrate.MigrateToChatID == 0 {
		return 0, false
	}
	return int64(migrate.MigrateToChatID), true
}

// calculateForwardRetryDelay 429 按 retry_after 等待，其余指数退避
func calculateForwardRetryDelay(err error, attempt int, key int64) time.Duration {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		if tooMany.RetryAfter > 0 {
			return time.Duration(tooMany.RetryAfter)*time.Second + forwardRetryJitter(key)
		}
		return defaultForwardRetryDelay + forwardRetryJitter(key)
	}
	return exponentialBackoff(attempt)
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return maxForwardExponentialBackoff
	}
	delay := time.Second << (attempt - 1)
	if delay > maxForwardExponentialBackoff {
		return maxForwardExponentialBackoff
	}
	return delay
}

// forwardRetryJitter 按 key 错开重试时间，避免多个频道同时重试
func forwardRetryJitter(key int64) time.Duration {
	if key < 0 {
		key = -key
	}
	return time.Duration(key%5+1) * forwardRetryJitterStep
}

// botRetryPolicy Bot API 重试策略
var botRetryPolicy = retryPolicy{
	shouldRetry: shouldRetryForward,
	delay:       calculateForwardRetryDelay,
}

// userRetryPolicy 用户会话只在 FLOOD_WAIT 时重试，其余错误可能已部分生效
var userRetryPolicy = retryPolicy{
	shouldRetry: func(err error) bool {
		_, ok := tgerr.AsFloodWait(err)
		return ok
	},
	delay: func(err error, _ int, key int64) time.Duration {
		if d, ok := tgerr.AsFloodWait(err); ok && d > 0 {
			return d + forwardRetryJitter(key)
		}
		return defaultForwardRetryDelay + forwardRetryJitter(key)
	},
}
