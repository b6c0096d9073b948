package repository

import (
	"context"

	"relay_bot/internal/telegram/models"
)

// ContentRepository 内容记录数据访问接口
type ContentRepository interface {
	// Exists 检查 (message_id, channel_id) 是否已有记录
	Exists(ctx context.Context, messageID int64, channelID string) (bool, error)

	// Create 写入一条内容记录
	Create(ctx context.Context, record *models.ContentRecord) error

	// EnsureSchema 确保索引（或数据表）存在
	EnsureSchema(ctx context.Context) error
}

// StateRepository 频道转发进度数据访问接口
type StateRepository interface {
	// Load 读取频道进度，不存在时返回 nil
	Load(ctx context.Context, channelID string) (*models.RelayState, error)

	// AdvanceWatermark 推进水位线（只增不减）
	AdvanceWatermark(ctx context.Context, channelID string, watermark int64) error

	// AddForwardedGroup 记录已转发的媒体组
	AddForwardedGroup(ctx context.Context, channelID, groupID string) error

	// EnsureSchema 确保索引（或数据表）存在
	EnsureSchema(ctx context.Context) error
}
