package repository

import (
	"context"
	"errors"
	"fmt"

	"relay_bot/internal/telegram/models"

	"github.com/jackc/pgx/v5"
)

const relayStateSchema = `CREATE TABLE IF NOT EXISTS relay_state (
	channel_id       TEXT PRIMARY KEY,
	watermark        BIGINT NOT NULL DEFAULT 0,
	forwarded_groups TEXT[] NOT NULL DEFAULT '{}',
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStateRepository PostgreSQL 实现
type PostgresStateRepository struct {
	db pgExecutor
}

// NewPostgresStateRepository 创建频道进度仓储实例
func NewPostgresStateRepository(db pgExecutor) StateRepository {
	return &PostgresStateRepository{db: db}
}

// Load 读取频道进度
func (r *PostgresStateRepository) Load(ctx context.Context, channelID string) (*models.RelayState, error) {
	state := &models.RelayState{ChannelID: channelID}
	err := r.db.QueryRow(ctx, `
		SELECT watermark, forwarded_groups, updated_at
		FROM relay_state WHERE channel_id = $1`, channelID).
		Scan(&state.Watermark, &state.ForwardedGroups, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load relay state: %w", err)
	}
	return state, nil
}

// AdvanceWatermark 使用 GREATEST 保证水位线只增不减
func (r *PostgresStateRepository) AdvanceWatermark(ctx context.Context, channelID string, watermark int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO relay_state (channel_id, watermark)
		VALUES ($1, $2)
		ON CONFLICT (channel_id) DO UPDATE
		SET watermark = GREATEST(relay_state.watermark, EXCLUDED.watermark),
		    updated_at = now()`, channelID, watermark)
	if err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	return nil
}

// AddForwardedGroup 追加媒体组 ID（已存在则不变）
func (r *PostgresStateRepository) AddForwardedGroup(ctx context.Context, channelID, groupID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO relay_state (channel_id, forwarded_groups)
		VALUES ($1, ARRAY[$2::text])
		ON CONFLICT (channel_id) DO UPDATE
		SET forwarded_groups = CASE
		        WHEN $2::text = ANY(relay_state.forwarded_groups) THEN relay_state.forwarded_groups
		        ELSE array_append(relay_state.forwarded_groups, $2::text)
		    END,
		    updated_at = now()`, channelID, groupID)
	if err != nil {
		return fmt.Errorf("failed to add forwarded group: %w", err)
	}
	return nil
}

// EnsureSchema 确保数据表存在
func (r *PostgresStateRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, relayStateSchema); err != nil {
		return fmt.Errorf("failed to ensure relay_state schema: %w", err)
	}
	return nil
}
