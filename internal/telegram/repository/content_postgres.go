package repository

import (
	"context"
	"fmt"

	"relay_bot/internal/telegram/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgExecutor *pgxpool.Pool 与事务共有的最小接口
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var contentSchema = []string{
	`CREATE TABLE IF NOT EXISTS content (
		id          BIGSERIAL PRIMARY KEY,
		text        TEXT,
		category    TEXT,
		media_links TEXT[] NOT NULL DEFAULT '{}',
		media_type  TEXT,
		message_id  BIGINT NOT NULL,
		channel_id  TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS content_message_channel_idx ON content (message_id, channel_id)`,
}

// PostgresContentRepository PostgreSQL 实现
type PostgresContentRepository struct {
	db pgExecutor
}

// NewPostgresContentRepository 创建内容记录仓储实例
func NewPostgresContentRepository(db pgExecutor) ContentRepository {
	return &PostgresContentRepository{db: db}
}

// Exists 检查记录是否存在
func (r *PostgresContentRepository) Exists(ctx context.Context, messageID int64, channelID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM content
			WHERE message_id = $1 AND channel_id = $2
			LIMIT 1
		)`, messageID, channelID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}
	return exists, nil
}

// Create 写入内容记录
func (r *PostgresContentRepository) Create(ctx context.Context, record *models.ContentRecord) error {
	links := record.MediaLinks
	if links == nil {
		links = []string{}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO content (text, category, media_links, media_type, message_id, channel_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.Text, record.Category, links, record.MediaType, record.MessageID, record.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to create content record: %w", err)
	}
	return nil
}

// EnsureSchema 确保数据表与索引存在
func (r *PostgresContentRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range contentSchema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure content schema: %w", err)
		}
	}
	return nil
}
