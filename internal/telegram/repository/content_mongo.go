package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoContentRepository MongoDB 实现
type MongoContentRepository struct {
	collection *mongo.Collection
}

// NewMongoContentRepository 创建内容记录仓储实例
func NewMongoContentRepository(db *mongo.Database) ContentRepository {
	return &MongoContentRepository{
		collection: db.Collection("content"),
	}
}

// Exists 检查记录是否存在
func (r *MongoContentRepository) Exists(ctx context.Context, messageID int64, channelID string) (bool, error) {
	filter := bson.M{
		"message_id": messageID,
		"channel_id": channelID,
	}
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})

	err := r.collection.FindOne(ctx, filter, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}
	return true, nil
}

// Create 写入内容记录
func (r *MongoContentRepository) Create(ctx context.Context, record *models.ContentRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.MediaLinks == nil {
		record.MediaLinks = []string{}
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to create content record: %w", err)
	}
	return nil
}

// EnsureSchema 确保索引存在
func (r *MongoContentRepository) EnsureSchema(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// 重复检查查询（非唯一）
		{
			Keys: bson.D{
				{Key: "message_id", Value: 1},
				{Key: "channel_id", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for content: %w", err)
	}
	return nil
}
