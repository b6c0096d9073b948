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

// MongoStateRepository MongoDB 实现，每个频道一个文档（_id 为频道 ID）
type MongoStateRepository struct {
	collection *mongo.Collection
}

// NewMongoStateRepository 创建频道进度仓储实例
func NewMongoStateRepository(db *mongo.Database) StateRepository {
	return &MongoStateRepository{
		collection: db.Collection("relay_state"),
	}
}

// Load 读取频道进度
func (r *MongoStateRepository) Load(ctx context.Context, channelID string) (*models.RelayState, error) {
	var state models.RelayState
	err := r.collection.FindOne(ctx, bson.M{"_id": channelID}).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load relay state: %w", err)
	}
	return &state, nil
}

// AdvanceWatermark 使用 $max 保证水位线只增不减
func (r *MongoStateRepository) AdvanceWatermark(ctx context.Context, channelID string, watermark int64) error {
	update := bson.M{
		"$max": bson.M{"watermark": watermark},
		"$set": bson.M{"updated_at": time.Now()},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": channelID}, update, opts); err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	return nil
}

// AddForwardedGroup 使用 $addToSet 记录媒体组
func (r *MongoStateRepository) AddForwardedGroup(ctx context.Context, channelID, groupID string) error {
	update := bson.M{
		"$addToSet": bson.M{"forwarded_groups": groupID},
		"$set":      bson.M{"updated_at": time.Now()},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": channelID}, update, opts); err != nil {
		return fmt.Errorf("failed to add forwarded group: %w", err)
	}
	return nil
}

// EnsureSchema 以 _id 为键，无需额外索引
func (r *MongoStateRepository) EnsureSchema(ctx context.Context) error {
	return nil
}
