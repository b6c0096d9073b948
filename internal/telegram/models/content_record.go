package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ContentRecord 已转发内容记录
// (message_id, channel_id) 至多一条，由转发前的重复检查保证，不依赖唯一索引
type ContentRecord struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Text       string             `bson:"text"`        // 文本或 "[类型]"
	Category   string             `bson:"category"`    // 内容分类
	MediaLinks []string           `bson:"media_links"` // 归档后的公开链接
	MediaType  *string            `bson:"media_type"`  // 首个归档媒体类型，未归档为 null
	MessageID  int64              `bson:"message_id"`  // 源消息 ID（媒体组取最后一条）
	ChannelID  string             `bson:"channel_id"`  // 源频道 ID（字符串形式）
	CreatedAt  time.Time          `bson:"created_at"`
}

// RelayState 频道转发进度（可选持久化）
type RelayState struct {
	ChannelID       string    `bson:"_id"`
	Watermark       int64     `bson:"watermark"`        // 已处理的最大消息 ID
	ForwardedGroups []string  `bson:"forwarded_groups"` // 已转发的媒体组 ID
	UpdatedAt       time.Time `bson:"updated_at"`
}
