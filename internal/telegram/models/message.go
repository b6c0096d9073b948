package models

import (
	"time"
)

// AttachmentKind 附件类型（封闭集合，在拉取消息时一次性确定）
type AttachmentKind string

// 附件类型常量，顺序即分类优先级
const (
	AttachmentPhoto     AttachmentKind = "photo"
	AttachmentVideo     AttachmentKind = "video"
	AttachmentAnimation AttachmentKind = "animation"
	AttachmentAudio     AttachmentKind = "audio"
	AttachmentVoice     AttachmentKind = "voice"
	AttachmentVideoNote AttachmentKind = "video_note"
	AttachmentSticker   AttachmentKind = "sticker"
	AttachmentDocument  AttachmentKind = "document"
	AttachmentLocation  AttachmentKind = "location"
	AttachmentVenue     AttachmentKind = "venue"
	AttachmentContact   AttachmentKind = "contact"
	AttachmentPoll      AttachmentKind = "poll"
	AttachmentDice      AttachmentKind = "dice"
)

// AttachmentPriority 分类时附件类型的匹配顺序
var AttachmentPriority = []AttachmentKind{
	AttachmentPhoto,
	AttachmentVideo,
	AttachmentAnimation,
	AttachmentAudio,
	AttachmentVoice,
	AttachmentVideoNote,
	AttachmentSticker,
	AttachmentDocument,
	AttachmentLocation,
	AttachmentVenue,
	AttachmentContact,
	AttachmentPoll,
	AttachmentDice,
}

// 内容类型常量（写入内容记录与日志）
const (
	ContentTypeText       = "text"
	ContentTypeMediaGroup = "media_group"
	ContentTypeUnknown    = "unknown"
)

// Attachment 消息附件
type Attachment struct {
	Kind     AttachmentKind
	FileID   string // 文件唯一标识，用于生成归档文件名
	FileName string // 文档原始文件名（可能为空）
	MimeType string // MIME 类型（可能为空）
	Size     int64  // 字节数（未知为 0）

	// Source 消息客户端的下载句柄，只由对应客户端解释
	Source any
}

// Downloadable 只有照片、视频、动图和文档会被归档
func (a *Attachment) Downloadable() bool {
	if a == nil {
		return false
	}
	switch a.Kind {
	case AttachmentPhoto, AttachmentVideo, AttachmentAnimation, AttachmentDocument:
		return true
	default:
		return false
	}
}

// Message 源频道消息
type Message struct {
	ID        int       // 频道内单调递增的消息 ID
	ChannelID int64     // 所属频道（标准化 ID）
	Date      time.Time // 发送时间
	Text      string    // 文本或媒体说明

	Attachment   *Attachment // 至多一个附件
	MediaGroupID string      // 媒体组 ID，空表示独立消息

	TopicID      int // 论坛话题 ID（显式）
	ReplyToTopID int // 回复链顶端消息 ID
	ReplyToMsgID int // 直接回复的消息 ID
}

// HasAttachment 是否带有附件
func (m *Message) HasAttachment() bool {
	return m.Attachment != nil
}

// Grouped 是否属于媒体组
func (m *Message) Grouped() bool {
	return m.MediaGroupID != ""
}
