// Package classify 推导消息的内容类型、话题 ID 与日志预览，并实现话题过滤
package classify

import (
	"fmt"
	"unicode/utf8"

	"relay_bot/internal/telegram/models"
)

const previewTextLimit = 40

// ContentType 返回消息的内容类型
// 有附件时取附件类型；否则有文本为 text；再否则属于媒体组为 media_group；最后为 unknown
func ContentType(msg *models.Message) string {
	if msg == nil {
		return models.ContentTypeUnknown
	}
	if msg.Attachment != nil {
		for _, kind := range models.AttachmentPriority {
			if msg.Attachment.Kind == kind {
				return string(kind)
			}
		}
	}
	if msg.Text != "" {
		return models.ContentTypeText
	}
	if msg.Grouped() {
		return models.ContentTypeMediaGroup
	}
	return models.ContentTypeUnknown
}

// UnitContentType 返回转发单元的内容类型，多条消息的媒体组固定为 media_group
func UnitContentType(msgs []*models.Message) string {
	if len(msgs) == 0 {
		return models.ContentTypeUnknown
	}
	if len(msgs) > 1 || msgs[0].Grouped() {
		return models.ContentTypeMediaGroup
	}
	return ContentType(msgs[0])
}

// Topic 按顺序尝试：显式话题、回复链顶端、直接回复目标
func Topic(msg *models.Message) (int, bool) {
	if msg == nil {
		return 0, false
	}
	switch {
	case msg.TopicID != 0:
		return msg.TopicID, true
	case msg.ReplyToTopID != 0:
		return msg.ReplyToTopID, true
	case msg.ReplyToMsgID != 0:
		return msg.ReplyToMsgID, true
	default:
		return 0, false
	}
}

// Preview 生成日志用的内容预览
func Preview(msgs []*models.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	if len(msgs) > 1 || msgs[0].Grouped() {
		return fmt.Sprintf("Media group (%d items)", len(msgs))
	}

	msg := msgs[0]
	if msg.Text != "" {
		return "Text: " + truncate(msg.Text, previewTextLimit)
	}
	if msg.Attachment != nil {
		switch msg.Attachment.Kind {
		case models.AttachmentPhoto:
			return "Photo"
		case models.AttachmentVideo:
			return "Video"
		case models.AttachmentAnimation:
			return "Animation"
		}
	}
	return ""
}

// UnitText 返回媒体组首条消息（或单条消息）的文本
func UnitText(msgs []*models.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[0].Text
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
