package telegram

import (
	"strconv"
	"time"

	"relay_bot/internal/telegram/models"

	"github.com/gotd/td/tg"
)

// MapMessage 将 MTProto 消息转换为带附件类型标签的 models.Message
// 服务消息与空消息返回 nil
func MapMessage(channelID int64, raw tg.MessageClass) *models.Message {
	msg, ok := raw.(*tg.Message)
	if !ok || msg == nil {
		return nil
	}

	out := &models.Message{
		ID:         msg.ID,
		ChannelID:  channelID,
		Date:       time.Unix(int64(msg.Date), 0).UTC(),
		Text:       msg.Message,
		Attachment: mapAttachment(msg.Media),
	}
	if groupedID, ok := msg.GetGroupedID(); ok && groupedID != 0 {
		out.MediaGroupID = strconv.FormatInt(groupedID, 10)
	}

	if replyTo, ok := msg.GetReplyTo(); ok {
		if header, ok := replyTo.(*tg.MessageReplyHeader); ok {
			replyToMsgID, hasMsg := header.GetReplyToMsgID()
			replyToTopID, hasTop := header.GetReplyToTopID()

			// 论坛话题：有 top id 时取 top id，否则回复目标本身就是话题根消息
			if header.ForumTopic {
				if hasTop {
					out.TopicID = replyToTopID
				} else if hasMsg {
					out.TopicID = replyToMsgID
				}
			}
			if hasTop {
				out.ReplyToTopID = replyToTopID
			}
			if hasMsg {
				out.ReplyToMsgID = replyToMsgID
			}
		}
	}

	return out
}

// MapMessages 批量转换，丢弃无法转换的消息，保持原有顺序
func MapMessages(channelID int64, raws []tg.MessageClass) []*models.Message {
	out := make([]*models.Message, 0, len(raws))
	for _, raw := range raws {
		if msg := MapMessage(channelID, raw); msg != nil {
			out = append(out, msg)
		}
	}
	return out
}

func mapAttachment(media tg.MessageMediaClass) *models.Attachment {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.GetPhoto()
		if !ok {
			return nil
		}
		p, ok := photo.(*tg.Photo)
		if !ok {
			return nil
		}
		return &models.Attachment{
			Kind:     models.AttachmentPhoto,
			FileID:   strconv.FormatInt(p.ID, 10),
			MimeType: "image/jpeg",
			Source:   photoLocation(p),
		}
	case *tg.MessageMediaDocument:
		document, ok := m.GetDocument()
		if !ok {
			return nil
		}
		doc, ok := document.(*tg.Document)
		if !ok {
			return nil
		}
		return &models.Attachment{
			Kind:     documentKind(doc.Attributes),
			FileID:   strconv.FormatInt(doc.ID, 10),
			FileName: documentFileName(doc.Attributes),
			MimeType: doc.MimeType,
			Size:     doc.Size,
			Source: &tg.InputDocumentFileLocation{
				ID:            doc.ID,
				AccessHash:    doc.AccessHash,
				FileReference: doc.FileReference,
			},
		}
	case *tg.MessageMediaGeo, *tg.MessageMediaGeoLive:
		return &models.Attachment{Kind: models.AttachmentLocation}
	case *tg.MessageMediaVenue:
		return &models.Attachment{Kind: models.AttachmentVenue}
	case *tg.MessageMediaContact:
		return &models.Attachment{Kind: models.AttachmentContact}
	case *tg.MessageMediaPoll:
		return &models.Attachment{Kind: models.AttachmentPoll}
	case *tg.MessageMediaDice:
		return &models.Attachment{Kind: models.AttachmentDice}
	default:
		// 网页预览等不视为附件
		return nil
	}
}

// documentKind 按属性判断文档的具体类型
func documentKind(attrs []tg.DocumentAttributeClass) models.AttachmentKind {
	var (
		isSticker, isAnimated, isVideo, isRound, isAudio, isVoice bool
	)
	for _, attr := range attrs {
		switch a := attr.(type) {
		case *tg.DocumentAttributeSticker:
			isSticker = true
		case *tg.DocumentAttributeAnimated:
			isAnimated = true
		case *tg.DocumentAttributeVideo:
			isVideo = true
			isRound = a.RoundMessage
		case *tg.DocumentAttributeAudio:
			isAudio = true
			isVoice = a.Voice
		}
	}

	switch {
	case isSticker:
		return models.AttachmentSticker
	case isAnimated:
		return models.AttachmentAnimation
	case isVideo && isRound:
		return models.AttachmentVideoNote
	case isVideo:
		return models.AttachmentVideo
	case isAudio && isVoice:
		return models.AttachmentVoice
	case isAudio:
		return models.AttachmentAudio
	default:
		return models.AttachmentDocument
	}
}

func documentFileName(attrs []tg.DocumentAttributeClass) string {
	for _, attr := range attrs {
		if a, ok := attr.(*tg.DocumentAttributeFilename); ok {
			return a.FileName
		}
	}
	return ""
}

// photoLocation 选择面积最大的尺寸
func photoLocation(p *tg.Photo) *tg.InputPhotoFileLocation {
	var (
		best     string
		bestArea int
	)
	for _, size := range p.Sizes {
		switch s := size.(type) {
		case *tg.PhotoSize:
			if area := s.W * s.H; area >= bestArea {
				best, bestArea = s.Type, area
			}
		case *tg.PhotoSizeProgressive:
			if area := s.W * s.H; area >= bestArea {
				best, bestArea = s.Type, area
			}
		}
	}
	return &tg.InputPhotoFileLocation{
		ID:            p.ID,
		AccessHash:    p.AccessHash,
		FileReference: p.FileReference,
		ThumbSize:     best,
	}
}
