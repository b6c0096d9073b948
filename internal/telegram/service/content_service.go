// Package service 封装内容记录的去重查询与保存
package service

import (
	"context"
	"strconv"

	"relay_bot/internal/logger"
	"relay_bot/internal/metrics"
	"relay_bot/internal/telegram/models"
	"relay_bot/internal/telegram/repository"
)

// ContentService 重复检查与内容记录
// 未配置存储时：重复检查恒为 false，记录恒为未保存
type ContentService interface {
	// IsDuplicate 检查 (messageID, channelID) 是否已处理
	IsDuplicate(ctx context.Context, messageID int, channelID int64) bool

	// Save 写入内容记录，返回是否写入成功
	Save(ctx context.Context, record *models.ContentRecord) bool
}

// ContentServiceImpl 内容服务实现
type ContentServiceImpl struct {
	repo repository.ContentRepository
}

// NewContentService 创建内容服务，repo 可以为 nil
func NewContentService(repo repository.ContentRepository) *ContentServiceImpl {
	return &ContentServiceImpl{repo: repo}
}

// Enabled 是否配置了存储
func (s *ContentServiceImpl) Enabled() bool {
	return s.repo != nil
}

// IsDuplicate 存储错误按未重复处理
func (s *ContentServiceImpl) IsDuplicate(ctx context.Context, messageID int, channelID int64) bool {
	if s.repo == nil {
		return false
	}

	exists, err := s.repo.Exists(ctx, int64(messageID), strconv.FormatInt(channelID, 10))
	if err != nil {
		logger.L().Errorf("Error checking duplicate: channel=%d, message_id=%d, error=%v", channelID, messageID, err)
		return false
	}
	return exists
}

// Save 存储错误只记录日志
func (s *ContentServiceImpl) Save(ctx context.Context, record *models.ContentRecord) bool {
	if s.repo == nil {
		metrics.RecordsSaved.WithLabelValues(metrics.ResultSkipped).Inc()
		return false
	}

	if err := s.repo.Create(ctx, record); err != nil {
		metrics.RecordsSaved.WithLabelValues(metrics.ResultFailed).Inc()
		logger.L().Errorf("Error saving content: channel=%s, message_id=%d, error=%v",
			record.ChannelID, record.MessageID, err)
		return false
	}

	metrics.RecordsSaved.WithLabelValues(metrics.ResultSuccess).Inc()
	logger.L().Debugf("Content recorded: channel=%s, message_id=%d, media_links=%d",
		record.ChannelID, record.MessageID, len(record.MediaLinks))
	return true
}
