// Package archive 下载消息附件并归档到对象存储
package archive

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"relay_bot/internal/logger"
	"relay_bot/internal/metrics"
	"relay_bot/internal/telegram/models"
)

// Downloader 从消息服务下载附件内容
type Downloader interface {
	Download(ctx context.Context, attachment *models.Attachment) ([]byte, error)
}

// ObjectStore 对象存储写入
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Archiver 媒体归档器，store 为 nil 时整体禁用
type Archiver struct {
	store      ObjectStore
	publicURL  string
	downloader Downloader
	timeout    time.Duration
	maxBytes   int64 // 0 表示不限制
	now        func() time.Time
}

// NewArchiver 创建归档器
func NewArchiver(store ObjectStore, publicURL string, downloader Downloader, timeout time.Duration) *Archiver {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Archiver{
		store:      store,
		publicURL:  publicURL,
		downloader: downloader,
		timeout:    timeout,
		now:        time.Now,
	}
}

// WithMaxSize 设置归档附件的大小上限，超过上限的附件不下载
func (a *Archiver) WithMaxSize(maxBytes int64) *Archiver {
	a.maxBytes = maxBytes
	return a
}

// Enabled 是否配置了对象存储
func (a *Archiver) Enabled() bool {
	return a != nil && a.store != nil
}

// Upload 以 时间戳_哈希_文件名 为键上传，返回公开链接
// 未启用或失败时返回 false
func (a *Archiver) Upload(ctx context.Context, data []byte, fileName, contentType string) (string, bool) {
	if !a.Enabled() {
		return "", false
	}

	key := ObjectKey(a.now(), data, fileName)
	if err := a.store.Put(ctx, key, data, contentType); err != nil {
		metrics.ArchiveUploads.WithLabelValues(metrics.ResultFailed).Inc()
		logger.L().Errorf("Error uploading to R2: key=%s, error=%v", key, err)
		return "", false
	}

	metrics.ArchiveUploads.WithLabelValues(metrics.ResultSuccess).Inc()
	logger.L().Infof("Uploaded to R2: %s", key)
	return a.publicURL + "/" + key, true
}

// ArchiveMessage 归档消息附件，返回链接与媒体类型
// 只处理照片、视频、动图与文档；下载失败时媒体类型仍会返回
func (a *Archiver) ArchiveMessage(ctx context.Context, msg *models.Message) ([]string, string) {
	if !a.Enabled() || msg == nil || !msg.Attachment.Downloadable() {
		return nil, ""
	}

	att := msg.Attachment
	mediaType := string(att.Kind)

	if a.maxBytes > 0 && att.Size > a.maxBytes {
		metrics.ArchiveUploads.WithLabelValues(metrics.ResultSkipped).Inc()
		logger.L().Warnf("Media too large to archive: channel=%d, message_id=%d, size=%d, limit=%d",
			msg.ChannelID, msg.ID, att.Size, a.maxBytes)
		return nil, mediaType
	}

	data, err := a.download(ctx, att)
	if err != nil {
		metrics.ArchiveUploads.WithLabelValues(metrics.ResultSkipped).Inc()
		logger.L().Warnf("Error downloading media: channel=%d, message_id=%d, error=%v", msg.ChannelID, msg.ID, err)
		return nil, mediaType
	}
	if len(data) == 0 {
		return nil, mediaType
	}

	fileName, contentType := FileNameAndType(att)
	url, ok := a.Upload(ctx, data, fileName, contentType)
	if !ok {
		return nil, mediaType
	}
	return []string{url}, mediaType
}

func (a *Archiver) download(ctx context.Context, att *models.Attachment) ([]byte, error) {
	if a.downloader == nil {
		return nil, fmt.Errorf("no downloader configured")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	data, err := a.downloader.Download(ctx, att)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("media download timeout after %s: %w", a.timeout, err)
		}
		return nil, err
	}
	return data, nil
}

// ObjectKey 生成 YYYYMMDD_HHMMSS_<md5前8位>_<文件名>
func ObjectKey(now time.Time, data []byte, fileName string) string {
	sum := md5.Sum(data)
	return fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), hex.EncodeToString(sum[:])[:8], fileName)
}

// FileNameAndType 返回归档文件名与 Content-Type
func FileNameAndType(att *models.Attachment) (string, string) {
	switch att.Kind {
	case models.AttachmentPhoto:
		return fmt.Sprintf("photo_%s.jpg", att.FileID), "image/jpeg"
	case models.AttachmentVideo:
		return fmt.Sprintf("video_%s.mp4", att.FileID), "video/mp4"
	case models.AttachmentAnimation:
		return fmt.Sprintf("animation_%s.mp4", att.FileID), "video/mp4"
	default:
		name := att.FileName
		if name == "" {
			name = fmt.Sprintf("document_%s", att.FileID)
		}
		mime := att.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		return name, mime
	}
}
