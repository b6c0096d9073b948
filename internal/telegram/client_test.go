package telegram

import (
	"context"
	"testing"

	"relay_bot/internal/telegram/models"
)

func TestNewDownloadBuffer(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		wantCap int
	}{
		{name: "unknown size", size: 0, wantCap: 0},
		{name: "small photo", size: 200 << 10, wantCap: 200 << 10},
		{name: "at limit", size: maxPrealloc, wantCap: maxPrealloc},
		{name: "large video", size: 2 << 30, wantCap: maxPrealloc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := newDownloadBuffer(tt.size)
			if buf.Len() != 0 {
				t.Fatalf("expected empty buffer, got %d bytes", buf.Len())
			}
			if got := buf.Cap(); got < tt.wantCap || got > maxPrealloc+64 {
				t.Fatalf("unexpected capacity for size %d: got %d, want about %d", tt.size, got, tt.wantCap)
			}
		})
	}
}

func TestDownloadRejectsAttachmentWithoutLocation(t *testing.T) {
	c := &Client{}
	att := &models.Attachment{Kind: models.AttachmentDocument, FileID: "1", Size: 2 << 30}

	if _, err := c.Download(context.Background(), att); err == nil {
		t.Fatalf("expected error for attachment without location")
	}
}
