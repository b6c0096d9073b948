package models

import "testing"

func TestMarkChannelID(t *testing.T) {
	tests := []struct {
		name  string
		plain int64
		want  int64
	}{
		{name: "typical channel", plain: 2651608009, want: -1002651608009},
		{name: "small id", plain: 1, want: -1000000000001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MarkChannelID(tt.plain)
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
			back, ok := UnmarkChannelID(got)
			if !ok || back != tt.plain {
				t.Fatalf("expected round trip to %d, got %d (ok=%v)", tt.plain, back, ok)
			}
		})
	}
}

func TestUnmarkChannelIDRejectsNonChannel(t *testing.T) {
	for _, id := range []int64{12345, -12345, 0} {
		if _, ok := UnmarkChannelID(id); ok {
			t.Fatalf("expected %d to be rejected", id)
		}
	}
}

func TestAttachmentDownloadable(t *testing.T) {
	tests := []struct {
		kind AttachmentKind
		want bool
	}{
		{kind: AttachmentPhoto, want: true},
		{kind: AttachmentVideo, want: true},
		{kind: AttachmentAnimation, want: true},
		{kind: AttachmentDocument, want: true},
		{kind: AttachmentVoice, want: false},
		{kind: AttachmentSticker, want: false},
		{kind: AttachmentPoll, want: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			a := &Attachment{Kind: tt.kind}
			if got := a.Downloadable(); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	var nilAttachment *Attachment
	if nilAttachment.Downloadable() {
		t.Fatalf("nil attachment must not be downloadable")
	}
}
