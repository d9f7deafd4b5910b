package whatsapp

import "testing"

func TestIsDocumentMIME(t *testing.T) {
	tests := []struct {
		mimeType string
		want     bool
	}{
		{"image/jpeg", false},
		{"image/png", false},
		{"video/mp4", false},
		{"audio/mpeg", false},
		{"application/pdf", true},
		{"application/zip", true},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", true},
		{"text/plain", true},
		{"IMAGE/JPEG", false},
		{"", true},
	}
	for _, tt := range tests {
		if got := IsDocumentMIME(tt.mimeType); got != tt.want {
			t.Errorf("IsDocumentMIME(%q) = %v, want %v", tt.mimeType, got, tt.want)
		}
	}
}

func TestMediaKindForMIME(t *testing.T) {
	tests := []struct {
		mimeType string
		want     string
	}{
		{"image/webp", "image"},
		{"video/mp4", "video"},
		{"audio/mpeg", "audio"},
		{"application/pdf", "document"},
		{"text/plain", "document"},
	}
	for _, tt := range tests {
		if got := mediaKindForMIME(tt.mimeType); got != tt.want {
			t.Errorf("mediaKindForMIME(%q) = %q, want %q", tt.mimeType, got, tt.want)
		}
	}
}
