package models

import (
	"strings"
	"testing"
)

func TestTruncatePreview(t *testing.T) {
	short := "engine light is on"
	if got := TruncatePreview(short, 30); got != short {
		t.Fatalf("short text altered: %q", got)
	}

	long := strings.Repeat("a", 40)
	if got := TruncatePreview(long, 30); got != strings.Repeat("a", 30)+"…" {
		t.Fatalf("long text: %q", got)
	}

	// Truncation counts runes, not bytes.
	cyrillic := strings.Repeat("д", 35)
	if got := TruncatePreview(cyrillic, 30); got != strings.Repeat("д", 30)+"…" {
		t.Fatalf("multibyte text: %q", got)
	}
}

func TestMessagePreview(t *testing.T) {
	text := "where is my delivery?"
	msg := &Message{Type: MessageTypeText, Content: &text}
	if got := msg.Preview(); got != text {
		t.Fatalf("text preview = %q", got)
	}

	url := "/uploads/photo.png"
	msg = &Message{Type: MessageTypeImage, FileURL: &url}
	if got := msg.Preview(); got != "📎 image" {
		t.Fatalf("image preview = %q", got)
	}

	msg = &Message{Type: MessageTypeVideo}
	if got := msg.Preview(); got != "📎 video" {
		t.Fatalf("video preview = %q", got)
	}
}
