package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "/uploads/")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	url, err := store.Save(context.Background(), "photo.PNG", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/") {
		t.Fatalf("url %q outside public prefix", url)
	}
	// The client-supplied name contributes only a normalized extension.
	if !strings.HasSuffix(url, ".png") {
		t.Fatalf("extension not kept: %q", url)
	}

	stored := filepath.Join(dir, strings.TrimPrefix(url, "/uploads/"))
	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("stored content = %q", data)
	}

	// Same source name twice must not collide.
	other, err := store.Save(context.Background(), "photo.PNG", strings.NewReader("again"))
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if other == url {
		t.Fatal("two uploads of the same name collided")
	}
}

func TestNewLocalStoreCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	if _, err := NewLocalStore(dir, "/uploads/"); err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("upload dir not created: %v", err)
	}
}
