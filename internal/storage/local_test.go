package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	at := time.Date(2025, 3, 10, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	if got := Key("abc", ".mp3", at); got != "2025-03-09/abc.mp3" {
		t.Errorf("Key = %q, want 2025-03-09/abc.mp3", got)
	}
}

func TestLocalStore_SaveOpen(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()
	key := "2025-03-09/abc.mp3"

	if s.Exists(ctx, key) {
		t.Fatal("Exists before Save")
	}
	if err := s.Save(ctx, key, []byte("ID3data"), "audio/mpeg"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists(ctx, key) {
		t.Fatal("Exists after Save = false")
	}
	if _, err := os.Stat(filepath.Join(dir, "2025-03-09", "abc.mp3")); err != nil {
		t.Fatalf("file not on disk: %v", err)
	}

	rc, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "ID3data" {
		t.Errorf("data = %q", data)
	}

	url, err := s.URL(ctx, key)
	if err != nil || url != "" {
		t.Errorf("URL = %q, %v; want empty", url, err)
	}
	if s.Type() != "local" {
		t.Errorf("Type = %q", s.Type())
	}

	// no temp files left behind
	entries, _ := os.ReadDir(filepath.Join(dir, "2025-03-09"))
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()
	for _, key := range []string{"../etc/passwd", "/abs/path.mp3", ""} {
		if err := s.Save(ctx, key, []byte("x"), ""); err == nil {
			t.Errorf("Save(%q) should fail", key)
		}
		if _, err := s.Open(ctx, key); err == nil {
			t.Errorf("Open(%q) should fail", key)
		}
	}
}

func TestLocalStore_OpenMissing(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	_, err := s.Open(context.Background(), "2025-03-09/nope.mp3")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Open err = %v, want ErrNotFound", err)
	}
}
