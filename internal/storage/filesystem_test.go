package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemStore_Put(t *testing.T) {
	ctx := context.Background()

	t.Run("saves blob under couple directory", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)
		key := NewKey(7)

		n, err := store.Put(ctx, key, bytes.NewReader([]byte("test content")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 12 {
			t.Errorf("expected 12 bytes written, got %d", n)
		}

		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
		if err != nil {
			t.Fatalf("failed to read saved file: %v", err)
		}
		if string(content) != "test content" {
			t.Errorf("expected 'test content', got %q", content)
		}
	})

	t.Run("reports size of large content", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		largeContent := strings.Repeat("x", 1024*1024) // 1MB
		n, err := store.Put(ctx, NewKey(1), strings.NewReader(largeContent))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != int64(len(largeContent)) {
			t.Errorf("expected %d bytes, got %d", len(largeContent), n)
		}
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())
		if _, err := store.Put(ctx, "../../etc/passwd", strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("expected ErrInvalidKey, got %v", err)
		}
	})
}

func TestFileSystemStore_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("reads back stored blob", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())
		key := NewKey(3)
		store.Put(ctx, key, strings.NewReader("data"))

		rc, err := store.Open(ctx, key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		if string(b) != "data" {
			t.Errorf("expected 'data', got %q", b)
		}
	})

	t.Run("missing blob", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())
		if _, err := store.Open(ctx, NewKey(3)); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestFileSystemStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes existing blob", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)
		key := NewKey(9)
		store.Put(ctx, key, strings.NewReader("data"))

		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(key))); !os.IsNotExist(err) {
			t.Error("expected file to be deleted")
		}
	})

	t.Run("no error for missing blob", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())
		if err := store.Delete(ctx, NewKey(9)); err != nil {
			t.Errorf("expected no error for missing file, got: %v", err)
		}
	})
}

func TestFileSystemStore_EnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "storage", "path")
	store := NewFileSystemStore(dir)

	if err := store.EnsureDir(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a directory")
	}
}
