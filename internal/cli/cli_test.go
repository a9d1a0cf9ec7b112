package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"keepsake/internal/config"
	"keepsake/internal/storage"
)

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "keepsake dev") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestOpenStoreFileSystem(t *testing.T) {
	dir := t.TempDir() + "/media"
	s, err := openStore(context.Background(), config.Config{StorageBackend: config.StorageFS, StoragePath: dir})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if _, ok := s.(*storage.FileSystemStore); !ok {
		t.Errorf("store = %T, want *storage.FileSystemStore", s)
	}
}
