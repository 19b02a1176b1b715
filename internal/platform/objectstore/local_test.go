package objectstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

func TestLocalStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, logger.NewNop(), Config{Mode: ModeLocal, LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := "curriculum-uploads/abc/unit.md"

	if err := store.UploadFile(ctx, key, strings.NewReader("# Unit 1"), "text/markdown"); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	rc, err := store.DownloadFile(ctx, key)
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "# Unit 1" {
		t.Fatalf("content = %q", b)
	}

	if err := store.DeleteFile(ctx, key); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if err := store.DeleteFile(ctx, key); err != nil {
		t.Fatalf("second DeleteFile: %v", err)
	}
	if _, err := store.DownloadFile(ctx, key); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("DownloadFile after delete: want fs.ErrNotExist, got %v", err)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(logger.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	for _, key := range []string{"", "../outside.txt", "a/../../outside.txt"} {
		if err := store.UploadFile(ctx, key, strings.NewReader("x"), ""); !errors.Is(err, errInvalidKey) {
			t.Fatalf("UploadFile(%q): want errInvalidKey, got %v", key, err)
		}
	}
}
