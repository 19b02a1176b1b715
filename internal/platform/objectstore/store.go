// Package objectstore keeps uploaded curriculum source files. Keys are
// slash separated; a missing key yields an error wrapping fs.ErrNotExist.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

type Store interface {
	UploadFile(ctx context.Context, key string, file io.Reader, contentType string) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, key string) error
}

// New builds the store selected by cfg.Mode.
func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if cfg.Mode == ModeLocal {
		return NewLocalStore(log, cfg.LocalDir)
	}
	return NewGCSStore(ctx, log, cfg)
}

// SourceKey is where an upload's source file lives.
func SourceKey(uploadID uuid.UUID, filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "source"
	}
	return "curriculum-uploads/" + uploadID.String() + "/" + name
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".md"), strings.HasSuffix(s, ".markdown"):
		return "text/markdown"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain"
	case strings.HasSuffix(s, ".imscc"), strings.HasSuffix(s, ".zip"):
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
