package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/samurai-chat/internal/core"
)

// LatestName is the file (or object) holding the most recent engine reply.
const LatestName = "response.txt"

// S3Key is where the S3 mirror keeps the latest reply.
const S3Key = "latest/" + LatestName

var (
	_ core.ResponseMirror = (*FileMirror)(nil)
	_ core.ResponseMirror = (*S3Mirror)(nil)
)

// FileMirror overwrites <dir>/response.txt on every reply.
type FileMirror struct {
	dir    string
	logger *slog.Logger
}

func NewFileMirror(dir string, logger *slog.Logger) (*FileMirror, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: resources directory not set", core.ErrConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileMirror{dir: dir, logger: logger.With("component", "response_mirror")}, nil
}

// Path is the location of the mirrored reply.
func (m *FileMirror) Path() string {
	return filepath.Join(m.dir, LatestName)
}

// WriteLatest replaces the mirror atomically so readers never see a partial reply.
func (m *FileMirror) WriteLatest(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create resources dir: %v", core.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(m.dir, "."+LatestName+"-*")
	if err != nil {
		return fmt.Errorf("%w: create temp mirror: %v", core.ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write mirror: %v", core.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close mirror: %v", core.ErrStorage, err)
	}
	if err := os.Rename(tmpName, m.Path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: replace mirror: %v", core.ErrStorage, err)
	}

	m.logger.Debug("latest response mirrored", "bytes", len(text))
	return nil
}

// S3Mirror overwrites latest/response.txt in a bucket on every reply.
type S3Mirror struct {
	objects core.ObjectClient
	bucket  string
	logger  *slog.Logger
}

func NewS3Mirror(objects core.ObjectClient, bucket string, logger *slog.Logger) (*S3Mirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("%w: mirror bucket not set", core.ErrConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Mirror{objects: objects, bucket: bucket, logger: logger.With("component", "response_mirror")}, nil
}

func (m *S3Mirror) WriteLatest(ctx context.Context, text string) error {
	url, err := m.objects.UploadFile(ctx, m.bucket, S3Key, strings.NewReader(text), "text/plain; charset=utf-8")
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	m.logger.Debug("latest response mirrored", "url", url, "bytes", len(text))
	return nil
}
