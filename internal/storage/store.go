package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
)

// Store persists uploaded documents and hands back a stable reference.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// LocalPath returns a filesystem path for ref. cleanup must always be called.
	LocalPath(ctx context.Context, ref string) (path string, cleanup func(), err error)
	Delete(ctx context.Context, ref string) error
}

// New builds the backend selected by cfg.Type.
func New(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocal(cfg.UploadDir, logger)
	case "s3":
		return NewS3(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// objectName keeps the original extension behind a random key so that
// user-supplied names never reach the filesystem or bucket.
func objectName(name string) string {
	ext := constants.NormalizeExt(filepath.Ext(name))
	if ext == "" {
		return uuid.NewString()
	}
	return uuid.NewString() + "." + ext
}

func cleanRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.Contains(ref, "..") {
		return "", common.Validationf("invalid document reference %q", ref)
	}
	return ref, nil
}
