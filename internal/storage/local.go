package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/acuvera/internal/common"
)

// Local stores documents under a single directory.
type Local struct {
	dir    string
	logger *slog.Logger
}

func NewLocal(dir string, logger *slog.Logger) (*Local, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, fmt.Errorf("upload dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: abs, logger: logger}, nil
}

func (l *Local) Save(_ context.Context, name string, r io.Reader) (string, error) {
	ref := objectName(name)
	path := filepath.Join(l.dir, ref)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", ref, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write %s: %w", ref, err)
	}
	l.logger.Info("storage.local.saved", "ref", ref, "bytes", n)
	return ref, nil
}

func (l *Local) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.NotFoundf("document %s not found", ref)
	}
	return f, err
}

func (l *Local) LocalPath(_ context.Context, ref string) (string, func(), error) {
	path, err := l.path(ref)
	if err != nil {
		return "", func() {}, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", func() {}, common.NotFoundf("document %s not found", ref)
	}
	return path, func() {}, nil
}

func (l *Local) Delete(_ context.Context, ref string) error {
	path, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	l.logger.Info("storage.local.deleted", "ref", ref)
	return nil
}

func (l *Local) path(ref string) (string, error) {
	ref, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, filepath.Base(ref)), nil
}
