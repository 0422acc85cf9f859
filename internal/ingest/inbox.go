package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/bills"
	"github.com/joseph-ayodele/acuvera/internal/common"
)

// InboxConfig names the watched directory and the patient its files belong to.
type InboxConfig struct {
	Dir       string
	PatientID int64
	Debounce  time.Duration
}

// InboxConfigFrom maps the application config.
func InboxConfigFrom(c *common.Config) InboxConfig {
	return InboxConfig{Dir: c.Inbox.Dir, PatientID: c.Inbox.PatientID, Debounce: c.Inbox.Debounce}
}

// Inbox uploads documents dropped into a directory. Identical content is
// uploaded once per process.
type Inbox struct {
	cfg      InboxConfig
	users    UserLookup
	uploader Uploader
	log      *slog.Logger

	mu   sync.Mutex
	seen map[string]int64 // sha256 hex -> bill id
}

func NewInbox(cfg InboxConfig, users UserLookup, uploader Uploader, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{cfg: cfg, users: users, uploader: uploader, log: logger, seen: map[string]int64{}}
}

// Run watches the inbox until ctx is cancelled. Files already present are
// picked up on start.
func (in *Inbox) Run(ctx context.Context) error {
	events, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{in.cfg.Dir},
		InitialScan: true,
		Debounce:    in.cfg.Debounce,
	}, in.log)
	if err != nil {
		return err
	}
	in.log.Info("ingest.inbox.started", "dir", in.cfg.Dir, "patient_id", in.cfg.PatientID)

	for {
		select {
		case <-ctx.Done():
			in.log.Info("ingest.inbox.stopped", "dir", in.cfg.Dir)
			return nil
		case path, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := in.IngestPath(ctx, path); err != nil {
				in.log.Warn("ingest.inbox.failed", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			in.log.Warn("ingest.inbox.watch_error", "error", err)
		}
	}
}

// IngestPath uploads one file for the inbox patient.
func (in *Inbox) IngestPath(ctx context.Context, path string) (Result, error) {
	out := Result{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if !AllowedExt(ext) {
		return out, common.Validationf("unsupported or missing extension: %q", ext)
	}
	out.FileExt = ext

	data, err := os.ReadFile(abs)
	if err != nil {
		return out, fmt.Errorf("read: %w", err)
	}
	sum := sha256.Sum256(data)
	out.HashHex = hex.EncodeToString(sum[:])

	in.mu.Lock()
	billID, dup := in.seen[out.HashHex]
	in.mu.Unlock()
	if dup {
		out.BillID = billID
		out.Deduplicated = true
		in.log.Debug("ingest.inbox.duplicate", "path", abs, "bill_id", billID)
		return out, nil
	}

	user, err := in.users.GetByID(ctx, in.cfg.PatientID)
	if err != nil {
		return out, err
	}
	res, err := in.uploader.Upload(ctx, user, bills.UploadInput{
		FileName:    filepath.Base(abs),
		ContentType: constants.MIMEForKind(constants.FileKindForExt(ext)),
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		return out, err
	}

	in.mu.Lock()
	in.seen[out.HashHex] = res.Bill.ID
	in.mu.Unlock()

	out.BillID = res.Bill.ID
	out.UploadedAt = res.Bill.UploadedAt
	in.log.Info("ingest.inbox.uploaded", "path", abs, "bill_id", res.Bill.ID, "sha256", out.HashHex)
	return out, nil
}
