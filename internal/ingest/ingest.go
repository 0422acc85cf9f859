package ingest

import (
	"context"
	"time"

	"github.com/joseph-ayodele/acuvera/internal/bills"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

// Result is the per-file ingest outcome.
type Result struct {
	SourcePath   string
	BillID       int64
	Deduplicated bool
	HashHex      string
	FileExt      string
	UploadedAt   time.Time
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Uploader accepts a document on behalf of a user.
type Uploader interface {
	Upload(ctx context.Context, user *entity.User, in bills.UploadInput) (*bills.UploadResult, error)
}

// UserLookup resolves the account files are uploaded for.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
}
