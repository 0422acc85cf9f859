package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

const jobsTable = "analysis_jobs"

var jobColumns = []string{
	"id", "bill_id", "status", "error_message", "attempts",
	"started_at", "completed_at", "created_at", "updated_at",
}

type AnalysisJobRepository interface {
	Create(ctx context.Context, billID int64) (*entity.AnalysisJob, error)
	GetByBillID(ctx context.Context, billID int64) (*entity.AnalysisJob, error)
	// Claim moves the job PENDING -> PROCESSING. It reports false when the job
	// was not PENDING, so at most one caller wins.
	Claim(ctx context.Context, billID int64, now time.Time) (bool, error)
	Touch(ctx context.Context, billID int64, now time.Time) error
	MarkCompleted(ctx context.Context, billID int64, now time.Time) error
	MarkFailed(ctx context.Context, billID int64, message string, now time.Time) error
	// Reset moves a job in one of from back to PENDING; it reports whether a row changed.
	Reset(ctx context.Context, billID int64, from []constants.JobStatus, olderThan *time.Time, now time.Time) (bool, error)
	ListByStatus(ctx context.Context, status constants.JobStatus, updatedBefore time.Time, limit int) ([]entity.AnalysisJob, error)
}

type analysisJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewAnalysisJobRepository(db *DB, log *slog.Logger) AnalysisJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &analysisJobRepo{db: db, log: log}
}

func (r *analysisJobRepo) Create(ctx context.Context, billID int64) (*entity.AnalysisJob, error) {
	now := time.Now().UTC()
	ib := r.db.builder().Insert(jobsTable).
		Columns("bill_id", "status", "attempts", "created_at", "updated_at").
		Values(billID, string(constants.JobStatusPending), 0, now, now)
	id, err := r.db.insert(ctx, ib)
	if err != nil {
		r.log.Error("analysis_job create failed", "bill_id", billID, "err", err)
		return nil, common.PersistenceError("create analysis job", err)
	}
	r.log.Info("analysis_job created", "job_id", id, "bill_id", billID)
	return &entity.AnalysisJob{
		ID:        id,
		BillID:    billID,
		Status:    constants.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (r *analysisJobRepo) GetByBillID(ctx context.Context, billID int64) (*entity.AnalysisJob, error) {
	sel := r.db.builder().Select(jobColumns...).
		From(r.db.table(jobsTable)).
		Where(entsql.EQ("bill_id", billID))
	j, err := scanJob(r.db.queryRow(ctx, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundf("analysis job for bill %d not found", billID)
	}
	if err != nil {
		r.log.Error("analysis_job get failed", "bill_id", billID, "err", err)
		return nil, common.PersistenceError("get analysis job", err)
	}
	return j, nil
}

func (r *analysisJobRepo) Claim(ctx context.Context, billID int64, now time.Time) (bool, error) {
	now = now.UTC()
	ub := r.db.builder().Update(jobsTable).
		Set("status", string(constants.JobStatusProcessing)).
		Set("started_at", now).
		Set("updated_at", now).
		SetNull("error_message").
		Add("attempts", 1).
		Where(entsql.And(
			entsql.EQ("bill_id", billID),
			entsql.EQ("status", string(constants.JobStatusPending)),
		))
	n, err := r.db.exec(ctx, ub)
	if err != nil {
		r.log.Error("analysis_job claim failed", "bill_id", billID, "err", err)
		return false, common.PersistenceError("claim analysis job", err)
	}
	if n == 0 {
		r.log.Warn("analysis_job not claimable", "bill_id", billID)
		return false, nil
	}
	r.log.Info("analysis_job claimed", "bill_id", billID)
	return true, nil
}

// Touch refreshes updated_at on a running job.
func (r *analysisJobRepo) Touch(ctx context.Context, billID int64, now time.Time) error {
	ub := r.db.builder().Update(jobsTable).
		Set("updated_at", now.UTC()).
		Where(entsql.And(
			entsql.EQ("bill_id", billID),
			entsql.EQ("status", string(constants.JobStatusProcessing)),
		))
	if _, err := r.db.exec(ctx, ub); err != nil {
		return common.PersistenceError("touch analysis job", err)
	}
	return nil
}

func (r *analysisJobRepo) MarkCompleted(ctx context.Context, billID int64, now time.Time) error {
	now = now.UTC()
	ub := r.db.builder().Update(jobsTable).
		Set("status", string(constants.JobStatusCompleted)).
		Set("completed_at", now).
		Set("updated_at", now).
		SetNull("error_message").
		Where(entsql.EQ("bill_id", billID))
	n, err := r.db.exec(ctx, ub)
	if err != nil {
		r.log.Error("analysis_job finish(COMPLETED) failed", "bill_id", billID, "err", err)
		return common.PersistenceError("complete analysis job", err)
	}
	if n == 0 {
		return common.NotFoundf("analysis job for bill %d not found", billID)
	}
	r.log.Info("analysis_job finished (COMPLETED)", "bill_id", billID)
	return nil
}

func (r *analysisJobRepo) MarkFailed(ctx context.Context, billID int64, message string, now time.Time) error {
	now = now.UTC()
	ub := r.db.builder().Update(jobsTable).
		Set("status", string(constants.JobStatusFailed)).
		Set("error_message", message).
		Set("completed_at", now).
		Set("updated_at", now).
		Where(entsql.EQ("bill_id", billID))
	n, err := r.db.exec(ctx, ub)
	if err != nil {
		r.log.Error("analysis_job finish(FAILED) failed", "bill_id", billID, "err", err)
		return common.PersistenceError("fail analysis job", err)
	}
	if n == 0 {
		return common.NotFoundf("analysis job for bill %d not found", billID)
	}
	r.log.Warn("analysis_job finished (FAILED)", "bill_id", billID, "error", message)
	return nil
}

func (r *analysisJobRepo) Reset(ctx context.Context, billID int64, from []constants.JobStatus, olderThan *time.Time, now time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	vals := make([]any, len(from))
	for i, s := range from {
		vals[i] = string(s)
	}
	preds := []*entsql.Predicate{
		entsql.EQ("bill_id", billID),
		entsql.In("status", vals...),
	}
	if olderThan != nil {
		preds = append(preds, entsql.LT("updated_at", olderThan.UTC()))
	}
	ub := r.db.builder().Update(jobsTable).
		Set("status", string(constants.JobStatusPending)).
		Set("updated_at", now.UTC()).
		SetNull("error_message").
		SetNull("started_at").
		SetNull("completed_at").
		Where(entsql.And(preds...))
	n, err := r.db.exec(ctx, ub)
	if err != nil {
		r.log.Error("analysis_job reset failed", "bill_id", billID, "err", err)
		return false, common.PersistenceError("reset analysis job", err)
	}
	if n > 0 {
		r.log.Info("analysis_job reset to PENDING", "bill_id", billID)
	}
	return n > 0, nil
}

// ListByStatus returns jobs in status last updated before the cutoff, oldest first.
func (r *analysisJobRepo) ListByStatus(ctx context.Context, status constants.JobStatus, updatedBefore time.Time, limit int) ([]entity.AnalysisJob, error) {
	sel := r.db.builder().Select(jobColumns...).
		From(r.db.table(jobsTable)).
		Where(entsql.And(
			entsql.EQ("status", string(status)),
			entsql.LT("updated_at", updatedBefore.UTC()),
		)).
		OrderBy("updated_at", "id")
	if limit > 0 {
		sel.Limit(limit)
	}
	rows, err := r.db.query(ctx, sel)
	if err != nil {
		r.log.Error("analysis_job list failed", "status", status, "err", err)
		return nil, common.PersistenceError("list analysis jobs", err)
	}
	defer rows.Close()

	var out []entity.AnalysisJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, common.PersistenceError("scan analysis job", err)
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, common.PersistenceError("list analysis jobs", err)
	}
	return out, nil
}

func scanJob(row rowScanner) (*entity.AnalysisJob, error) {
	var (
		j                      entity.AnalysisJob
		status                 string
		errMsg                 sql.NullString
		startedAt, completedAt sql.NullTime
	)
	if err := row.Scan(&j.ID, &j.BillID, &status, &errMsg, &j.Attempts,
		&startedAt, &completedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = constants.JobStatus(status)
	j.ErrorMessage = stringPtr(errMsg)
	j.StartedAt = timePtr(startedAt)
	j.CompletedAt = timePtr(completedAt)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}
