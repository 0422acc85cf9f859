package async

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/repository"
)

// Resetter is the part of the orchestrator the poller drives.
type Resetter interface {
	Reanalyze(ctx context.Context, billID int64, force bool) error
	MarkFailed(billID int64, message string)
}

type RecoveryConfig struct {
	Interval    time.Duration
	Grace       time.Duration
	StaleAfter  time.Duration
	MaxAttempts int
	BatchSize   int
}

// SweepResult counts what one pass did.
type SweepResult struct {
	Requeued  int
	Reset     int
	Abandoned int
}

// Recovery re-queues PENDING jobs whose enqueue was lost and resets
// PROCESSING jobs left behind by a crashed worker.
type Recovery struct {
	cfg      RecoveryConfig
	jobs     repository.AnalysisJobRepository
	resetter Resetter
	queue    Enqueuer
	now      func() time.Time
	log      *slog.Logger
}

func NewRecovery(cfg RecoveryConfig, jobs repository.AnalysisJobRepository, resetter Resetter, queue Enqueuer, now func() time.Time, logger *slog.Logger) *Recovery {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{cfg: cfg, jobs: jobs, resetter: resetter, queue: queue, now: now, log: logger}
}

// Run sweeps every Interval until ctx ends.
func (r *Recovery) Run(ctx context.Context) {
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()
	r.log.Info("recovery.start", "interval", r.cfg.Interval, "stale_after", r.cfg.StaleAfter)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("recovery.stop")
			return
		case <-t.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Error("recovery.sweep_failed", "error", err)
			}
		}
	}
}

// Sweep runs one recovery pass.
func (r *Recovery) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := r.now()

	pending, err := r.jobs.ListByStatus(ctx, constants.JobStatusPending, now.Add(-r.cfg.Grace), r.cfg.BatchSize)
	if err != nil {
		return res, err
	}
	for _, j := range pending {
		if err := r.queue.Enqueue(ctx, Job{BillID: j.BillID, SubmittedAt: now}); err != nil {
			return res, err
		}
		res.Requeued++
	}

	stale, err := r.jobs.ListByStatus(ctx, constants.JobStatusProcessing, now.Add(-r.cfg.StaleAfter), r.cfg.BatchSize)
	if err != nil {
		return res, err
	}
	for _, j := range stale {
		if j.Attempts >= r.cfg.MaxAttempts {
			r.resetter.MarkFailed(j.BillID, fmt.Sprintf("abandoned after %d attempts", j.Attempts))
			r.log.Warn("recovery.abandoned", "bill_id", j.BillID, "attempts", j.Attempts)
			res.Abandoned++
			continue
		}
		if err := r.resetter.Reanalyze(ctx, j.BillID, false); err != nil {
			r.log.Warn("recovery.reset_failed", "bill_id", j.BillID, "error", err)
			continue
		}
		if err := r.queue.Enqueue(ctx, Job{BillID: j.BillID, SubmittedAt: now}); err != nil {
			return res, err
		}
		r.log.Info("recovery.reset", "bill_id", j.BillID, "attempts", j.Attempts)
		res.Reset++
	}

	if res != (SweepResult{}) {
		r.log.Info("recovery.sweep", "requeued", res.Requeued, "reset", res.Reset, "abandoned", res.Abandoned)
	}
	return res, nil
}
