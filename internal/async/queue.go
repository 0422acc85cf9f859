package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/acuvera/internal/analysis"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// cancelGrace bounds the wait for workers after an interrupted shutdown
// cancels their contexts.
const cancelGrace = 5 * time.Second

// Job asks a worker to analyze one bill.
type Job struct {
	BillID      int64
	SubmittedAt time.Time
	RequestID   string
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// BillAnalyzer runs one bill to a terminal state.
type BillAnalyzer interface {
	Analyze(ctx context.Context, billID int64) (analysis.Summary, error)
}

type Queue struct {
	analyzer BillAnalyzer
	logger   *slog.Logger
	workers  int
	timeout  time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// base parents every job context; Shutdown cancels it when the drain
	// deadline passes so workers finish before the store goes away.
	base       context.Context
	cancelBase context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(an BillAnalyzer, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		analyzer: an,
		logger:   logger,
		workers:  4,
		timeout:  3 * time.Minute,
		ch:       make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.base, q.cancelBase = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.start", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Debug("queue.worker.stop", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) run(workerID int, job Job) {
	if q.base.Err() != nil {
		// Left PENDING for the recovery poller.
		q.logger.Warn("queue.job.abandoned", "worker_id", workerID, "bill_id", job.BillID)
		return
	}
	ctx, cancel := context.WithTimeout(q.base, q.timeout)
	defer cancel()

	sum, err := q.analyzer.Analyze(ctx, job.BillID)
	switch {
	case errors.Is(err, analysis.ErrAlreadyClaimed):
		q.logger.Info("queue.job.skipped", "worker_id", workerID, "bill_id", job.BillID, "reason", "not pending")
	case err != nil:
		q.logger.Error("queue.job.failed", "worker_id", workerID, "bill_id", job.BillID, "request_id", job.RequestID, "error", err)
	default:
		q.logger.Info("queue.job.done",
			"worker_id", workerID,
			"bill_id", job.BillID,
			"source", sum.Source,
			"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
		)
	}
}

// Enqueue blocks while the buffer is full, until ctx ends.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "bill_id", job.BillID)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Info("queue.enqueued", "bill_id", job.BillID)
		return nil
	default:
	}
	q.logger.Warn("queue.full", "bill_id", job.BillID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to drain. When ctx
// ends first, running jobs are cancelled, jobs still queued are abandoned and
// Shutdown waits briefly for the workers to return.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	defer q.cancelBase()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-done:
		q.logger.Info("queue.shutdown.drained")
		return
	case <-ctx.Done():
	}

	q.logger.Warn("queue.shutdown.interrupted", "pending", len(q.ch))
	q.cancelBase()
	select {
	case <-done:
		q.logger.Info("queue.shutdown.cancelled")
	case <-time.After(cancelGrace):
		q.logger.Error("queue.shutdown.workers_stuck", "grace", cancelGrace)
	}
}
