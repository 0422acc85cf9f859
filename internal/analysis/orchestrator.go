package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/analyzer"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/repository"
)

// ErrAlreadyClaimed is returned when another worker owns the bill's job.
var ErrAlreadyClaimed = common.NewAppError(common.CodeConflict, "analysis job is not pending", common.ErrConflict)

// Config drives the orchestrator. AnalyzerEnabled replaces any global
// credential lookup.
type Config struct {
	AnalyzerEnabled    bool
	MinTextChars       int
	MaxPages           int
	AnalyzerTimeout    time.Duration
	FailureMarkTimeout time.Duration
	// StaleAfter is how long a PROCESSING job must be idle before Reanalyze may reset it.
	StaleAfter time.Duration
}

func ConfigFrom(c *common.Config) Config {
	return Config{
		AnalyzerEnabled: c.AnalyzerEnabled(),
		MinTextChars:    c.Analysis.MinTextChars,
		MaxPages:        c.Extractor.MaxPages,
		AnalyzerTimeout: c.Analyzer.Timeout,
		StaleAfter:      c.Queue.StaleAfter,
	}
}

// Extractor produces text or page images for a stored document.
type Extractor interface {
	ExtractText(ctx context.Context, ref string) (string, error)
	RenderPages(ctx context.Context, ref string, maxPages int) ([]string, error)
}

// Repositories groups the stores the orchestrator writes through.
type Repositories struct {
	Bills     repository.BillRepository
	Jobs      repository.AnalysisJobRepository
	LineItems repository.LineItemRepository
	Findings  repository.FindingRepository
	Tx        repository.TxRunner
}

// Orchestrator owns the bill/job lifecycle PENDING -> PROCESSING -> COMPLETED|FAILED.
type Orchestrator struct {
	cfg        Config
	repos      Repositories
	extractor  Extractor
	analyzer   analyzer.Analyzer
	fallback   *FallbackGenerator
	normalizer *Normalizer
	now        func() time.Time
	log        *slog.Logger
}

type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator wires the pipeline. an may be nil, in which case only the
// fallback generator runs.
func NewOrchestrator(cfg Config, repos Repositories, ex Extractor, an analyzer.Analyzer, fb *FallbackGenerator, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if cfg.AnalyzerTimeout <= 0 {
		cfg.AnalyzerTimeout = 60 * time.Second
	}
	if cfg.FailureMarkTimeout <= 0 {
		cfg.FailureMarkTimeout = 5 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if fb == nil {
		fb = NewFallbackGenerator(0)
	}
	o := &Orchestrator{
		cfg:        cfg,
		repos:      repos,
		extractor:  ex,
		analyzer:   an,
		fallback:   fb,
		normalizer: NewNormalizer(),
		now:        time.Now,
		log:        logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze runs one bill to a terminal state. Once the job is claimed, any
// error leaves the bill FAILED on a best-effort basis.
func (o *Orchestrator) Analyze(ctx context.Context, billID int64) (sum Summary, err error) {
	start := o.now()
	bill, err := o.repos.Bills.GetByID(ctx, billID)
	if err != nil {
		return Summary{}, err
	}
	if _, err := o.repos.Jobs.GetByBillID(ctx, billID); err != nil {
		return Summary{}, err
	}

	err = o.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := o.repos.Jobs.Claim(ctx, billID, o.now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyClaimed
		}
		return o.repos.Bills.UpdateStatus(ctx, billID, constants.BillStatusProcessing)
	})
	if err != nil {
		if !errors.Is(err, ErrAlreadyClaimed) {
			o.log.Error("analysis.claim_failed", "bill_id", billID, "error", err)
		}
		return Summary{}, err
	}
	o.log.Info("analysis.start", "bill_id", billID, "file_type", bill.FileType, "ai_enabled", o.aiEnabled())

	defer func() {
		if r := recover(); r != nil {
			err = common.NewAppError(common.CodeInternal, fmt.Sprintf("analysis panicked: %v", r), common.ErrInternal)
			o.MarkFailed(billID, err.Error())
		}
	}()

	res, err := o.produce(ctx, bill)
	if err != nil {
		o.log.Error("analysis.failed", "bill_id", billID, "stage", "produce", "error", err)
		o.MarkFailed(billID, err.Error())
		return Summary{}, err
	}

	analyzedAt := o.now()
	if err := o.persist(ctx, billID, res, analyzedAt); err != nil {
		o.log.Error("analysis.failed", "bill_id", billID, "stage", "persist", "error", err)
		o.MarkFailed(billID, err.Error())
		return Summary{}, common.PersistenceError("persist analysis", err)
	}

	sum = Summary{
		BillID:                billID,
		TotalAmount:           res.TotalAmount,
		LineItemsCount:        len(res.LineItems),
		FindingsCount:         len(res.Findings),
		TotalEstimatedSavings: res.savings(),
		RiskScore:             res.RiskScore,
		Text:                  res.Summary,
		Source:                res.Source,
	}
	o.log.Info("analysis.completed",
		"bill_id", billID,
		"source", res.Source,
		"line_items", sum.LineItemsCount,
		"findings", sum.FindingsCount,
		"savings", sum.TotalEstimatedSavings,
		"elapsed_ms", o.now().Sub(start).Milliseconds(),
	)
	return sum, nil
}

func (o *Orchestrator) aiEnabled() bool {
	return o.cfg.AnalyzerEnabled && o.analyzer != nil
}

// produce tries the AI path and falls back on any error from it.
func (o *Orchestrator) produce(ctx context.Context, bill *entity.Bill) (Result, error) {
	if o.aiEnabled() {
		res, err := o.aiPath(ctx, bill)
		if err == nil {
			return res, nil
		}
		o.log.Warn("analysis.ai.fallback", "bill_id", bill.ID, "error", err)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}
	return o.fallback.Generate(ctx, bill.ID)
}

func (o *Orchestrator) aiPath(ctx context.Context, bill *entity.Bill) (Result, error) {
	if err := o.repos.Jobs.Touch(ctx, bill.ID, o.now()); err != nil {
		o.log.Warn("analysis.touch_failed", "bill_id", bill.ID, "error", err)
	}

	text, textErr := o.extractor.ExtractText(ctx, bill.FilePath)
	if textErr != nil {
		o.log.Warn("analysis.extract.text_failed", "bill_id", bill.ID, "error", textErr)
	}

	actx, cancel := context.WithTimeout(ctx, o.cfg.AnalyzerTimeout)
	defer cancel()

	var (
		payload analyzer.Payload
		err     error
	)
	if chars := utf8.RuneCountInString(strings.TrimSpace(text)); chars >= o.cfg.MinTextChars {
		o.log.Info("analysis.ai.text", "bill_id", bill.ID, "chars", chars)
		payload, err = o.analyzer.AnalyzeText(actx, text)
	} else {
		pages, renderErr := o.extractor.RenderPages(ctx, bill.FilePath, o.cfg.MaxPages)
		if renderErr != nil || len(pages) == 0 {
			return Result{}, common.ExtractionError("no usable text or page images", errors.Join(textErr, renderErr))
		}
		o.log.Info("analysis.ai.vision", "bill_id", bill.ID, "pages", len(pages))
		payload, err = o.analyzer.AnalyzeImages(actx, pages)
	}
	if err != nil {
		return Result{}, err
	}
	return o.normalizer.Normalize(bill.ID, payload), nil
}

// persist writes line items, findings and both terminal statuses in one transaction.
func (o *Orchestrator) persist(ctx context.Context, billID int64, res Result, analyzedAt time.Time) error {
	return o.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		items, err := o.repos.LineItems.CreateBulk(ctx, billID, res.LineItems)
		if err != nil {
			return err
		}
		findings := make([]entity.Finding, 0, len(res.Findings))
		for _, d := range res.Findings {
			f := d.Finding
			f.CreatedAt = analyzedAt.UTC()
			if d.LineItem >= 0 && d.LineItem < len(items) {
				id := items[d.LineItem].ID
				f.LineItemID = &id
			}
			findings = append(findings, f)
		}
		if _, err := o.repos.Findings.CreateBulk(ctx, billID, findings); err != nil {
			return err
		}
		if err := o.repos.Bills.MarkCompleted(ctx, billID, res.TotalAmount, analyzedAt); err != nil {
			return err
		}
		return o.repos.Jobs.MarkCompleted(ctx, billID, analyzedAt)
	})
}

// MarkFailed moves job and bill to FAILED on a fresh context. Errors are
// logged and swallowed so they never mask the original failure.
func (o *Orchestrator) MarkFailed(billID int64, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.FailureMarkTimeout)
	defer cancel()

	now := o.now()
	if err := o.repos.Jobs.MarkFailed(ctx, billID, message, now); err != nil {
		o.log.Error("analysis.mark_failed.job", "bill_id", billID, "error", err)
	}
	if err := o.repos.Bills.UpdateStatus(ctx, billID, constants.BillStatusFailed); err != nil {
		o.log.Error("analysis.mark_failed.bill", "bill_id", billID, "error", err)
	}
}

// Reanalyze resets the bill's existing job to PENDING and clears previous
// results. FAILED jobs and PROCESSING jobs idle longer than StaleAfter are
// eligible; COMPLETED jobs only with force. A PENDING job is left alone.
func (o *Orchestrator) Reanalyze(ctx context.Context, billID int64, force bool) error {
	if _, err := o.repos.Bills.GetByID(ctx, billID); err != nil {
		return err
	}
	job, err := o.repos.Jobs.GetByBillID(ctx, billID)
	if err != nil {
		return err
	}

	now := o.now()
	var olderThan *time.Time
	switch job.Status {
	case constants.JobStatusPending:
		return nil
	case constants.JobStatusCompleted:
		if !force {
			return common.Conflictf("bill %d is already analyzed", billID)
		}
	case constants.JobStatusProcessing:
		cutoff := now.Add(-o.cfg.StaleAfter)
		olderThan = &cutoff
	}

	err = o.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := o.repos.Jobs.Reset(ctx, billID, []constants.JobStatus{job.Status}, olderThan, now)
		if err != nil {
			return err
		}
		if !ok {
			return common.Conflictf("bill %d is being analyzed", billID)
		}
		if err := o.repos.Findings.DeleteByBill(ctx, billID); err != nil {
			return err
		}
		if err := o.repos.LineItems.DeleteByBill(ctx, billID); err != nil {
			return err
		}
		return o.repos.Bills.ResetForReanalysis(ctx, billID)
	})
	if err != nil {
		return err
	}
	o.log.Info("analysis.reset", "bill_id", billID, "from", job.Status, "attempts", job.Attempts)
	return nil
}
