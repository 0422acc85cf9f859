package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/analyzer"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/repository"
)

type fakeAnalyzer struct {
	payload    analyzer.Payload
	err        error
	textCalls  int
	imageCalls int
	pages      []string
}

func (f *fakeAnalyzer) AnalyzeText(_ context.Context, _ string) (analyzer.Payload, error) {
	f.textCalls++
	return f.payload, f.err
}

func (f *fakeAnalyzer) AnalyzeImages(_ context.Context, pages []string) (analyzer.Payload, error) {
	f.imageCalls++
	f.pages = pages
	return f.payload, f.err
}

type fakeExtractor struct {
	text      string
	textErr   error
	pages     []string
	renderErr error
}

func (f *fakeExtractor) ExtractText(context.Context, string) (string, error) {
	return f.text, f.textErr
}

func (f *fakeExtractor) RenderPages(_ context.Context, _ string, maxPages int) ([]string, error) {
	if len(f.pages) > maxPages {
		return f.pages[:maxPages], f.renderErr
	}
	return f.pages, f.renderErr
}

type failingFindings struct {
	repository.FindingRepository
}

func (failingFindings) CreateBulk(context.Context, int64, []entity.Finding) ([]entity.Finding, error) {
	return nil, common.PersistenceError("insert findings", errors.New("constraint violated"))
}

type fixture struct {
	db    *repository.DB
	repos Repositories
	log   *slog.Logger
	users int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, "", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(log) })
	require.NoError(t, db.Migrate(ctx, log))

	return &fixture{
		db:  db,
		log: log,
		repos: Repositories{
			Bills:     repository.NewBillRepository(db, log),
			Jobs:      repository.NewAnalysisJobRepository(db, log),
			LineItems: repository.NewLineItemRepository(db, log),
			Findings:  repository.NewFindingRepository(db, log),
			Tx:        db,
		},
	}
}

// seedBill creates a patient, a bill and its PENDING job.
func (f *fixture) seedBill(t *testing.T, fileType string) *entity.Bill {
	t.Helper()
	ctx := context.Background()
	f.users++
	u, err := repository.NewUserRepository(f.db, f.log).Create(ctx, &entity.User{
		Email:    fmt.Sprintf("patient%d@example.com", f.users),
		FullName: "Pat Doe",
		Role:     constants.RolePatient,
		IsActive: true,
	})
	require.NoError(t, err)

	var bill *entity.Bill
	require.NoError(t, f.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		bill, err = f.repos.Bills.Create(ctx, &entity.Bill{
			PatientID: u.ID, FilePath: "x." + fileType, FileName: "bill." + fileType, FileType: fileType,
		})
		if err != nil {
			return err
		}
		_, err = f.repos.Jobs.Create(ctx, bill.ID)
		return err
	}))
	return bill
}

func (f *fixture) orchestrator(cfg Config, ex Extractor, an analyzer.Analyzer, opts ...Option) *Orchestrator {
	if ex == nil {
		ex = &fakeExtractor{}
	}
	return NewOrchestrator(cfg, f.repos, ex, an, NewFallbackGenerator(0), f.log, opts...)
}

func (f *fixture) assertCompleted(t *testing.T, billID int64, sum Summary) {
	t.Helper()
	ctx := context.Background()
	bill, err := f.repos.Bills.GetByID(ctx, billID)
	require.NoError(t, err)
	job, err := f.repos.Jobs.GetByBillID(ctx, billID)
	require.NoError(t, err)

	assert.Equal(t, constants.BillStatusCompleted, bill.Status)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)
	require.NotNil(t, bill.TotalAmount)
	require.NotNil(t, bill.AnalyzedAt)
	require.NotNil(t, job.CompletedAt)
	assert.InDelta(t, sum.TotalAmount, *bill.TotalAmount, 0.001)

	items, err := f.repos.LineItems.ListByBill(ctx, billID)
	require.NoError(t, err)
	findings, err := f.repos.Findings.ListByBill(ctx, billID)
	require.NoError(t, err)
	assert.NotEmpty(t, items)
	assert.NotEmpty(t, findings)
	assert.Len(t, items, sum.LineItemsCount)
	assert.Len(t, findings, sum.FindingsCount)

	ids := map[int64]bool{}
	for _, it := range items {
		ids[it.ID] = true
	}
	for _, fd := range findings {
		assert.GreaterOrEqual(t, fd.Confidence, 0.0)
		assert.LessOrEqual(t, fd.Confidence, 1.0)
		assert.GreaterOrEqual(t, fd.EstimatedSavings, 0.0)
		if fd.LineItemID != nil {
			assert.True(t, ids[*fd.LineItemID], "finding references a line item of another bill")
		}
	}
}

func TestAnalyzeFallbackCompletesAndIsDeterministic(t *testing.T) {
	f := newFixture(t)
	bill := f.seedBill(t, constants.FileKindPDF)
	o := f.orchestrator(Config{}, nil, nil)
	ctx := context.Background()

	first, err := o.Analyze(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, first.Source)
	f.assertCompleted(t, bill.ID, first)

	require.NoError(t, o.Reanalyze(ctx, bill.ID, true))
	reset, err := f.repos.Bills.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.BillStatusPending, reset.Status)
	assert.Nil(t, reset.TotalAmount)
	items, err := f.repos.LineItems.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	second, err := o.Analyze(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	job, err := f.repos.Jobs.GetByBillID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)
}

func TestAnalyzeAITextPath(t *testing.T) {
	f := newFixture(t)
	bill := f.seedBill(t, constants.FileKindPDF)
	p, err := analyzer.DecodePayload([]byte(`{
		"summary": "One duplicate lab.",
		"risk_score": 64.6,
		"total_amount": 340,
		"line_items": [
			{"description": "CBC", "code": "85025", "total_price": 40},
			{"description": "CBC", "code": "85025", "total_price": 40},
			{"description": "Office visit", "code": "99213", "total_price": 260}
		],
		"detected_issues": [
			{"category": "Financial", "description": "CBC billed as a duplicate", "severity": "High",
			 "confidence": 0.9, "affected_items": ["85025"], "estimated_savings": 40}
		]
	}`))
	require.NoError(t, err)
	an := &fakeAnalyzer{payload: p}
	ex := &fakeExtractor{text: strings.Repeat("CBC 85025 $40.00\n", 10)}

	sum, err := f.orchestrator(Config{AnalyzerEnabled: true}, ex, an).Analyze(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, an.textCalls)
	assert.Equal(t, 0, an.imageCalls)
	assert.Equal(t, SourceAI, sum.Source)
	assert.Equal(t, 65, sum.RiskScore)
	assert.Equal(t, 340.0, sum.TotalAmount)
	assert.Equal(t, 40.0, sum.TotalEstimatedSavings)
	assert.Equal(t, "One duplicate lab.", sum.Text)
	f.assertCompleted(t, bill.ID, sum)

	findings, err := f.repos.Findings.ListByBill(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, constants.FindingDuplicateCharge, findings[0].Type)
	assert.Equal(t, constants.SeverityHigh, findings[0].Severity)
	require.NotNil(t, findings[0].LineItemID)
}

func TestAnalyzeAIVisionPathWhenTextIsShort(t *testing.T) {
	f := newFixture(t)
	bill := f.seedBill(t, constants.FileKindPNG)
	an := &fakeAnalyzer{payload: analyzer.Payload{}}
	ex := &fakeExtractor{text: "too short", pages: []string{"data:image/png;base64,AAA", "p2", "p3", "p4"}}

	sum, err := f.orchestrator(Config{AnalyzerEnabled: true, MaxPages: 2}, ex, an).Analyze(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, an.textCalls)
	assert.Equal(t, 1, an.imageCalls)
	assert.Len(t, an.pages, 2)

	// An empty payload still yields the summary line item and one clean finding.
	assert.Equal(t, SourceAI, sum.Source)
	assert.Equal(t, 1, sum.LineItemsCount)
	assert.Equal(t, 1, sum.FindingsCount)
	assert.Equal(t, 0.0, sum.TotalEstimatedSavings)
	f.assertCompleted(t, bill.ID, sum)

	findings, err := f.repos.Findings.ListByBill(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.FindingOther, findings[0].Type)
	assert.Equal(t, constants.SeverityLow, findings[0].Severity)
}

func TestAnalyzeCountsTextInCharacters(t *testing.T) {
	f := newFixture(t)
	bill := f.seedBill(t, constants.FileKindPDF)
	an := &fakeAnalyzer{payload: analyzer.Payload{}}
	// 30 characters, 60 bytes.
	ex := &fakeExtractor{text: strings.Repeat("é", 30), pages: []string{"data:image/png;base64,AAA"}}

	_, err := f.orchestrator(Config{AnalyzerEnabled: true, MinTextChars: 50, MaxPages: 1}, ex, an).Analyze(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, an.textCalls)
	assert.Equal(t, 1, an.imageCalls)
}

func TestAnalyzeFallsBackOnAnalyzerError(t *testing.T) {
	f := newFixture(t)
	bill := f.seedBill(t, constants.FileKindPDF)
	an := &fakeAnalyzer{err: common.AnalyzerError("upstream 500", nil)}
	ex := &fakeExtractor{text: strings.Repeat("x", 200)}

	sum, err := f.orchestrator(Config{AnalyzerEnabled: true}, ex, an).Analyze(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, an.textCalls)
	assert.Equal(t, SourceFallback, sum.Source)
	f.assertCompleted(t, bill.ID, sum)
}

func TestAnalyzeFallsBackWhenNothingExtractable(t *testing.T) {
	f := newFixture(t)
	bill := f.seedBill(t, constants.FileKindPDF)
	an := &fakeAnalyzer{}
	ex := &fakeExtractor{textErr: errors.New("pdftotext missing"), renderErr: errors.New("pdftoppm missing")}

	sum, err := f.orchestrator(Config{AnalyzerEnabled: true}, ex, an).Analyze(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, an.textCalls+an.imageCalls)
	assert.Equal(t, SourceFallback, sum.Source)
}

func TestAnalyzeSkipsAnalyzerWhenDisabled(t *testing.T) {
	f := newFixture(t)
	bill := f.seedBill(t, constants.FileKindPDF)
	an := &fakeAnalyzer{}

	sum, err := f.orchestrator(Config{AnalyzerEnabled: false}, &fakeExtractor{text: strings.Repeat("x", 500)}, an).
		Analyze(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Zero(t, an.textCalls)
	assert.Equal(t, SourceFallback, sum.Source)
}

func TestAnalyzePersistenceFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	bill := f.seedBill(t, constants.FileKindPDF)
	f.repos.Findings = failingFindings{f.repos.Findings}
	ctx := context.Background()

	_, err := f.orchestrator(Config{}, nil, nil).Analyze(ctx, bill.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPersistence)

	got, err := f.repos.Bills.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.BillStatusFailed, got.Status)
	assert.Nil(t, got.TotalAmount)

	job, err := f.repos.Jobs.GetByBillID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "constraint violated")

	items, err := f.repos.LineItems.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Empty(t, items, "line items must roll back with the findings")
}

func TestAnalyzeRejectsClaimedJob(t *testing.T) {
	f := newFixture(t)
	bill := f.seedBill(t, constants.FileKindPDF)
	ctx := context.Background()

	ok, err := f.repos.Jobs.Claim(ctx, bill.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.orchestrator(Config{}, nil, nil).Analyze(ctx, bill.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.ErrorIs(t, err, common.ErrConflict)

	items, err := f.repos.LineItems.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAnalyzeUnknownBill(t *testing.T) {
	f := newFixture(t)
	_, err := f.orchestrator(Config{}, nil, nil).Analyze(context.Background(), 404)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestReanalyzeRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := f.orchestrator(Config{StaleAfter: 10 * time.Minute}, nil, nil, WithClock(func() time.Time { return now }))

	t.Run("pending is a no-op", func(t *testing.T) {
		bill := f.seedBill(t, constants.FileKindPDF)
		require.NoError(t, o.Reanalyze(ctx, bill.ID, false))
		job, err := f.repos.Jobs.GetByBillID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, constants.JobStatusPending, job.Status)
	})

	t.Run("completed requires force", func(t *testing.T) {
		bill := f.seedBill(t, constants.FileKindPDF)
		_, err := o.Analyze(ctx, bill.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, o.Reanalyze(ctx, bill.ID, false), common.ErrConflict)
		require.NoError(t, o.Reanalyze(ctx, bill.ID, true))
	})

	t.Run("failed resets the same job", func(t *testing.T) {
		bill := f.seedBill(t, constants.FileKindPDF)
		before, err := f.repos.Jobs.GetByBillID(ctx, bill.ID)
		require.NoError(t, err)
		_, err = f.repos.Jobs.Claim(ctx, bill.ID, now)
		require.NoError(t, err)
		o.MarkFailed(bill.ID, "boom")

		require.NoError(t, o.Reanalyze(ctx, bill.ID, false))
		after, err := f.repos.Jobs.GetByBillID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, before.ID, after.ID)
		assert.Equal(t, constants.JobStatusPending, after.Status)
		got, err := f.repos.Bills.GetByID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, constants.BillStatusPending, got.Status)
	})

	t.Run("processing only when stale", func(t *testing.T) {
		bill := f.seedBill(t, constants.FileKindPDF)
		_, err := f.repos.Jobs.Claim(ctx, bill.ID, now.Add(-time.Minute))
		require.NoError(t, err)
		assert.ErrorIs(t, o.Reanalyze(ctx, bill.ID, true), common.ErrConflict)

		stale := f.seedBill(t, constants.FileKindPDF)
		_, err = f.repos.Jobs.Claim(ctx, stale.ID, now.Add(-time.Hour))
		require.NoError(t, err)
		require.NoError(t, o.Reanalyze(ctx, stale.ID, false))
	})
}
