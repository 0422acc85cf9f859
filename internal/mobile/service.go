// Package mobile serves the patient-facing projections of bills and findings.
package mobile

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/acuvera/internal/access"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/repository"
)

type Service struct {
	bills     repository.BillRepository
	jobs      repository.AnalysisJobRepository
	lineItems repository.LineItemRepository
	findings  repository.FindingRepository
	now       func() time.Time
	log       *slog.Logger
}

func NewService(bills repository.BillRepository, jobs repository.AnalysisJobRepository, lineItems repository.LineItemRepository,
	findings repository.FindingRepository, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bills: bills, jobs: jobs, lineItems: lineItems, findings: findings, now: now, log: logger}
}

// Bills lists the user's own bills, newest first.
func (s *Service) Bills(ctx context.Context, user *entity.User) ([]BillAnalysis, error) {
	bills, findings, err := s.own(ctx, user)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(bills))
	for i, b := range bills {
		ids[i] = b.ID
	}
	items, err := s.lineItems.ListByBills(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]BillAnalysis, 0, len(bills))
	for _, b := range bills {
		out = append(out, NewBillAnalysis(b, findings[b.ID], items[b.ID]))
	}
	return out, nil
}

func (s *Service) Bill(ctx context.Context, user *entity.User, billID int64) (*BillAnalysis, error) {
	b, err := s.authorized(ctx, user, billID)
	if err != nil {
		return nil, err
	}
	findings, err := s.findings.ListByBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	items, err := s.lineItems.ListByBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	v := NewBillAnalysis(*b, findings, items)
	return &v, nil
}

func (s *Service) AnalysisStatus(ctx context.Context, user *entity.User, billID int64) (*AnalysisStatus, error) {
	b, err := s.authorized(ctx, user, billID)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.GetByBillID(ctx, billID)
	if err != nil {
		s.log.Warn("mobile.status.job_missing", "bill_id", billID, "error", err)
	}
	st := NewAnalysisStatus(*b, job)
	return &st, nil
}

func (s *Service) FlaggedItem(ctx context.Context, user *entity.User, billID, findingID int64) (*FlaggedItem, error) {
	f, li, err := s.finding(ctx, user, billID, findingID)
	if err != nil {
		return nil, err
	}
	item := NewFlaggedItem(*f, li)
	return &item, nil
}

func (s *Service) Actions(ctx context.Context, user *entity.User, billID, findingID int64) ([]Action, error) {
	f, _, err := s.finding(ctx, user, billID, findingID)
	if err != nil {
		return nil, err
	}
	return Actions(*f), nil
}

// Stats summarises the user's bills against calendar boundaries of now.
func (s *Service) Stats(ctx context.Context, user *entity.User) (*UserStats, error) {
	bills, findings, err := s.own(ctx, user)
	if err != nil {
		return nil, err
	}
	st := ComputeStats(bills, findings, s.now())
	return &st, nil
}

// ComputeStats buckets bills by uploaded_at. Trend is 100 when last month
// saved nothing and this month saved something, else 0 for an empty last month.
func ComputeStats(bills []entity.Bill, findings map[int64][]entity.Finding, now time.Time) UserStats {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonthStart := monthStart.AddDate(0, -1, 0)
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	var (
		current = decimal.Zero
		last    = decimal.Zero
		ytd     = decimal.Zero
		issues  int
	)
	for _, b := range bills {
		saved := decimal.Zero
		for _, f := range findings[b.ID] {
			saved = saved.Add(decimal.NewFromFloat(f.EstimatedSavings))
		}
		issues += len(findings[b.ID])

		up := b.UploadedAt.UTC()
		if !up.Before(monthStart) {
			current = current.Add(saved)
		}
		if !up.Before(lastMonthStart) && up.Before(monthStart) {
			last = last.Add(saved)
		}
		if !up.Before(yearStart) {
			ytd = ytd.Add(saved)
		}
	}

	var trend decimal.Decimal
	switch {
	case last.IsPositive():
		trend = current.Sub(last).Div(last).Mul(decimal.NewFromInt(100))
	case current.IsPositive():
		trend = decimal.NewFromInt(100)
	default:
		trend = decimal.Zero
	}

	return UserStats{
		MonthlySavings:     current.Round(2).InexactFloat64(),
		MonthlyTrend:       trend.Round(1).InexactFloat64(),
		TotalSavedThisYear: ytd.Round(2).InexactFloat64(),
		BillsAnalyzed:      len(bills),
		IssuesFound:        issues,
	}
}

func (s *Service) own(ctx context.Context, user *entity.User) ([]entity.Bill, map[int64][]entity.Finding, error) {
	if user == nil || !user.IsActive {
		return nil, nil, common.PermissionDeniedf("an active user is required")
	}
	id := user.ID
	bills, err := s.bills.List(ctx, repository.BillFilter{PatientID: &id})
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int64, len(bills))
	for i, b := range bills {
		ids[i] = b.ID
	}
	findings, err := s.findings.ListByBills(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return bills, findings, nil
}

func (s *Service) authorized(ctx context.Context, user *entity.User, billID int64) (*entity.Bill, error) {
	b, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(b, user); err != nil {
		s.log.Warn("mobile.access_denied", "bill_id", billID, "error", err)
		return nil, err
	}
	return b, nil
}

func (s *Service) finding(ctx context.Context, user *entity.User, billID, findingID int64) (*entity.Finding, *entity.LineItem, error) {
	if _, err := s.authorized(ctx, user, billID); err != nil {
		return nil, nil, err
	}
	f, err := s.findings.GetByID(ctx, billID, findingID)
	if err != nil {
		return nil, nil, err
	}
	if f.LineItemID == nil {
		return f, nil, nil
	}
	items, err := s.lineItems.ListByBill(ctx, billID)
	if err != nil {
		return nil, nil, err
	}
	for i := range items {
		if items[i].ID == *f.LineItemID {
			return f, &items[i], nil
		}
	}
	return f, nil, nil
}
