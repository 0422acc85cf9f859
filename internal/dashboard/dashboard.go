// Package dashboard builds the provider-facing organization rollup.
package dashboard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/access"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/repository"
)

// RecentLimit is the number of bills in the recent list.
const RecentLimit = 10

type TypeBreakdown struct {
	Type         constants.FindingType `json:"type"`
	Count        int                   `json:"count"`
	TotalSavings float64               `json:"total_savings"`
}

type MonthlySavings struct {
	Month       string  `json:"month"`
	Savings     float64 `json:"savings"`
	ClaimsCount int     `json:"claims_count"`
}

type Stats struct {
	ClaimsReviewed        int              `json:"claims_reviewed"`
	ErrorsCaught          int              `json:"errors_caught"`
	EstimatedSavingsTotal float64          `json:"estimated_savings_total"`
	ErrorBreakdown        []TypeBreakdown  `json:"error_breakdown"`
	SavingsOverTime       []MonthlySavings `json:"savings_over_time"`
}

type RecentBill struct {
	ID               int64                `json:"id"`
	FileName         string               `json:"file_name"`
	Status           constants.BillStatus `json:"status"`
	TotalAmount      *float64             `json:"total_amount"`
	FindingsCount    int                  `json:"findings_count"`
	EstimatedSavings float64              `json:"estimated_savings"`
	AnalyzedAt       *time.Time           `json:"analyzed_at"`
}

type Dashboard struct {
	OrganizationID   int64        `json:"organization_id"`
	OrganizationName string       `json:"organization_name"`
	Stats            Stats        `json:"stats"`
	RecentBills      []RecentBill `json:"recent_bills"`
	GeneratedAt      time.Time    `json:"generated_at"`
}

type Service struct {
	orgs     repository.OrganizationRepository
	bills    repository.BillRepository
	findings repository.FindingRepository
	now      func() time.Time
	log      *slog.Logger
}

func NewService(orgs repository.OrganizationRepository, bills repository.BillRepository, findings repository.FindingRepository, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orgs: orgs, bills: bills, findings: findings, now: now, log: logger}
}

// ForUser returns the dashboard of the user's organization. Only providers
// and admins with an organization have one.
func (s *Service) ForUser(ctx context.Context, user *entity.User) (*Dashboard, error) {
	orgID, err := access.ProviderOrganization(user)
	if err != nil {
		return nil, err
	}
	return s.ForOrganization(ctx, orgID)
}

// ForOrganization computes the rollup over the organization's bills. Stats
// only count COMPLETED bills; the recent list shows every status.
func (s *Service) ForOrganization(ctx context.Context, orgID int64) (*Dashboard, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	bills, err := s.bills.List(ctx, repository.BillFilter{OrganizationID: &orgID})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(bills))
	for i, b := range bills {
		ids[i] = b.ID
	}
	byBill, err := s.findings.ListByBills(ctx, ids)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		Stats:            Compute(bills, byBill),
		RecentBills:      recent(bills, byBill),
		GeneratedAt:      s.now().UTC(),
	}
	s.log.Info("dashboard.built", "organization_id", orgID, "bills", len(bills), "claims_reviewed", d.Stats.ClaimsReviewed)
	return d, nil
}

type monthAcc struct {
	savings decimal.Decimal
	count   int
}

type typeAcc struct {
	savings decimal.Decimal
	count   int
}

// Compute aggregates completed bills and their findings.
func Compute(bills []entity.Bill, findings map[int64][]entity.Finding) Stats {
	var (
		st     Stats
		total  = decimal.Zero
		types  = map[constants.FindingType]*typeAcc{}
		months = map[string]*monthAcc{}
	)
	for _, b := range bills {
		if b.Status != constants.BillStatusCompleted {
			continue
		}
		st.ClaimsReviewed++
		billSavings := decimal.Zero
		for _, f := range findings[b.ID] {
			st.ErrorsCaught++
			amt := decimal.NewFromFloat(f.EstimatedSavings)
			billSavings = billSavings.Add(amt)
			acc := types[f.Type]
			if acc == nil {
				acc = &typeAcc{savings: decimal.Zero}
				types[f.Type] = acc
			}
			acc.count++
			acc.savings = acc.savings.Add(amt)
		}
		total = total.Add(billSavings)

		if b.AnalyzedAt != nil {
			key := b.AnalyzedAt.UTC().Format("2006-01")
			m := months[key]
			if m == nil {
				m = &monthAcc{savings: decimal.Zero}
				months[key] = m
			}
			m.count++
			m.savings = m.savings.Add(billSavings)
		}
	}

	st.EstimatedSavingsTotal = cents(total)
	st.ErrorBreakdown = []TypeBreakdown{}
	for _, t := range constants.FindingTypes {
		if acc, ok := types[t]; ok {
			st.ErrorBreakdown = append(st.ErrorBreakdown, TypeBreakdown{Type: t, Count: acc.count, TotalSavings: cents(acc.savings)})
		}
	}
	st.SavingsOverTime = []MonthlySavings{}
	for key, m := range months {
		st.SavingsOverTime = append(st.SavingsOverTime, MonthlySavings{Month: key, Savings: cents(m.savings), ClaimsCount: m.count})
	}
	sort.Slice(st.SavingsOverTime, func(i, j int) bool { return st.SavingsOverTime[i].Month < st.SavingsOverTime[j].Month })
	return st
}

// recent expects bills newest first, as the repository returns them.
func recent(bills []entity.Bill, findings map[int64][]entity.Finding) []RecentBill {
	n := min(len(bills), RecentLimit)
	out := make([]RecentBill, 0, n)
	for _, b := range bills[:n] {
		sum := decimal.Zero
		for _, f := range findings[b.ID] {
			sum = sum.Add(decimal.NewFromFloat(f.EstimatedSavings))
		}
		out = append(out, RecentBill{
			ID:               b.ID,
			FileName:         b.FileName,
			Status:           b.Status,
			TotalAmount:      b.TotalAmount,
			FindingsCount:    len(findings[b.ID]),
			EstimatedSavings: cents(sum),
			AnalyzedAt:       b.AnalyzedAt,
		})
	}
	return out
}

func cents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
