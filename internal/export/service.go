package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/dashboard"
	"github.com/joseph-ayodele/acuvera/internal/entity"
	"github.com/joseph-ayodele/acuvera/internal/repository"
)

const (
	findingsSheet = "Findings"
	summarySheet  = "Summary"
)

// Service produces XLSX workbooks of an organization's findings.
type Service struct {
	orgs      repository.OrganizationRepository
	bills     repository.BillRepository
	lineItems repository.LineItemRepository
	findings  repository.FindingRepository
	logger    *slog.Logger
}

func NewService(orgs repository.OrganizationRepository, bills repository.BillRepository, lineItems repository.LineItemRepository,
	findings repository.FindingRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orgs: orgs, bills: bills, lineItems: lineItems, findings: findings, logger: logger}
}

// FindingsXLSX returns a workbook with one row per finding of the
// organization's COMPLETED bills, plus a summary sheet.
// If only from is provided -> from..today (inclusive), on the analyzed date.
// If only to is provided   -> beginning..to (inclusive).
func (s *Service) FindingsXLSX(ctx context.Context, orgID int64, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	all, err := s.bills.List(ctx, repository.BillFilter{
		OrganizationID: &orgID,
		Statuses:       []constants.BillStatus{constants.BillStatusCompleted},
	})
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	bills := inWindow(all, from, to)

	ids := make([]int64, len(bills))
	for i, b := range bills {
		ids[i] = b.ID
	}
	findings, err := s.findings.ListByBills(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	items, err := s.lineItems.ListByBills(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", findingsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	rows, err := writeFindings(f, bills, findings, items)
	if err != nil {
		return nil, err
	}
	if err := writeSummary(f, org, dashboard.Compute(bills, findings)); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(findingsSheet)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"organization_id", orgID,
		"bills", len(bills),
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

var findingHeaders = []string{
	"Bill ID",
	"File Name",
	"Analyzed",
	"Line Item",
	"Code",
	"Type",
	"Severity",
	"Confidence",
	"Estimated Savings",
	"Explanation",
	"Recommended Action",
}

func writeFindings(f *excelize.File, bills []entity.Bill, findings map[int64][]entity.Finding, items map[int64][]entity.LineItem) (int, error) {
	if err := f.SetSheetRow(findingsSheet, "A1", &findingHeaders); err != nil {
		return 0, err
	}

	row := 2
	for _, b := range bills {
		byID := map[int64]entity.LineItem{}
		for _, li := range items[b.ID] {
			byID[li.ID] = li
		}
		analyzed := ""
		if b.AnalyzedAt != nil {
			analyzed = b.AnalyzedAt.UTC().Format("2006-01-02")
		}
		for _, fd := range findings[b.ID] {
			desc, code := "", ""
			if fd.LineItemID != nil {
				if li, ok := byID[*fd.LineItemID]; ok {
					desc = li.Description
					if li.Code != nil {
						code = *li.Code
					}
				}
			}
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := []any{
				b.ID,
				b.FileName,
				analyzed,
				desc,
				code,
				string(fd.Type),
				string(fd.Severity),
				fd.Confidence,
				fd.EstimatedSavings,
				truncate(fd.Explanation, 240),
				truncate(fd.RecommendedAction, 240),
			}
			if err := f.SetSheetRow(findingsSheet, cell, &values); err != nil {
				return 0, err
			}
			row++
		}
	}

	_ = f.SetColWidth(findingsSheet, "A", "A", 10)
	_ = f.SetColWidth(findingsSheet, "B", "B", 28)
	_ = f.SetColWidth(findingsSheet, "C", "C", 12)
	_ = f.SetColWidth(findingsSheet, "D", "D", 36)
	_ = f.SetColWidth(findingsSheet, "E", "G", 18)
	_ = f.SetColWidth(findingsSheet, "H", "I", 14)
	_ = f.SetColWidth(findingsSheet, "J", "K", 60)
	return row - 2, nil
}

func writeSummary(f *excelize.File, org *entity.Organization, st dashboard.Stats) error {
	rows := [][]any{
		{"Organization", org.Name},
		{"Claims Reviewed", st.ClaimsReviewed},
		{"Errors Caught", st.ErrorsCaught},
		{"Estimated Savings", st.EstimatedSavingsTotal},
		{},
		{"Finding Type", "Count", "Savings"},
	}
	for _, b := range st.ErrorBreakdown {
		rows = append(rows, []any{string(b.Type), b.Count, b.TotalSavings})
	}
	rows = append(rows, []any{}, []any{"Month", "Claims", "Savings"})
	for _, m := range st.SavingsOverTime {
		rows = append(rows, []any{m.Month, m.ClaimsCount, m.Savings})
	}

	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &r); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 22)
	_ = f.SetColWidth(summarySheet, "B", "C", 16)
	return nil
}

func inWindow(bills []entity.Bill, from, to *time.Time) []entity.Bill {
	if from == nil && to == nil {
		return bills
	}
	var lo, hi time.Time
	if from != nil {
		lo = dateOf(*from)
	}
	if to != nil {
		hi = dateOf(*to).AddDate(0, 0, 1)
	} else {
		hi = dateOf(time.Now()).AddDate(0, 0, 1)
	}
	out := make([]entity.Bill, 0, len(bills))
	for _, b := range bills {
		if b.AnalyzedAt == nil {
			continue
		}
		at := b.AnalyzedAt.UTC()
		if at.Before(lo) || !at.Before(hi) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
