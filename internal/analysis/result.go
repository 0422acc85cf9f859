package analysis

import (
	"math"

	"github.com/joseph-ayodele/acuvera/internal/entity"
)

const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// Result is a complete analysis ready to be persisted for one bill.
type Result struct {
	TotalAmount float64
	LineItems   []entity.LineItem
	Findings    []DraftFinding
	RiskScore   int
	Summary     string
	Source      string
}

// DraftFinding is a finding whose line item is referenced by position in
// Result.LineItems until the items have IDs. LineItem < 0 means none.
type DraftFinding struct {
	entity.Finding
	LineItem int
}

// Summary is returned by Analyze.
type Summary struct {
	BillID                int64   `json:"bill_id"`
	TotalAmount           float64 `json:"total_amount"`
	LineItemsCount        int     `json:"line_items_count"`
	FindingsCount         int     `json:"findings_count"`
	TotalEstimatedSavings float64 `json:"total_estimated_savings"`
	RiskScore             int     `json:"risk_score"`
	Text                  string  `json:"summary"`
	Source                string  `json:"source"`
}

func (r Result) savings() float64 {
	var s float64
	for _, f := range r.Findings {
		s += f.EstimatedSavings
	}
	return round2(s)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}
