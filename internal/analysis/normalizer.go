package analysis

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/analyzer"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

const (
	DefaultConfidence = 0.8
	// SummaryFloor is the minimum price of the synthetic summary line item.
	SummaryFloor = 1.00

	minSavingsRate = 0.02
	maxSavingsRate = 0.08
)

// Normalizer maps analyzer payloads onto canonical line items and findings.
type Normalizer struct{}

func NewNormalizer() *Normalizer { return &Normalizer{} }

// Normalize never fails: every missing field has a default.
func (n *Normalizer) Normalize(billID int64, p analyzer.Payload) Result {
	items := normalizeLineItems(p.LineItems)

	total := amount(p.TotalAmount.Float())
	if total <= 0 {
		for _, it := range items {
			total += it.TotalPrice
		}
	}
	total = round2(amount(total))

	if len(items) == 0 {
		price := round2(max(total, SummaryFloor))
		items = append(items, entity.LineItem{
			Description: "Bill summary",
			Quantity:    1.0,
			UnitPrice:   price,
			TotalPrice:  price,
		})
	}

	// Seeded per bill so re-running the same payload yields the same numbers.
	rng := rand.New(rand.NewSource(billID))

	var findings []DraftFinding
	for _, issue := range p.DetectedIssues {
		typ := MapFindingType(issue.Category.String(), issue.Description.String())

		conf := DefaultConfidence
		if issue.Confidence != nil && !math.IsNaN(issue.Confidence.Float()) {
			conf = issue.Confidence.Float()
		}

		var savings float64
		switch {
		case issue.EstimatedSavings != nil:
			savings = amount(issue.EstimatedSavings.Float())
		case total > 0:
			savings = total * (minSavingsRate + rng.Float64()*(maxSavingsRate-minSavingsRate))
		}
		if total > 0 {
			savings = min(savings, total)
		}

		explanation := issue.Description.String()
		if explanation == "" {
			explanation = explanationFor(typ)
		}
		action := issue.RecommendedAction.String()
		if action == "" {
			action = actionFor(typ)
		}

		findings = append(findings, DraftFinding{
			Finding: entity.Finding{
				Type:              typ,
				Severity:          MapSeverity(issue.Severity.String()),
				Confidence:        clamp(conf, 0, 1),
				EstimatedSavings:  round2(savings),
				Explanation:       explanation,
				RecommendedAction: action,
			},
			LineItem: matchAffected(issue.AffectedItems, items),
		})
	}

	if len(findings) == 0 {
		findings = append(findings, cleanBillFinding(p.CleanItems, p.MissingInformation))
	}

	return Result{
		TotalAmount: total,
		LineItems:   items,
		Findings:    findings,
		RiskScore:   p.Risk(),
		Summary:     p.Summary.String(),
		Source:      SourceAI,
	}
}

func normalizeLineItems(in []analyzer.LineItem) []entity.LineItem {
	out := make([]entity.LineItem, 0, len(in))
	for i, li := range in {
		qty := li.Quantity.Float()
		if qty <= 0 {
			qty = 1.0
		}
		unit := li.UnitPrice.Float()
		total := li.TotalPrice.Float()
		if li.TotalPrice == nil {
			total = qty * unit
		}
		if li.UnitPrice == nil && li.TotalPrice != nil {
			unit = total / qty
		}

		desc := li.Description.String()
		if desc == "" {
			desc = fmt.Sprintf("Line item %d", i+1)
		}
		var code *string
		if c := li.Code.String(); c != "" {
			code = &c
		}
		out = append(out, entity.LineItem{
			Description: desc,
			Code:        code,
			Quantity:    qty,
			UnitPrice:   round2(amount(unit)),
			TotalPrice:  round2(amount(total)),
		})
	}
	return out
}

// amount maps non-finite and negative values to zero and caps the rest at
// analyzer.MaxAmount.
func amount(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return min(f, analyzer.MaxAmount)
}

// matchAffected returns the first line item named by affected, by code or
// description, else the first item.
func matchAffected(affected []string, items []entity.LineItem) int {
	for _, a := range affected {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		for i, it := range items {
			if it.Code != nil && strings.EqualFold(*it.Code, a) {
				return i
			}
			desc := strings.ToLower(it.Description)
			if desc == a || (len(a) >= 3 && strings.Contains(desc, a)) {
				return i
			}
		}
	}
	return 0
}

func cleanBillFinding(clean, missing []string) DraftFinding {
	var b strings.Builder
	b.WriteString("No billing errors were detected.")
	if len(clean) > 0 {
		b.WriteString(" Verified items: " + strings.Join(clean, ", ") + ".")
	}
	action := "No action needed."
	if len(missing) > 0 {
		b.WriteString(" Missing information: " + strings.Join(missing, ", ") + ".")
		action = "Request the missing information from your provider to complete the review."
	}
	return DraftFinding{
		Finding: entity.Finding{
			Type:              constants.FindingOther,
			Severity:          constants.SeverityLow,
			Confidence:        DefaultConfidence,
			EstimatedSavings:  0,
			Explanation:       b.String(),
			RecommendedAction: action,
		},
		LineItem: 0,
	}
}
