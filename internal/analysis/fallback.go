package analysis

import (
	"context"
	"math/rand"
	"time"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

type procedure struct {
	name string
	code string
}

var procedureCatalog = []procedure{
	{"Office visit, established patient", "99213"},
	{"Office visit, new patient", "99203"},
	{"Emergency department visit, level 4", "99284"},
	{"Comprehensive metabolic panel", "80053"},
	{"Complete blood count with differential", "85025"},
	{"Lipid panel", "80061"},
	{"Urinalysis, automated", "81003"},
	{"Venipuncture", "36415"},
	{"Chest X-ray, 2 views", "71046"},
	{"Electrocardiogram, 12-lead", "93000"},
	{"MRI brain without contrast", "70551"},
	{"CT abdomen with contrast", "74160"},
	{"Physical therapy evaluation", "97161"},
	{"Influenza vaccine", "90686"},
}

var severityWeight = map[constants.Severity]int{
	constants.SeverityLow:      5,
	constants.SeverityMedium:   10,
	constants.SeverityHigh:     18,
	constants.SeverityCritical: 25,
}

const fallbackSummary = "Automated review generated without AI assistance. " +
	"Findings and savings are estimates; verify them with the provider's billing office before acting."

// FallbackGenerator produces a synthetic analysis that depends only on the
// bill id.
type FallbackGenerator struct {
	delay time.Duration
}

func NewFallbackGenerator(delay time.Duration) *FallbackGenerator {
	return &FallbackGenerator{delay: delay}
}

// Generate returns the same result for the same bill id. It only fails when
// ctx ends during the configured delay.
func (g *FallbackGenerator) Generate(ctx context.Context, billID int64) (Result, error) {
	if g.delay > 0 {
		t := time.NewTimer(g.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return Result{}, ctx.Err()
		case <-t.C:
		}
	}

	rng := rand.New(rand.NewSource(billID))

	n := 3 + rng.Intn(6)
	items := make([]entity.LineItem, 0, n)
	var total float64
	for i := 0; i < n; i++ {
		p := procedureCatalog[rng.Intn(len(procedureCatalog))]
		code := p.code
		qty := float64(1 + rng.Intn(3))
		unit := round2(50 + rng.Float64()*450)
		lineTotal := round2(qty * unit)
		total += lineTotal
		items = append(items, entity.LineItem{
			Description: p.name,
			Code:        &code,
			Quantity:    qty,
			UnitPrice:   unit,
			TotalPrice:  lineTotal,
		})
	}

	m := 2 + rng.Intn(4)
	findings := make([]DraftFinding, 0, m)
	risk := 0
	for i := 0; i < m; i++ {
		typ := constants.FindingTypes[rng.Intn(len(constants.FindingTypes))]
		sev := constants.Severities[rng.Intn(len(constants.Severities))]
		findings = append(findings, DraftFinding{
			Finding: entity.Finding{
				Type:              typ,
				Severity:          sev,
				Confidence:        round2(0.70 + rng.Float64()*0.25),
				EstimatedSavings:  round2(50 + rng.Float64()*450),
				Explanation:       explanationFor(typ),
				RecommendedAction: actionFor(typ),
			},
			LineItem: rng.Intn(len(items)),
		})
		risk += severityWeight[sev]
	}

	return Result{
		TotalAmount: round2(total),
		LineItems:   items,
		Findings:    findings,
		RiskScore:   min(100, 20+risk),
		Summary:     fallbackSummary,
		Source:      SourceFallback,
	}, nil
}
