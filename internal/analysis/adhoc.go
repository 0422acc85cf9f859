package analysis

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

// TextAnalysis is the normalized answer for bill text that was never uploaded.
type TextAnalysis struct {
	Summary          string            `json:"summary"`
	RiskScore        int               `json:"risk_score"`
	TotalAmount      float64           `json:"total_amount"`
	EstimatedSavings float64           `json:"estimated_savings"`
	LineItems        []entity.LineItem `json:"line_items"`
	Findings         []entity.Finding  `json:"findings"`
}

// AnalyzeText sends pasted bill text to the analyzer and normalizes the
// answer. Nothing is persisted and there is no fallback: without a configured
// analyzer the call is rejected.
func (o *Orchestrator) AnalyzeText(ctx context.Context, text string) (*TextAnalysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, common.Validationf("text is required")
	}
	if !o.aiEnabled() {
		return nil, common.Validationf("the analyzer is not configured")
	}

	actx, cancel := context.WithTimeout(ctx, o.cfg.AnalyzerTimeout)
	defer cancel()
	start := o.now()
	payload, err := o.analyzer.AnalyzeText(actx, text)
	if err != nil {
		o.log.Error("analysis.text.failed", "chars", utf8.RuneCountInString(text), "error", err)
		return nil, err
	}

	res := o.normalizer.Normalize(0, payload)
	out := &TextAnalysis{
		Summary:          res.Summary,
		RiskScore:        res.RiskScore,
		TotalAmount:      res.TotalAmount,
		EstimatedSavings: res.savings(),
		LineItems:        res.LineItems,
		Findings:         make([]entity.Finding, len(res.Findings)),
	}
	for i, f := range res.Findings {
		out.Findings[i] = f.Finding
	}
	o.log.Info("analysis.text.ok",
		"findings", len(out.Findings),
		"savings", out.EstimatedSavings,
		"elapsed_ms", o.now().Sub(start).Milliseconds(),
	)
	return out, nil
}
