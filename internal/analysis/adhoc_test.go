package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
)

func TestAnalyzeTextRejectsBlankInput(t *testing.T) {
	f := newFixture(t)
	an := &fakeAnalyzer{}
	o := f.orchestrator(Config{AnalyzerEnabled: true}, nil, an)

	_, err := o.AnalyzeText(context.Background(), "  \n\t ")
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Zero(t, an.textCalls)
}

func TestAnalyzeTextRequiresAnalyzer(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(Config{}, nil, nil)

	_, err := o.AnalyzeText(context.Background(), "Office visit 99213 $200")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestAnalyzeTextNormalizesWithoutPersisting(t *testing.T) {
	f := newFixture(t)
	an := &fakeAnalyzer{payload: payload(t, `{
		"total_amount": 240,
		"line_items": [
			{"description": "CBC", "total_price": 40},
			{"description": "Office visit", "total_price": 200}
		],
		"detected_issues": [{"category": "Financial", "description": "CBC appears to be a duplicate charge", "severity": "high", "estimated_savings": 40}],
		"summary": "One duplicate lab charge."
	}`)}
	o := f.orchestrator(Config{AnalyzerEnabled: true}, nil, an)

	out, err := o.AnalyzeText(context.Background(), "CBC $40\nCBC $40\nOffice visit $200")
	require.NoError(t, err)
	assert.Equal(t, 1, an.textCalls)
	assert.Equal(t, 240.0, out.TotalAmount)
	assert.Equal(t, 40.0, out.EstimatedSavings)
	assert.Len(t, out.LineItems, 2)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, constants.FindingDuplicateCharge, out.Findings[0].Type)
	assert.Equal(t, "One duplicate lab charge.", out.Summary)
}
