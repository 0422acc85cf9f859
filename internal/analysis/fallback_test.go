package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackIsDeterministic(t *testing.T) {
	g := NewFallbackGenerator(0)
	a, err := g.Generate(context.Background(), 42)
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := g.Generate(context.Background(), 43)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestFallbackBounds(t *testing.T) {
	g := NewFallbackGenerator(0)
	for id := int64(1); id <= 200; id++ {
		res, err := g.Generate(context.Background(), id)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(res.LineItems), 3)
		assert.LessOrEqual(t, len(res.LineItems), 8)
		assert.GreaterOrEqual(t, len(res.Findings), 2)
		assert.LessOrEqual(t, len(res.Findings), 5)

		var total float64
		for _, li := range res.LineItems {
			require.NotNil(t, li.Code)
			assert.Contains(t, []float64{1, 2, 3}, li.Quantity)
			assert.GreaterOrEqual(t, li.UnitPrice, 50.0)
			assert.LessOrEqual(t, li.UnitPrice, 500.0)
			total += li.TotalPrice
		}
		assert.InDelta(t, total, res.TotalAmount, 0.01)

		for _, f := range res.Findings {
			assert.GreaterOrEqual(t, f.Confidence, 0.70)
			assert.LessOrEqual(t, f.Confidence, 0.95)
			assert.GreaterOrEqual(t, f.EstimatedSavings, 50.0)
			assert.LessOrEqual(t, f.EstimatedSavings, 500.0)
			assert.GreaterOrEqual(t, f.LineItem, 0)
			assert.Less(t, f.LineItem, len(res.LineItems))
		}
		assert.Equal(t, SourceFallback, res.Source)
		assert.NotEmpty(t, res.Summary)
	}
}

func TestFallbackDelayHonorsContext(t *testing.T) {
	g := NewFallbackGenerator(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Generate(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
