package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  claudeRate(0.80, 4.00),
			"sonnet": claudeRate(3.00, 15.00),
		},
	}
}

func TestClaudeBreakdown_ItemizesTokenClasses(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	// 0.5M in at $0.80/M, 0.05M out at $4.00/M, 0.2M cache-write at 1.25x
	// input, 0.3M cache-read at 0.1x input.
	got := calc.ClaudeBreakdown("haiku", false, 500000, 50000, 200000, 300000)

	assert.InDelta(t, 0.40, got.Input, 1e-9)
	assert.InDelta(t, 0.20, got.Output, 1e-9)
	assert.InDelta(t, 0.20, got.CacheWrite, 1e-9)
	assert.InDelta(t, 0.024, got.CacheRead, 1e-9)
	assert.InDelta(t, 0.824, got.Total(), 1e-9)

	total := calc.Claude("haiku", false, 500000, 50000, 200000, 300000)
	assert.InDelta(t, got.Total(), total, 1e-9)
}

func TestClaude_BatchHalvesEveryTokenClass(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	live := calc.Claude("sonnet", false, 1000000, 100000, 400000, 250000)
	batch := calc.Claude("sonnet", true, 1000000, 100000, 400000, 250000)

	assert.Greater(t, live, 0.0)
	assert.InDelta(t, live/2, batch, 1e-9)
}

func TestClaude_Edges(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name  string
		model string
		input int
		want  float64
	}{
		{name: "unknown model is free", model: "opus-unpriced", input: 1000000, want: 0},
		{name: "zero usage costs nothing", model: "haiku", input: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Claude(tt.model, false, tt.input, 0, 0, 0), 1e-9)
		})
	}
}

func TestKnown(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.True(t, calc.Known("haiku"))
	assert.False(t, calc.Known("claude-2"))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	assert.Contains(t, rates.Anthropic, "claude-haiku-4-5-20251001")
	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
	assert.Contains(t, rates.Anthropic, "claude-opus-4-6")

	for name, r := range rates.Anthropic {
		assert.Greater(t, r.Input, 0.0, name)
		assert.Greater(t, r.Output, r.Input, name)
		assert.InDelta(t, 0.5, r.BatchDiscount, 1e-9, name)
		assert.InDelta(t, 1.25, r.CacheWriteMul, 1e-9, name)
		assert.InDelta(t, 0.1, r.CacheReadMul, 1e-9, name)
	}
}
