package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenUsageAdd(t *testing.T) {
	t.Parallel()

	t.Run("accumulates across passes", func(t *testing.T) {
		t.Parallel()
		var total TokenUsage
		passes := []TokenUsage{
			{InputTokens: 4_200, OutputTokens: 900, CacheCreationTokens: 3_000, Cost: 0.021},
			{InputTokens: 1_100, OutputTokens: 650, CacheReadTokens: 3_000, Cost: 0.008},
			{InputTokens: 780, OutputTokens: 410, CacheReadTokens: 3_000, Cost: 0.006},
		}
		for _, p := range passes {
			total.Add(p)
		}
		assert.Equal(t, 6_080, total.InputTokens)
		assert.Equal(t, 1_960, total.OutputTokens)
		assert.Equal(t, 3_000, total.CacheCreationTokens)
		assert.Equal(t, 6_000, total.CacheReadTokens)
		assert.InDelta(t, 0.035, total.Cost, 0.0001)
	})

	t.Run("add zero is a no-op", func(t *testing.T) {
		t.Parallel()
		a := TokenUsage{InputTokens: 500, OutputTokens: 250, Cost: 0.004}
		a.Add(TokenUsage{})
		assert.Equal(t, TokenUsage{InputTokens: 500, OutputTokens: 250, Cost: 0.004}, a)
	})
}

func TestTokenUsageTotal(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 1_200, OutputTokens: 300, CacheReadTokens: 9_000}
	assert.Equal(t, 1_500, u.Total(), "cache reads do not count toward the total")
}
