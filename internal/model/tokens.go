package model

// TokenUsage accumulates token counts and dollar cost across LLM calls.
// Cache creation and cache read tokens are tracked separately because
// they bill at different rates than plain input tokens.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	Cost                float64 `json:"cost"`
}

// Add folds another call's usage into the running total.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Cost += other.Cost
}

// Total returns combined input and output tokens, cache traffic excluded.
func (t TokenUsage) Total() int {
	return t.InputTokens + t.OutputTokens
}
