package cost

// Rates holds per-model pricing, keyed by the full model identifier.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelRate prices one model in dollars per million tokens, with
// multipliers for batch and prompt-cache traffic.
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Breakdown itemizes one call's cost by token class.
type Breakdown struct {
	Input      float64
	Output     float64
	CacheWrite float64
	CacheRead  float64
}

// Total sums the itemized costs.
func (b Breakdown) Total() float64 {
	return b.Input + b.Output + b.CacheWrite + b.CacheRead
}

// Calculator prices API usage against a rate table.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Known reports whether the model has a pricing entry.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates.Anthropic[model]
	return ok
}

// Claude prices one Claude call. Unknown models cost 0 so a pricing gap
// never fails a run.
func (c *Calculator) Claude(model string, isBatch bool, input, output, cacheWrite, cacheRead int) float64 {
	return c.ClaudeBreakdown(model, isBatch, input, output, cacheWrite, cacheRead).Total()
}

// ClaudeBreakdown itemizes the cost of one Claude call. The batch discount
// applies across every token class; cache writes bill above the input rate
// and cache reads well under it.
func (c *Calculator) ClaudeBreakdown(model string, isBatch bool, input, output, cacheWrite, cacheRead int) Breakdown {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return Breakdown{}
	}

	mul := 1.0
	if isBatch {
		mul = rate.BatchDiscount
	}

	perMTok := func(tokens int, dollars float64) float64 {
		return float64(tokens) / 1e6 * dollars * mul
	}
	return Breakdown{
		Input:      perMTok(input, rate.Input),
		Output:     perMTok(output, rate.Output),
		CacheWrite: perMTok(cacheWrite, rate.Input*rate.CacheWriteMul),
		CacheRead:  perMTok(cacheRead, rate.Input*rate.CacheReadMul),
	}
}

// claudeRate builds a rate entry with the standard batch and cache
// multipliers.
func claudeRate(input, output float64) ModelRate {
	return ModelRate{
		Input:         input,
		Output:        output,
		BatchDiscount: 0.5,
		CacheWriteMul: 1.25,
		CacheReadMul:  0.1,
	}
}

// DefaultRates returns the stock pricing table.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  claudeRate(0.80, 4.00),
			"claude-sonnet-4-5-20250929": claudeRate(3.00, 15.00),
			"claude-opus-4-6":            claudeRate(15.00, 75.00),
		},
	}
}
