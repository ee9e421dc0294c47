//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/proposal-cli/internal/config"
	"github.com/sells-group/proposal-cli/internal/cost"
)

// minimalGenerateConfig passes Validate("generate") with a SQLite store.
func minimalGenerateConfig(dsn string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: dsn,
		},
		Anthropic: config.AnthropicConfig{
			Key:           "test-key",
			ExtractModel:  "claude-sonnet-4-5-20250929",
			GenerateModel: "claude-sonnet-4-5-20250929",
			AnalyzeModel:  "claude-haiku-4-5-20251001",
		},
		Extraction: config.ExtractionConfig{MaxPasses: 1},
		Generation: config.GenerationConfig{MaxAttempts: 1, SectionConcurrency: 1},
	}
}

func TestPipelineEnv_Close_Nil(t *testing.T) {
	// Close with all nil fields should not panic.
	pe := &pipelineEnv{}
	assert.NotPanics(t, func() {
		pe.Close()
	})
}

func TestPipelineEnv_Close_WithStore(t *testing.T) {
	// Set up a real SQLite store to verify Close() calls through.
	cfg = minimalGenerateConfig(filepath.Join(t.TempDir(), "test_close.db"))

	st, err := initStore(context.Background())
	require.NoError(t, err)

	pe := &pipelineEnv{
		Store: st,
	}

	// Should not panic and should close the store cleanly.
	assert.NotPanics(t, func() {
		pe.Close()
	})
}

func TestInitPipeline_ValidateFails(t *testing.T) {
	cfg = minimalGenerateConfig("")
	cfg.Anthropic.Key = ""

	env, err := initPipeline(context.Background(), "generate")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestInitPipeline_FailsOnBadDriver(t *testing.T) {
	cfg = minimalGenerateConfig("")
	cfg.Store.Driver = "mysql"

	env, err := initPipeline(context.Background(), "generate")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitPipeline_FailsOnBadSectionsFile(t *testing.T) {
	cfg = minimalGenerateConfig(filepath.Join(t.TempDir(), "test_pipe.db"))
	cfg.Generation.SectionsFile = "/nonexistent/sections.json"

	env, err := initPipeline(context.Background(), "generate")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load section fixtures")
}

func TestInitPipeline_BuiltinTemplates(t *testing.T) {
	// With neither Notion nor fixture files configured, the env wires the
	// compiled-in registry, derived weights, and stock rules.
	cfg = minimalGenerateConfig(filepath.Join(t.TempDir(), "test_env.db"))

	env, err := initPipeline(context.Background(), "generate")
	require.NoError(t, err)
	require.NotNil(t, env)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Pipeline)
}

func TestLoadRules_Default(t *testing.T) {
	cfg = minimalGenerateConfig("")

	rules, err := loadRules()
	require.NoError(t, err)
	assert.NotEmpty(t, rules.Rules)
}

func TestLoadWeights_DerivedFromTemplates(t *testing.T) {
	cfg = minimalGenerateConfig("")

	weights, err := loadWeights(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, weights.Classes)
}

func TestPricingRates_Default(t *testing.T) {
	cfg = minimalGenerateConfig("")

	rates := pricingRates()
	assert.Equal(t, cost.DefaultRates(), rates)
}

func TestPricingRates_Configured(t *testing.T) {
	cfg = minimalGenerateConfig("")
	cfg.Pricing = config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"claude-sonnet-4-5-20250929": {Input: 1.0, Output: 2.0, BatchDiscount: 0.5},
		},
	}

	rates := pricingRates()
	rate, ok := rates.Anthropic["claude-sonnet-4-5-20250929"]
	require.True(t, ok)
	assert.InDelta(t, 1.0, rate.Input, 1e-9)
	assert.InDelta(t, 2.0, rate.Output, 1e-9)
	assert.InDelta(t, 0.5, rate.BatchDiscount, 1e-9)
}
