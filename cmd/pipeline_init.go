package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/analyzer"
	"github.com/sells-group/proposal-cli/internal/cost"
	"github.com/sells-group/proposal-cli/internal/extractor"
	"github.com/sells-group/proposal-cli/internal/generator"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/pipeline"
	"github.com/sells-group/proposal-cli/internal/registry"
	"github.com/sells-group/proposal-cli/internal/resilience"
	"github.com/sells-group/proposal-cli/internal/review"
	"github.com/sells-group/proposal-cli/internal/schema"
	"github.com/sells-group/proposal-cli/internal/scorer"
	"github.com/sells-group/proposal-cli/internal/store"
	anthropicpkg "github.com/sells-group/proposal-cli/pkg/anthropic"
	"github.com/sells-group/proposal-cli/pkg/notion"
)

// pipelineEnv holds the initialized store, API clients, registries, and the
// pipeline needed by the generate/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Breakers *resilience.ServiceBreakers
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store and API clients, loads the section
// registry, and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var aiOpts []anthropicpkg.ClientOption
	if cfg.Anthropic.MaxRPS > 0 {
		aiOpts = append(aiOpts, anthropicpkg.WithMaxRPS(cfg.Anthropic.MaxRPS))
	}
	if cfg.Anthropic.TimeoutSecs > 0 {
		aiOpts = append(aiOpts, anthropicpkg.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second))
	}
	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key, aiOpts...)
	notionClient := notion.NewClient(cfg.Notion.Token)

	templates, err := loadTemplates(ctx, notionClient)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("section registry loaded", zap.Int("sections", len(templates)))

	weights, err := loadWeights(templates)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	rules, err := loadRules()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	costs := cost.NewCalculator(pricingRates())
	for _, m := range []string{cfg.Anthropic.ExtractModel, cfg.Anthropic.GenerateModel, cfg.Anthropic.AnalyzeModel} {
		if !costs.Known(m) {
			zap.L().Warn("no pricing entry for model, its usage will be costed at zero", zap.String("model", m))
		}
	}

	// One breaker per upstream, shared by every component that calls it.
	// Only transient failures trip a circuit; a bad request stays the
	// caller's problem.
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.ShouldTrip = resilience.IsTransient
	breakers := resilience.NewServiceBreakers(breakerCfg)
	llmBreaker := breakers.Get("anthropic")

	ext := extractor.New(aiClient, costs, cfg.Anthropic.ExtractModel, cfg.Extraction,
		extractor.WithBreaker(llmBreaker),
		extractor.WithBatchPolicy(extractor.BatchPolicy{
			Disabled:       cfg.Anthropic.NoBatch,
			SmallThreshold: cfg.Anthropic.SmallBatchThreshold,
			MaxBatchSize:   cfg.Anthropic.MaxBatchSize,
		}))
	diag := analyzer.New(aiClient, st, costs, cfg.Anthropic.AnalyzeModel,
		analyzer.WithBreaker(llmBreaker))
	gen := generator.New(cfg.Generation, aiClient, diag, costs, cfg.Anthropic.GenerateModel, templates, weights, rules,
		generator.WithBreaker(llmBreaker))

	// Review publishing is optional; runs still settle without it.
	var publisher *review.Publisher
	if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
		publisher = review.NewPublisher(notionClient, cfg.Notion.ReviewDB,
			review.WithBreaker(breakers.Get("notion")))
		zap.L().Info("notion review publishing enabled")
	} else {
		zap.L().Debug("PROPOSAL_NOTION_REVIEW_DB not set, review publishing disabled")
	}

	p := pipeline.New(cfg, st, ext, gen, publisher)

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Breakers: breakers,
	}, nil
}

// loadTemplates resolves the section registry: an explicit fixture file
// wins, then the Notion registry database, then the compiled-in set.
func loadTemplates(ctx context.Context, notionClient notion.Client) ([]model.SectionTemplate, error) {
	if cfg.Generation.SectionsFile != "" {
		templates, err := registry.LoadSectionsFromFile(cfg.Generation.SectionsFile)
		if err != nil {
			return nil, eris.Wrap(err, "load section fixtures")
		}
		return templates, nil
	}

	if cfg.Notion.Token != "" && cfg.Notion.SectionDB != "" {
		templates, err := registry.LoadSectionRegistry(ctx, notionClient, cfg.Notion.SectionDB)
		if err != nil {
			return nil, eris.Wrap(err, "load section registry")
		}
		return templates, nil
	}

	zap.L().Warn("notion not configured, using built-in section templates")
	return registry.DefaultTemplates(), nil
}

// loadWeights resolves scoring weights: an explicit file wins, otherwise the
// weights derive from the section templates.
func loadWeights(templates []model.SectionTemplate) (scorer.Weights, error) {
	if cfg.Generation.WeightsFile == "" {
		return scorer.NewWeights(templates), nil
	}
	weights, err := scorer.LoadWeights(cfg.Generation.WeightsFile)
	if err != nil {
		return scorer.Weights{}, eris.Wrap(err, "load weights")
	}
	return weights, nil
}

// loadRules resolves the validation rule set: an explicit file wins,
// otherwise the stock proposal rules apply.
func loadRules() (schema.RuleSet, error) {
	if cfg.Generation.RulesFile == "" {
		return schema.DefaultProposalRules(), nil
	}
	rules, err := schema.LoadRules(cfg.Generation.RulesFile)
	if err != nil {
		return schema.RuleSet{}, eris.Wrap(err, "load rules")
	}
	return rules, nil
}

// pricingRates converts configured pricing into calculator rates, falling
// back to the stock table when none is configured.
func pricingRates() cost.Rates {
	if len(cfg.Pricing.Anthropic) == 0 {
		return cost.DefaultRates()
	}
	rates := cost.Rates{Anthropic: make(map[string]cost.ModelRate, len(cfg.Pricing.Anthropic))}
	for name, p := range cfg.Pricing.Anthropic {
		rates.Anthropic[name] = cost.ModelRate(p)
	}
	return rates
}
