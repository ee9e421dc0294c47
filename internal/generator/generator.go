// Package generator drives the proposal drafting loop. Each attempt drafts
// every section concurrently, assembles the document, and validates it
// against the schema rules. Failures are diagnosed and the diagnosis is fed
// into the next attempt's prompts; the loop ends at the first passing
// document or when the attempt budget runs out.
package generator

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/proposal-cli/internal/analyzer"
	"github.com/sells-group/proposal-cli/internal/config"
	"github.com/sells-group/proposal-cli/internal/cost"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/resilience"
	"github.com/sells-group/proposal-cli/internal/schema"
	"github.com/sells-group/proposal-cli/internal/scorer"
	"github.com/sells-group/proposal-cli/pkg/anthropic"
)

const (
	defaultMaxAttempts        = 3
	defaultSectionConcurrency = 10
	sectionMaxTokens          = 4096
)

// ErrExhausted marks a run that spent every attempt without producing a
// document that passes validation. The GenerationResult returned alongside
// it carries the final attempt's document and errors so callers can still
// surface a best-effort draft.
var ErrExhausted = eris.New("generator: retry budget exhausted")

// State names one phase of the drafting loop, for logging and run records.
type State string

const (
	StateGenerating   State = "GENERATING"
	StateValidating   State = "VALIDATING"
	StateAnalyzing    State = "ANALYZING"
	StateRetryPending State = "RETRY_PENDING"
	StatePassed       State = "PASS"
	StateExhausted    State = "EXHAUSTED"
)

// Generator drafts proposal documents section by section and retries failed
// attempts with diagnosis-enhanced prompts.
type Generator struct {
	cfg       config.GenerationConfig
	ai        anthropic.Client
	analyzer  *analyzer.Analyzer
	costs     *cost.Calculator
	model     string
	templates []model.SectionTemplate
	weights   scorer.Weights
	rules     schema.RuleSet
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
}

// Option customizes a Generator.
type Option func(*Generator)

// WithBreaker replaces the breaker guarding section drafting calls.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(g *Generator) { g.breaker = cb }
}

// New creates a Generator. Inactive templates are filtered out up front so
// every attempt drafts the same section set.
func New(
	cfg config.GenerationConfig,
	aiClient anthropic.Client,
	failureAnalyzer *analyzer.Analyzer,
	costCalc *cost.Calculator,
	aiModel string,
	templates []model.SectionTemplate,
	weights scorer.Weights,
	rules schema.RuleSet,
	opts ...Option,
) *Generator {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "section draft")
	g := &Generator{
		cfg:       cfg,
		ai:        aiClient,
		analyzer:  failureAnalyzer,
		costs:     costCalc,
		model:     aiModel,
		templates: model.FilterActive(templates),
		weights:   weights,
		rules:     rules,
		retry:     retry,
		breaker:   resilience.NewCircuitBreaker("anthropic", resilience.DefaultCircuitBreakerConfig()),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs the full drafting loop for one proposal. On success the
// result carries the assembled document and its quality metrics; a quality
// gate miss does not retry, it surfaces on Metrics.ValidationPassed for the
// caller to route to review. When the attempt budget runs out the result is
// still returned, flagged Exhausted, alongside an error matching
// ErrExhausted.
func (g *Generator) Generate(ctx context.Context, pctx model.ProposalContext) (*model.GenerationResult, error) {
	if len(g.templates) == 0 {
		return nil, eris.New("generator: no active section templates")
	}

	maxAttempts := g.maxAttempts()

	// One cached system prefix for the whole run: every section of every
	// attempt rereads the discovery material from cache.
	system := anthropic.CachedSystem(generationSystemPrompt, discoveryBlock(pctx))

	var (
		diag       *model.Diagnosis
		totalUsage model.TokenUsage
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "generator: run abandoned")
		}

		g.transition(pctx, attempt, StateGenerating)
		doc, parsed, usage, err := g.attempt(ctx, pctx, system, diag)
		totalUsage.Add(usage)
		if err != nil {
			return nil, eris.Wrap(err, "generator: attempt abandoned")
		}

		g.transition(pctx, attempt, StateValidating)
		sections, metrics := scorer.ScoreSections(parsed, g.weights)
		verrs := schema.Validate(doc, g.rules)

		if len(verrs) == 0 {
			g.transition(pctx, attempt, StatePassed)
			zap.L().Info("generator: document passed validation",
				zap.String("proposal_id", pctx.ProposalID),
				zap.Int("attempts", attempt),
				zap.Float64("confidence", metrics.OverallConfidence),
				zap.Float64("coverage", metrics.CoverageScore),
				zap.Bool("gate_passed", metrics.ValidationPassed),
			)
			return &model.GenerationResult{
				Document: doc,
				Sections: sections,
				Metrics:  metrics,
				Attempts: attempt,
				Usage:    totalUsage,
			}, nil
		}

		// Diagnose every failed attempt, the last one included: the
		// learning log seeds future runs for the tenant even when this
		// run is out of retries.
		g.transition(pctx, attempt, StateAnalyzing)
		nextDiag, analysisUsage := g.analyzer.Analyze(ctx, analyzer.Request{
			Proposal: pctx,
			Payload:  doc,
			Errors:   verrs,
			Attempt:  attempt,
		})
		totalUsage.Add(analysisUsage)

		if attempt == maxAttempts {
			g.transition(pctx, attempt, StateExhausted)
			zap.L().Warn("generator: retry budget exhausted",
				zap.String("proposal_id", pctx.ProposalID),
				zap.Int("attempts", attempt),
				zap.Int("validation_errors", len(verrs)),
			)
			result := &model.GenerationResult{
				Document:  doc,
				Sections:  sections,
				Metrics:   metrics,
				Attempts:  attempt,
				Errors:    verrs,
				Usage:     totalUsage,
				Exhausted: true,
			}
			return result, eris.Wrapf(ErrExhausted, "proposal %s failed %d validation checks after %d attempts",
				pctx.ProposalID, len(verrs), attempt)
		}

		diag = nextDiag
		g.transition(pctx, attempt, StateRetryPending)
		zap.L().Info("generator: retrying with diagnosis",
			zap.String("proposal_id", pctx.ProposalID),
			zap.Int("attempt", attempt),
			zap.Int("validation_errors", len(verrs)),
			zap.String("root_cause", nextDiag.RootCause),
			zap.Bool("fallback_diagnosis", nextDiag.Fallback),
		)
	}

	return nil, eris.New("generator: attempt loop ended without outcome")
}

type sectionResult struct {
	payload map[string]any
	usage   model.TokenUsage
	err     error
}

// attempt drafts every section concurrently and assembles the document.
// An individual section failure leaves a hole for validation to report;
// only context cancellation aborts the whole attempt.
func (g *Generator) attempt(ctx context.Context, pctx model.ProposalContext, system []anthropic.SystemBlock, diag *model.Diagnosis) (map[string]any, []scorer.ParsedSection, model.TokenUsage, error) {
	instruction := analyzer.InstructionBlock(diag)
	results := make([]sectionResult, len(g.templates))

	grp, gCtx := errgroup.WithContext(ctx)
	grp.SetLimit(g.concurrency())

	for i, tpl := range g.templates {
		grp.Go(func() error {
			payload, usage, err := g.generateSection(gCtx, pctx, system, tpl, instruction)
			results[i] = sectionResult{payload: payload, usage: usage, err: err}
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				zap.L().Warn("generator: section generation failed",
					zap.String("proposal_id", pctx.ProposalID),
					zap.String("section", tpl.Name),
					zap.Error(err),
				)
			}
			return nil // Don't fail the group on individual errors.
		})
	}

	var usage model.TokenUsage
	if err := grp.Wait(); err != nil {
		for _, r := range results {
			usage.Add(r.usage)
		}
		return nil, nil, usage, err
	}

	doc := make(map[string]any, len(results))
	parsed := make([]scorer.ParsedSection, 0, len(results))
	for i, r := range results {
		usage.Add(r.usage)
		if r.err != nil || r.payload == nil {
			continue
		}
		p := scorer.ParseSection(g.templates[i].Name, r.payload)
		doc[p.Name] = p.Content
		parsed = append(parsed, p)
	}
	return doc, parsed, usage, nil
}

// generateSection drafts one section through the retry budget and the LLM
// circuit breaker. Malformed payloads are retried as transient; the returned
// usage covers every call made, failed ones included.
func (g *Generator) generateSection(ctx context.Context, pctx model.ProposalContext, system []anthropic.SystemBlock, tpl model.SectionTemplate, instruction string) (map[string]any, model.TokenUsage, error) {
	prompt := buildSectionPrompt(pctx, tpl, instruction)

	var usage model.TokenUsage
	payload, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (map[string]any, error) {
		return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (map[string]any, error) {
			resp, err := g.ai.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     g.model,
				MaxTokens: sectionMaxTokens,
				System:    system,
				Messages: []anthropic.Message{
					{Role: "user", Content: prompt},
				},
			})
			if err != nil {
				return nil, err
			}

			usage.InputTokens += int(resp.Usage.InputTokens)
			usage.OutputTokens += int(resp.Usage.OutputTokens)
			usage.CacheCreationTokens += int(resp.Usage.CacheCreationInputTokens)
			usage.CacheReadTokens += int(resp.Usage.CacheReadInputTokens)

			payload, err := parseSectionPayload(anthropic.ExtractText(resp))
			if err != nil {
				return nil, resilience.NewMalformedResponse("anthropic", err)
			}
			return payload, nil
		})
	})
	if g.costs != nil {
		usage.Cost = g.costs.Claude(g.model, false,
			usage.InputTokens, usage.OutputTokens, usage.CacheCreationTokens, usage.CacheReadTokens)
	}
	if err != nil {
		return nil, usage, eris.Wrapf(err, "generator: section %s", tpl.Name)
	}
	return payload, usage, nil
}

// parseSectionPayload decodes one section response. Anything beyond "is a
// non-empty JSON object" is scorer.ParseSection's problem.
func parseSectionPayload(text string) (map[string]any, error) {
	cleaned := anthropic.CleanJSON(text)

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, eris.Wrap(err, "generator: unmarshal section payload")
	}
	if len(payload) == 0 {
		return nil, eris.New("generator: empty section payload")
	}
	return payload, nil
}

// transition logs one state change of the drafting loop.
func (g *Generator) transition(pctx model.ProposalContext, attempt int, state State) {
	zap.L().Debug("generator: state transition",
		zap.String("proposal_id", pctx.ProposalID),
		zap.Int("attempt", attempt),
		zap.String("state", string(state)),
	)
}

func (g *Generator) maxAttempts() int {
	if g.cfg.MaxAttempts > 0 {
		return g.cfg.MaxAttempts
	}
	return defaultMaxAttempts
}

func (g *Generator) concurrency() int {
	if g.cfg.SectionConcurrency > 0 {
		return g.cfg.SectionConcurrency
	}
	return defaultSectionConcurrency
}
