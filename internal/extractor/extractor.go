// Package extractor runs multi-pass insight extraction over a call
// transcript: one broad pass across every category, then targeted passes
// scoped to whatever the previous passes left under-covered, until the gaps
// close, the pass budget runs out, or another pass stops paying for itself.
package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/config"
	"github.com/sells-group/proposal-cli/internal/cost"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/resilience"
	"github.com/sells-group/proposal-cli/pkg/anthropic"
)

const (
	defaultMaxPasses          = 3
	defaultCoverageThreshold  = 0.6
	defaultMinImprovement     = 0.05
	defaultMaxTranscriptChars = 24000

	extractionMaxTokens = 4096
)

// Extractor owns one extraction run at a time; no state is shared between
// runs, so a single Extractor is safe to reuse across goroutines.
type Extractor struct {
	ai      anthropic.Client
	costs   *cost.Calculator
	model   string
	cfg     config.ExtractionConfig
	batch   BatchPolicy
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// BatchPolicy controls when Screen uses the Batch API. Backlogs at or
// below SmallThreshold go through live calls instead, where the batch
// overhead outweighs its discount; larger backlogs are split into batches
// of at most MaxBatchSize requests. Zero values leave each behavior off.
type BatchPolicy struct {
	Disabled       bool
	SmallThreshold int
	MaxBatchSize   int
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithBreaker replaces the breaker guarding extraction calls, so the
// extractor can share one circuit with everything else talking to the LLM.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(e *Extractor) { e.breaker = cb }
}

// WithBatchPolicy sets the Screen batching policy.
func WithBatchPolicy(p BatchPolicy) Option {
	return func(e *Extractor) { e.batch = p }
}

// New builds an Extractor. Zero config values fall back to the stock
// thresholds.
func New(ai anthropic.Client, costs *cost.Calculator, aiModel string, cfg config.ExtractionConfig, opts ...Option) *Extractor {
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = defaultMaxPasses
	}
	if cfg.CoverageThreshold <= 0 {
		cfg.CoverageThreshold = defaultCoverageThreshold
	}
	if cfg.MinImprovement <= 0 {
		cfg.MinImprovement = defaultMinImprovement
	}
	if cfg.MaxTranscriptChars <= 0 {
		cfg.MaxTranscriptChars = defaultMaxTranscriptChars
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "extraction pass")
	e := &Extractor{
		ai:      ai,
		costs:   costs,
		model:   aiModel,
		cfg:     cfg,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker("anthropic", resilience.DefaultCircuitBreakerConfig()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run extracts insights from the proposal's transcript. The broad pass must
// succeed; a failed targeted pass ends refinement with whatever earlier
// passes produced, surfacing the unresolved categories in RemainingGaps
// rather than failing the run.
func (e *Extractor) Run(ctx context.Context, pctx model.ProposalContext) (*model.MultiPassState, error) {
	if strings.TrimSpace(pctx.Transcript) == "" {
		return nil, eris.New("extractor: empty transcript")
	}

	state := &model.MultiPassState{
		FinalSections: make(map[model.InsightCategory]model.ExtractedInsight, len(model.AllCategories)),
	}

	started := time.Now()
	insights, usage, err := e.pass(ctx, pctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "extractor: broad pass")
	}
	touched := mergeInsights(state.FinalSections, insights)
	state.Passes = append(state.Passes, passRecord(1, nil, touched, usage, started))
	state.CoverageScore, state.OverallConfidence = e.score(state.FinalSections)

	open := e.identifyGaps(state.FinalSections, 1)
	state.GapsIdentified = append(state.GapsIdentified, open...)

	prevConfidence := state.OverallConfidence

	for pass := 2; pass <= e.cfg.MaxPasses && len(open) > 0; pass++ {
		started := time.Now()
		insights, usage, err := e.pass(ctx, pctx, open)
		if err != nil {
			zap.L().Warn("extractor: targeted pass failed, keeping earlier passes",
				zap.String("proposal_id", pctx.ProposalID),
				zap.Int("pass", pass),
				zap.Error(err),
			)
			break
		}
		touched := mergeInsights(state.FinalSections, insights)
		state.Passes = append(state.Passes, passRecord(pass, gapCategories(open), touched, usage, started))
		state.CoverageScore, state.OverallConfidence = e.score(state.FinalSections)

		var remaining []model.Gap
		for _, g := range open {
			ins, ok := state.FinalSections[g.Category]
			if ok {
				reason := e.gapReason(ins)
				if reason == "" {
					state.GapsResolved = append(state.GapsResolved, model.Gap{
						Category: g.Category,
						Reason:   g.Reason,
						Pass:     pass,
					})
					continue
				}
				remaining = append(remaining, model.Gap{Category: g.Category, Reason: reason, Pass: g.Pass})
				continue
			}
			remaining = append(remaining, g)
		}

		resolved := len(open) - len(remaining)
		gain := state.OverallConfidence - prevConfidence
		prevConfidence = state.OverallConfidence
		open = remaining

		if resolved == 0 && gain < e.cfg.MinImprovement {
			zap.L().Info("extractor: diminishing returns, stopping",
				zap.String("proposal_id", pctx.ProposalID),
				zap.Int("pass", pass),
				zap.Float64("confidence_gain", gain),
			)
			break
		}
	}

	state.RemainingGaps = open
	state.ConsistencyIssues = checkConsistency(state.FinalSections)

	zap.L().Info("extractor: run complete",
		zap.String("proposal_id", pctx.ProposalID),
		zap.Int("passes", len(state.Passes)),
		zap.Float64("coverage", state.CoverageScore),
		zap.Float64("confidence", state.OverallConfidence),
		zap.Int("remaining_gaps", len(state.RemainingGaps)),
	)
	return state, nil
}

// pass issues one extraction call through the retry budget and the LLM
// circuit breaker. An empty gap list means the broad pass; otherwise the
// prompt is scoped to the gap categories only.
func (e *Extractor) pass(ctx context.Context, pctx model.ProposalContext, gaps []model.Gap) (map[model.InsightCategory]model.ExtractedInsight, model.TokenUsage, error) {
	var prompt string
	allowed := model.AllCategories
	if len(gaps) > 0 {
		prompt = buildTargetedPrompt(pctx, gaps)
		allowed = gapCategories(gaps)
	} else {
		prompt = buildBroadPrompt(pctx)
	}
	// The transcript rides in a cached system block: identical across
	// passes, so pass 2..N reread it at cache rates.
	system := anthropic.CachedSystem(extractionSystemPrompt, transcriptBlock(pctx, e.cfg.MaxTranscriptChars))

	var usage model.TokenUsage
	insights, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (map[model.InsightCategory]model.ExtractedInsight, error) {
		return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (map[model.InsightCategory]model.ExtractedInsight, error) {
			resp, err := e.ai.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     e.model,
				MaxTokens: extractionMaxTokens,
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

			parsed, err := parsePassResponse(anthropic.ExtractText(resp), allowed)
			if err != nil {
				return nil, resilience.NewMalformedResponse("anthropic", err)
			}
			return parsed, nil
		})
	})

	if e.costs != nil {
		usage.Cost = e.costs.Claude(e.model, false, usage.InputTokens, usage.OutputTokens, usage.CacheCreationTokens, usage.CacheReadTokens)
	}
	return insights, usage, err
}

// identifyGaps scans the merged sections against the coverage bar. A
// category entirely absent from the extraction is a gap too.
func (e *Extractor) identifyGaps(sections map[model.InsightCategory]model.ExtractedInsight, pass int) []model.Gap {
	var gaps []model.Gap
	for _, cat := range model.AllCategories {
		ins, ok := sections[cat]
		if !ok {
			gaps = append(gaps, model.Gap{Category: cat, Reason: "category missing from extraction", Pass: pass})
			continue
		}
		if reason := e.gapReason(ins); reason != "" {
			gaps = append(gaps, model.Gap{Category: cat, Reason: reason, Pass: pass})
		}
	}
	return gaps
}

func (e *Extractor) gapReason(ins model.ExtractedInsight) string {
	switch {
	case len(ins.Items) == 0:
		return "no items extracted"
	case ins.Confidence < e.cfg.CoverageThreshold:
		return fmt.Sprintf("confidence %.2f below threshold %.2f", ins.Confidence, e.cfg.CoverageThreshold)
	case len(ins.Sources) == 0:
		return "missing source citations"
	}
	return ""
}

// score computes coverage (fraction of categories clearing the gap bar) and
// overall confidence (mean across all categories, absent ones counting 0).
func (e *Extractor) score(sections map[model.InsightCategory]model.ExtractedInsight) (coverage, confidence float64) {
	total := float64(len(model.AllCategories))
	var sum float64
	covered := 0
	for _, cat := range model.AllCategories {
		ins, ok := sections[cat]
		if !ok {
			continue
		}
		sum += ins.Confidence
		if e.gapReason(ins) == "" {
			covered++
		}
	}
	return float64(covered) / total, sum / total
}

// mergeInsights folds a pass result into the accumulated sections, keeping
// the better extraction per category. Returns the categories that changed.
func mergeInsights(sections map[model.InsightCategory]model.ExtractedInsight, incoming map[model.InsightCategory]model.ExtractedInsight) []model.InsightCategory {
	var touched []model.InsightCategory
	for _, cat := range model.AllCategories {
		in, ok := incoming[cat]
		if !ok {
			continue
		}
		cur, exists := sections[cat]
		if !exists || better(in, cur) {
			sections[cat] = in
			touched = append(touched, cat)
		}
	}
	return touched
}

// better prefers the candidate that actually extracted something, then the
// higher confidence, then the richer extraction.
func better(candidate, current model.ExtractedInsight) bool {
	if len(current.Items) == 0 && len(candidate.Items) > 0 {
		return true
	}
	if len(candidate.Items) == 0 && len(current.Items) > 0 {
		return false
	}
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence
	}
	if len(candidate.Items) != len(current.Items) {
		return len(candidate.Items) > len(current.Items)
	}
	return len(candidate.Sources) > len(current.Sources)
}

func gapCategories(gaps []model.Gap) []model.InsightCategory {
	cats := make([]model.InsightCategory, 0, len(gaps))
	for _, g := range gaps {
		cats = append(cats, g.Category)
	}
	return cats
}

func passRecord(number int, targeted, touched []model.InsightCategory, usage model.TokenUsage, started time.Time) model.PassRecord {
	return model.PassRecord{
		Number:     number,
		Targeted:   targeted,
		DurationMs: time.Since(started).Milliseconds(),
		Usage:      usage,
		Touched:    touched,
	}
}

// Summary collapses the working state into the form persisted with a run.
func Summary(state *model.MultiPassState) model.ExtractionSummary {
	var usage model.TokenUsage
	for _, p := range state.Passes {
		usage.Add(p.Usage)
	}
	return model.ExtractionSummary{
		PassCount:         len(state.Passes),
		GapsIdentified:    len(state.GapsIdentified),
		GapsResolved:      len(state.GapsResolved),
		RemainingGaps:     state.RemainingGaps,
		OverallConfidence: state.OverallConfidence,
		CoverageScore:     state.CoverageScore,
		ConsistencyIssues: state.ConsistencyIssues,
		Usage:             usage,
	}
}
