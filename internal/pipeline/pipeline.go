// Package pipeline orchestrates one end-to-end proposal run: transcript
// extraction, the drafting loop, run-record persistence, and review routing.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/proposal-cli/internal/config"
	"github.com/sells-group/proposal-cli/internal/extractor"
	"github.com/sells-group/proposal-cli/internal/generator"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/review"
	"github.com/sells-group/proposal-cli/internal/store"
)

// settleTimeout bounds the final run-record writes. They run on a fresh
// context so a run settles even when the request context died.
const settleTimeout = 10 * time.Second

// Pipeline drives a proposal run through extraction, generation, and
// persistence.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	extractor *extractor.Extractor
	generator *generator.Generator
	publisher *review.Publisher // nil disables review routing
}

// New creates a Pipeline. The publisher may be nil when Notion review
// publishing is not configured.
func New(
	cfg *config.Config,
	st store.Store,
	ext *extractor.Extractor,
	gen *generator.Generator,
	pub *review.Publisher,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		extractor: ext,
		generator: gen,
		publisher: pub,
	}
}

// Result is what one run hands back to the caller.
type Result struct {
	RunID       string                       `json:"run_id"`
	Status      model.RunStatus              `json:"status"`
	Document    map[string]any               `json:"document,omitempty"`
	Sections    []model.SectionQuality       `json:"sections,omitempty"`
	Metrics     model.ProposalQualityMetrics `json:"metrics"`
	Extraction  *model.ExtractionSummary     `json:"extraction,omitempty"`
	Attempts    int                          `json:"attempts"`
	Errors      []model.ValidationError      `json:"errors,omitempty"`
	TotalTokens int                          `json:"total_tokens"`
	TotalCost   float64                      `json:"total_cost"`
	DurationMs  int64                        `json:"duration_ms"`
	ReviewPage  string                       `json:"review_page,omitempty"`
}

// Run executes the full pipeline for one proposal. On an exhausted retry
// budget it returns both the best-effort Result and generator.ErrExhausted
// so callers surface the failure instead of passing invalid content along.
func (p *Pipeline) Run(ctx context.Context, pctx model.ProposalContext) (*Result, error) {
	log := zap.L().With(
		zap.String("proposal_id", pctx.ProposalID),
		zap.String("tenant_id", pctx.TenantID),
	)
	log.Info("pipeline: starting run")
	start := time.Now()

	run, err := p.store.CreateRun(ctx, pctx.ProposalID, pctx.TenantID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	result := &Result{RunID: run.ID}

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	var usage model.TokenUsage

	// Extraction. Skipped when the caller already supplies insights.
	if len(pctx.Extracted) == 0 && strings.TrimSpace(pctx.Transcript) != "" {
		setStatus(model.RunStatusExtracting)
		state, extractErr := p.extractor.Run(ctx, pctx)
		if extractErr != nil {
			p.fail(run, result, start, extractErr)
			return result, eris.Wrap(extractErr, "pipeline: extract")
		}
		summary := extractor.Summary(state)
		result.Extraction = &summary
		usage.Add(summary.Usage)
		pctx.Extracted = insightMap(state.FinalSections)
	}

	setStatus(model.RunStatusGenerating)
	gen, genErr := p.generator.Generate(ctx, pctx)
	exhausted := errors.Is(genErr, generator.ErrExhausted)
	if genErr != nil && !exhausted {
		p.fail(run, result, start, genErr)
		return result, eris.Wrap(genErr, "pipeline: generate")
	}

	result.Document = gen.Document
	result.Sections = gen.Sections
	result.Metrics = gen.Metrics
	result.Attempts = gen.Attempts
	result.Errors = gen.Errors
	usage.Add(gen.Usage)
	result.TotalTokens = usage.InputTokens + usage.OutputTokens
	result.TotalCost = usage.Cost
	result.DurationMs = time.Since(start).Milliseconds()

	result.Status = model.RunStatusPassed
	if gen.Exhausted {
		result.Status = model.RunStatusExhausted
	}

	p.settle(run, result, log)

	log.Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.String("status", string(result.Status)),
		zap.Int("attempts", result.Attempts),
		zap.Float64("confidence", result.Metrics.OverallConfidence),
		zap.Int("tokens", result.TotalTokens),
		zap.Float64("cost_usd", result.TotalCost),
	)

	if exhausted {
		return result, genErr
	}
	return result, nil
}

// settle writes the run record and, when the run needs a human, the review
// page. The two writes are independent, so they run in parallel; neither
// failure invalidates the run output.
func (p *Pipeline) settle(run *model.Run, result *Result, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	runResult := &model.RunResult{
		Metrics:      &result.Metrics,
		Extraction:   result.Extraction,
		AttemptCount: result.Attempts,
		Errors:       result.Errors,
		TotalTokens:  result.TotalTokens,
		TotalCost:    result.TotalCost,
		DurationMs:   result.DurationMs,
	}

	settled := *run
	settled.Status = result.Status
	settled.Result = runResult

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if saveErr := p.store.CompleteRun(gCtx, run.ID, result.Status, runResult); saveErr != nil {
			log.Warn("pipeline: failed to save run result", zap.Error(saveErr))
		}
		return nil
	})
	if p.publisher != nil && review.Needed(settled) {
		g.Go(func() error {
			pageID, pubErr := p.publisher.Publish(gCtx, settled)
			if pubErr != nil {
				log.Warn("pipeline: review publish failed", zap.Error(pubErr))
				return nil
			}
			result.ReviewPage = pageID
			return nil
		})
	}
	_ = g.Wait()
}

// fail settles a run that broke before producing a document. Cancellation
// is recorded as cancelled rather than failed.
func (p *Pipeline) fail(run *model.Run, result *Result, start time.Time, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	status := model.RunStatusFailed
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		status = model.RunStatusCancelled
	}
	result.Status = status
	result.DurationMs = time.Since(start).Milliseconds()

	runResult := &model.RunResult{
		Extraction: result.Extraction,
		DurationMs: result.DurationMs,
		Error:      cause.Error(),
	}
	if saveErr := p.store.CompleteRun(ctx, run.ID, status, runResult); saveErr != nil {
		zap.L().Warn("pipeline: failed to save failed run",
			zap.String("run_id", run.ID),
			zap.Error(saveErr),
		)
	}
}

// insightMap re-keys extracted insights by category name for the prompt
// builder.
func insightMap(sections map[model.InsightCategory]model.ExtractedInsight) map[string]any {
	if len(sections) == 0 {
		return nil
	}
	out := make(map[string]any, len(sections))
	for cat, ins := range sections {
		out[string(cat)] = ins
	}
	return out
}
