package extractor

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/resilience"
	"github.com/sells-group/proposal-cli/pkg/anthropic"
)

// ScreenResult is the single-pass triage verdict for one transcript.
type ScreenResult struct {
	ProposalID string      `json:"proposal_id"`
	Coverage   float64     `json:"coverage"`
	Confidence float64     `json:"confidence"`
	Gaps       []model.Gap `json:"gaps,omitempty"`

	Usage model.TokenUsage `json:"usage"`
}

// ScreenFailure records a transcript the screening batch could not score.
type ScreenFailure struct {
	ProposalID string `json:"proposal_id"`
	Reason     string `json:"reason"`
}

// ScreenReport aggregates one screening sweep. BatchIDs is empty when the
// sweep ran over live calls instead of the Batch API.
type ScreenReport struct {
	BatchIDs []string        `json:"batch_ids,omitempty"`
	Results  []ScreenResult  `json:"results"`
	Failures []ScreenFailure `json:"failures,omitempty"`

	Usage model.TokenUsage `json:"usage"`
}

// Screen triages a backlog of transcripts: a single broad pass per
// transcript, scored the same way a live run scores its first pass. Big
// backlogs go through the Batch API at batch rates; backlogs at or below
// the policy's small-batch threshold use live calls instead. Results keep
// the input order; transcripts that could not be scored land in Failures
// instead of failing the sweep.
func (e *Extractor) Screen(ctx context.Context, pctxs []model.ProposalContext, opts ...anthropic.PollOption) (*ScreenReport, error) {
	report := &ScreenReport{}

	reqs := make([]anthropic.BatchRequestItem, 0, len(pctxs))
	queued := make(map[string]bool, len(pctxs))
	for _, pctx := range pctxs {
		if pctx.ProposalID == "" {
			return nil, eris.New("extractor: screen input missing proposal ID")
		}
		if queued[pctx.ProposalID] {
			return nil, eris.Errorf("extractor: duplicate proposal ID %s in screen batch", pctx.ProposalID)
		}
		queued[pctx.ProposalID] = true

		if strings.TrimSpace(pctx.Transcript) == "" {
			report.Failures = append(report.Failures, ScreenFailure{
				ProposalID: pctx.ProposalID,
				Reason:     "empty transcript",
			})
			continue
		}
		// Each transcript is distinct, so no cache breakpoint here; batch
		// pricing already discounts the input.
		reqs = append(reqs, anthropic.BatchRequestItem{
			CustomID: pctx.ProposalID,
			Params: anthropic.MessageRequest{
				Model:     e.model,
				MaxTokens: extractionMaxTokens,
				System:    []anthropic.SystemBlock{{Text: extractionSystemPrompt}},
				Messages: []anthropic.Message{
					{Role: "user", Content: transcriptBlock(pctx, e.cfg.MaxTranscriptChars) + "\n\n" + buildBroadPrompt(pctx)},
				},
			},
		})
	}
	if len(reqs) == 0 {
		return nil, eris.New("extractor: no transcripts to screen")
	}

	batched := !e.batch.Disabled && len(reqs) > e.batch.SmallThreshold
	var succeeded map[string]*anthropic.MessageResponse
	var err error
	if batched {
		succeeded, err = e.screenBatched(ctx, report, reqs, opts...)
	} else {
		succeeded = e.screenDirect(ctx, report, reqs)
	}
	if err != nil {
		return nil, err
	}

	for _, pctx := range pctxs {
		msg, ok := succeeded[pctx.ProposalID]
		if !ok {
			continue
		}
		result, err := e.scoreScreenItem(pctx.ProposalID, msg, batched)
		if err != nil {
			report.Failures = append(report.Failures, ScreenFailure{
				ProposalID: pctx.ProposalID,
				Reason:     err.Error(),
			})
			continue
		}
		report.Results = append(report.Results, result)
		report.Usage.Add(result.Usage)
	}

	zap.L().Info("extractor: screen complete",
		zap.Strings("batch_ids", report.BatchIDs),
		zap.Int("scored", len(report.Results)),
		zap.Int("failed", len(report.Failures)),
		zap.Float64("cost_usd", report.Usage.Cost),
	)
	return report, nil
}

// screenBatched submits the requests through the Batch API, split into
// batches of at most MaxBatchSize, and returns the succeeded responses
// keyed by proposal ID. Items the API could not serve land in Failures.
func (e *Extractor) screenBatched(ctx context.Context, report *ScreenReport, reqs []anthropic.BatchRequestItem, opts ...anthropic.PollOption) (map[string]*anthropic.MessageResponse, error) {
	size := e.batch.MaxBatchSize
	if size <= 0 {
		size = len(reqs)
	}

	succeeded := make(map[string]*anthropic.MessageResponse, len(reqs))
	for start := 0; start < len(reqs); start += size {
		chunk := reqs[start:min(start+size, len(reqs))]

		batch, err := e.ai.CreateBatch(ctx, anthropic.BatchRequest{Requests: chunk})
		if err != nil {
			return nil, eris.Wrap(err, "extractor: submit screen batch")
		}
		report.BatchIDs = append(report.BatchIDs, batch.ID)
		zap.L().Info("extractor: screen batch submitted",
			zap.String("batch_id", batch.ID),
			zap.Int("transcripts", len(chunk)),
		)

		if _, err := anthropic.PollBatch(ctx, e.ai, batch.ID, opts...); err != nil {
			return nil, eris.Wrap(err, "extractor: screen batch")
		}

		iter, err := e.ai.GetBatchResults(ctx, batch.ID)
		if err != nil {
			return nil, eris.Wrap(err, "extractor: screen batch results")
		}
		collected, err := anthropic.CollectBatchResultsDetailed(iter)
		if err != nil {
			return nil, eris.Wrap(err, "extractor: screen batch results")
		}
		for _, f := range collected.Failures {
			report.Failures = append(report.Failures, ScreenFailure{
				ProposalID: f.CustomID,
				Reason:     "batch item " + f.Type,
			})
		}
		for id, msg := range collected.Succeeded {
			succeeded[id] = msg
		}
	}
	return succeeded, nil
}

// screenDirect issues one live call per transcript through the usual retry
// budget and breaker. A call that still fails becomes a Failure entry, not
// an error; one stubborn transcript must not sink the sweep.
func (e *Extractor) screenDirect(ctx context.Context, report *ScreenReport, reqs []anthropic.BatchRequestItem) map[string]*anthropic.MessageResponse {
	succeeded := make(map[string]*anthropic.MessageResponse, len(reqs))
	for _, r := range reqs {
		params := r.Params
		resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
				return e.ai.CreateMessage(ctx, params)
			})
		})
		if err != nil {
			report.Failures = append(report.Failures, ScreenFailure{
				ProposalID: r.CustomID,
				Reason:     err.Error(),
			})
			continue
		}
		succeeded[r.CustomID] = resp
	}
	return succeeded
}

// scoreScreenItem scores one answer exactly as a live broad pass would:
// parse, merge, then coverage and gap analysis. batched selects the
// discounted pricing tier.
func (e *Extractor) scoreScreenItem(proposalID string, msg *anthropic.MessageResponse, batched bool) (ScreenResult, error) {
	parsed, err := parsePassResponse(anthropic.ExtractText(msg), model.AllCategories)
	if err != nil {
		return ScreenResult{}, eris.Wrap(err, "unparseable response")
	}

	sections := make(map[model.InsightCategory]model.ExtractedInsight, len(model.AllCategories))
	mergeInsights(sections, parsed)
	coverage, confidence := e.score(sections)

	usage := model.TokenUsage{
		InputTokens:         int(msg.Usage.InputTokens),
		OutputTokens:        int(msg.Usage.OutputTokens),
		CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
	}
	if e.costs != nil {
		usage.Cost = e.costs.Claude(e.model, batched, usage.InputTokens, usage.OutputTokens, usage.CacheCreationTokens, usage.CacheReadTokens)
	}

	return ScreenResult{
		ProposalID: proposalID,
		Coverage:   coverage,
		Confidence: confidence,
		Gaps:       e.identifyGaps(sections, 1),
		Usage:      usage,
	}, nil
}
