// Package analyzer diagnoses failed generation attempts. It asks the LLM
// why validation failed, falls back to a deterministic summary of the
// validation errors when the diagnosis call itself breaks, and appends
// every diagnosis to the learning log so later runs for the same tenant
// start from what past failures taught.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/cost"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/resilience"
	"github.com/sells-group/proposal-cli/internal/store"
	"github.com/sells-group/proposal-cli/pkg/anthropic"
)

const (
	// fallbackConfidence is the self-reported confidence of the
	// deterministic fallback diagnosis.
	fallbackConfidence = 20

	// pastLearningLimit caps how many prior tenant failures seed the
	// diagnosis prompt.
	pastLearningLimit = 10

	diagnosisMaxTokens = 2048
)

// Request carries everything known about one failed attempt: the context
// the attempt was generated from, the payload that failed, and the
// validation errors it failed on.
type Request struct {
	Proposal model.ProposalContext
	Payload  map[string]any
	Errors   []model.ValidationError
	Attempt  int
}

// Analyzer turns a failed attempt into a diagnosis the next attempt can act
// on. Every path degrades rather than fails: a broken diagnosis call falls
// back to a deterministic summary, and a failed learning-log write is
// logged and swallowed.
type Analyzer struct {
	ai      anthropic.Client
	store   store.Store
	costs   *cost.Calculator
	model   string
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithBreaker replaces the breaker guarding diagnosis calls. An open LLM
// circuit fails the diagnosis fast and the deterministic fallback takes over.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(a *Analyzer) { a.breaker = cb }
}

// New builds an Analyzer using the given model for diagnosis calls.
func New(ai anthropic.Client, st store.Store, costs *cost.Calculator, aiModel string, opts ...Option) *Analyzer {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.OnRetry = resilience.RetryLogger("anthropic", "failure diagnosis")
	a := &Analyzer{
		ai:      ai,
		store:   st,
		costs:   costs,
		model:   aiModel,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker("anthropic", resilience.DefaultCircuitBreakerConfig()),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze diagnoses a failed attempt and appends the outcome to the
// learning log. It never returns an error: when the diagnosis call fails or
// returns unusable JSON, the deterministic fallback built from the
// validation errors is used instead.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*model.Diagnosis, model.TokenUsage) {
	var usage model.TokenUsage

	diag, err := a.diagnose(ctx, req, &usage)
	if a.costs != nil {
		usage.Cost = a.costs.Claude(a.model, false,
			usage.InputTokens, usage.OutputTokens, usage.CacheCreationTokens, usage.CacheReadTokens)
	}
	if err != nil {
		zap.L().Warn("analyzer: diagnosis call failed, using fallback",
			zap.String("proposal_id", req.Proposal.ProposalID),
			zap.Int("attempt", req.Attempt),
			zap.Error(err),
		)
		diag = Fallback(req.Errors)
	}

	a.record(ctx, req, diag)
	return diag, usage
}

// diagnose runs the LLM diagnosis call through the retry budget and circuit
// breaker. Transient provider errors and malformed responses are retried
// before the caller degrades to the fallback.
func (a *Analyzer) diagnose(ctx context.Context, req Request, usage *model.TokenUsage) (*model.Diagnosis, error) {
	past := a.pastLearnings(ctx, req.Proposal.TenantID)
	prompt := buildDiagnosisPrompt(req, past)

	return resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*model.Diagnosis, error) {
		return resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*model.Diagnosis, error) {
			resp, err := a.ai.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     a.model,
				MaxTokens: diagnosisMaxTokens,
				System:    []anthropic.SystemBlock{{Text: diagnosisSystemPrompt}},
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

			diag, err := parseDiagnosis(anthropic.ExtractText(resp))
			if err != nil {
				return nil, resilience.NewMalformedResponse("anthropic", err)
			}
			return diag, nil
		})
	})
}

// Fallback builds the degraded deterministic diagnosis straight from the
// validation errors: offending field paths become missing fields and the
// single recommendation restates the failed checks.
func Fallback(errs []model.ValidationError) *model.Diagnosis {
	fields := model.FieldNames(errs)

	rec := "Regenerate the proposal ensuring every required field is present and correctly formatted."
	if len(fields) > 0 {
		rec = fmt.Sprintf("Regenerate the proposal paying particular attention to: %s.", strings.Join(fields, ", "))
	}

	rootCause := "generation output failed validation"
	if len(errs) > 0 {
		rootCause = fmt.Sprintf("output failed %d validation checks", len(errs))
	}

	return &model.Diagnosis{
		RootCause:       rootCause,
		MissingFields:   fields,
		Recommendations: []string{rec},
		ConfidenceScore: fallbackConfidence,
		Fallback:        true,
	}
}

// record appends the diagnosis to the learning log. A failed write is
// logged and swallowed: the retry loop must keep moving.
func (a *Analyzer) record(ctx context.Context, req Request, diag *model.Diagnosis) {
	entry := model.LearningLogEntry{
		ProposalID:                 req.Proposal.ProposalID,
		TenantID:                   req.Proposal.TenantID,
		AttemptCount:               req.Attempt,
		RootCause:                  diag.RootCause,
		MissingFields:              diag.MissingFields,
		MalformedFields:            diag.MalformedFields,
		Recommendations:            diag.Recommendations,
		SuggestedPromptAdjustments: diag.SuggestedPromptAdjustments,
		ConfidenceScore:            diag.ConfidenceScore,
	}

	if _, err := a.store.AppendLearning(ctx, entry); err != nil {
		zap.L().Warn("analyzer: append learning failed",
			zap.String("proposal_id", req.Proposal.ProposalID),
			zap.Int("attempt", req.Attempt),
			zap.Error(err),
		)
	}
}

// pastLearnings fetches recent diagnoses for the tenant to seed the prompt.
// Lookup failures degrade to an empty seed.
func (a *Analyzer) pastLearnings(ctx context.Context, tenantID string) []model.LearningLogEntry {
	entries, err := a.store.ListLearnings(ctx, store.LearningFilter{
		TenantID: tenantID,
		Limit:    pastLearningLimit,
	})
	if err != nil {
		zap.L().Warn("analyzer: list past learnings failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil
	}
	return entries
}

// parseDiagnosis decodes the LLM diagnosis response. Confidence is clamped
// to [0, 100]; a diagnosis without a root cause is rejected as malformed.
func parseDiagnosis(text string) (*model.Diagnosis, error) {
	text = anthropic.CleanJSON(text)

	var result struct {
		RootCause                  string   `json:"rootCause"`
		MissingFields              []string `json:"missingFields"`
		MalformedFields            []string `json:"malformedFields"`
		Recommendations            []string `json:"recommendations"`
		SuggestedPromptAdjustments []string `json:"suggestedPromptAdjustments"`
		ConfidenceScore            int      `json:"confidenceScore"`
	}

	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, eris.Wrap(err, "analyzer: unmarshal diagnosis")
	}
	if strings.TrimSpace(result.RootCause) == "" {
		return nil, eris.New("analyzer: diagnosis missing root cause")
	}

	score := result.ConfidenceScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &model.Diagnosis{
		RootCause:                  result.RootCause,
		MissingFields:              result.MissingFields,
		MalformedFields:            result.MalformedFields,
		Recommendations:            result.Recommendations,
		SuggestedPromptAdjustments: result.SuggestedPromptAdjustments,
		ConfidenceScore:            score,
	}, nil
}
