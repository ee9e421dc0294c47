// Package review publishes runs that need human attention to a Notion
// review database: exhausted retry budgets, quality-gate misses, and hard
// run failures.
package review

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/resilience"
	"github.com/sells-group/proposal-cli/pkg/notion"
)

// maxListItems caps each bulleted list on the review page so a pathological
// run cannot produce an unreadable page.
const maxListItems = 10

// Review database property names.
const (
	propName       = "Name"
	propRunID      = "Run ID"
	propProposal   = "Proposal"
	propTenant     = "Tenant"
	propReason     = "Reason"
	propStatus     = "Status"
	propConfidence = "Confidence"
	propCoverage   = "Coverage"
	propAttempts   = "Attempts"
	propCost       = "Cost"
	propFlaggedAt  = "Flagged At"
)

// Reason labels for the review page select property.
const (
	ReasonExhausted   = "Exhausted retries"
	ReasonQualityGate = "Quality gate"
	ReasonRunFailed   = "Run failed"
)

// Publisher pushes review pages into a Notion database. Notion calls run
// through a circuit breaker so a dead Notion integration cannot stall the
// pipeline it reports on.
type Publisher struct {
	notion  notion.Client
	dbID    string
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithBreaker replaces the breaker guarding Notion calls.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(p *Publisher) { p.breaker = cb }
}

// NewPublisher creates a Publisher targeting the given review database.
func NewPublisher(client notion.Client, dbID string, opts ...Option) *Publisher {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("notion", "publish review page")
	p := &Publisher{
		notion:  client,
		dbID:    dbID,
		breaker: resilience.NewCircuitBreaker("notion", resilience.DefaultCircuitBreakerConfig()),
		retry:   retry,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Needed reports whether a run warrants a review page: the retry budget ran
// out, the run failed outright, or the document passed validation without
// clearing the quality gate.
func Needed(run model.Run) bool {
	switch run.Status {
	case model.RunStatusExhausted, model.RunStatusFailed:
		return true
	case model.RunStatusPassed:
		return run.Result != nil && run.Result.Metrics != nil && !run.Result.Metrics.ValidationPassed
	default:
		return false
	}
}

// Reason names why the run needs review.
func Reason(run model.Run) string {
	switch run.Status {
	case model.RunStatusExhausted:
		return ReasonExhausted
	case model.RunStatusFailed:
		return ReasonRunFailed
	default:
		return ReasonQualityGate
	}
}

// Publish creates one review page for the run and returns the page ID.
func (p *Publisher) Publish(ctx context.Context, run model.Run) (string, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(p.dbID),
		},
		Properties: p.properties(run),
		Children:   pageBlocks(run),
	}

	page, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*notionapi.Page, error) {
		return resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (*notionapi.Page, error) {
			return p.notion.CreatePage(ctx, req)
		})
	})
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("review: publish run %s", run.ID))
	}

	zap.L().Info("review: page published",
		zap.String("run_id", run.ID),
		zap.String("proposal_id", run.ProposalID),
		zap.String("reason", Reason(run)),
		zap.String("page_id", string(page.ID)),
	)
	return string(page.ID), nil
}

func (p *Publisher) properties(run model.Run) notionapi.Properties {
	props := notionapi.Properties{
		propName:      notion.TitleProp(fmt.Sprintf("Proposal %s - %s", run.ProposalID, Reason(run))),
		propRunID:     notion.RichTextProp(run.ID),
		propProposal:  notion.RichTextProp(run.ProposalID),
		propTenant:    notion.RichTextProp(run.TenantID),
		propReason:    notion.SelectProp(Reason(run)),
		propStatus:    notion.StatusProp("Needs Review"),
		propFlaggedAt: notion.DateProp(run.UpdatedAt),
	}

	if res := run.Result; res != nil {
		props[propAttempts] = notion.NumberProp(float64(res.AttemptCount))
		props[propCost] = notion.NumberProp(res.TotalCost)
		if res.Metrics != nil {
			props[propConfidence] = notion.NumberProp(res.Metrics.OverallConfidence)
			props[propCoverage] = notion.NumberProp(res.Metrics.CoverageScore)
		}
	}
	return props
}

// pageBlocks renders the page body: what went wrong, in reading order of
// usefulness to a reviewer.
func pageBlocks(run model.Run) []notionapi.Block {
	blocks := []notionapi.Block{
		notion.ParagraphBlock(summaryLine(run)),
	}

	res := run.Result
	if res == nil {
		return blocks
	}

	if len(res.Errors) > 0 {
		blocks = append(blocks, notion.Heading2Block("Validation errors"))
		blocks = append(blocks, bulletList(validationLines(res.Errors))...)
	}

	if res.Metrics != nil && len(res.Metrics.LowConfidenceSections) > 0 {
		blocks = append(blocks, notion.Heading2Block("Low-confidence sections"))
		blocks = append(blocks, bulletList(res.Metrics.LowConfidenceSections)...)
	}

	if res.Metrics != nil && len(res.Metrics.Warnings) > 0 {
		blocks = append(blocks, notion.Heading2Block("Warnings"))
		blocks = append(blocks, bulletList(res.Metrics.Warnings)...)
	}

	if ext := res.Extraction; ext != nil {
		blocks = append(blocks, notion.Heading2Block("Extraction"))
		blocks = append(blocks, notion.ParagraphBlock(fmt.Sprintf(
			"%d passes, coverage %.2f, confidence %.2f, %d of %d gaps resolved.",
			ext.PassCount, ext.CoverageScore, ext.OverallConfidence,
			ext.GapsResolved, ext.GapsIdentified,
		)))
		for _, gap := range ext.RemainingGaps {
			blocks = append(blocks, notion.BulletedItemBlock(fmt.Sprintf("%s: %s", gap.Category, gap.Reason)))
		}
		for _, issue := range ext.ConsistencyIssues {
			blocks = append(blocks, notion.BulletedItemBlock("Consistency: "+issue.Description))
		}
	}

	return blocks
}

func summaryLine(run model.Run) string {
	res := run.Result
	switch run.Status {
	case model.RunStatusFailed:
		line := "The run failed before producing a document."
		if res != nil && res.Error != "" {
			line = "The run failed: " + res.Error
		}
		return line
	case model.RunStatusExhausted:
		if res != nil {
			return fmt.Sprintf("All %d attempts failed validation; the last document is attached to the run record.", res.AttemptCount)
		}
		return "All attempts failed validation."
	default:
		if res != nil && res.Metrics != nil {
			return fmt.Sprintf("Document passed validation but missed the quality gate (confidence %.2f, coverage %.2f).",
				res.Metrics.OverallConfidence, res.Metrics.CoverageScore)
		}
		return "Document passed validation but missed the quality gate."
	}
}

func validationLines(errs []model.ValidationError) []string {
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, e.String())
	}
	return lines
}

// bulletList renders items as bullets, truncating past maxListItems with a
// count of what was omitted.
func bulletList(items []string) []notionapi.Block {
	var blocks []notionapi.Block
	for i, item := range items {
		if i == maxListItems {
			blocks = append(blocks, notion.ParagraphBlock(fmt.Sprintf("and %d more.", len(items)-maxListItems)))
			break
		}
		blocks = append(blocks, notion.BulletedItemBlock(item))
	}
	return blocks
}
