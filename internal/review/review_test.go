package review

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/resilience"
	"github.com/sells-group/proposal-cli/pkg/notion/mocks"
)

func exhaustedRun() model.Run {
	return model.Run{
		ID:         "run-42",
		ProposalID: "prop-7",
		TenantID:   "tenant-a",
		Status:     model.RunStatusExhausted,
		UpdatedAt:  time.Date(2025, 11, 4, 15, 30, 0, 0, time.UTC),
		Result: &model.RunResult{
			Metrics: &model.ProposalQualityMetrics{
				OverallConfidence:     0.72,
				CoverageScore:         0.5,
				LowConfidenceSections: []string{"pricing"},
				ValidationPassed:      false,
			},
			AttemptCount: 3,
			Errors: []model.ValidationError{
				{Field: "pricing.total", Issue: "required numeric field is missing", ExpectedFormat: "number"},
			},
			TotalCost: 1.25,
			Extraction: &model.ExtractionSummary{
				PassCount:         2,
				GapsIdentified:    3,
				GapsResolved:      2,
				RemainingGaps:     []model.Gap{{Category: model.CategoryBudget, Reason: "no items extracted", Pass: 1}},
				OverallConfidence: 0.61,
				CoverageScore:     0.86,
			},
		},
	}
}

func TestNeeded(t *testing.T) {
	passedMetrics := &model.RunResult{Metrics: &model.ProposalQualityMetrics{ValidationPassed: true}}
	gateMiss := &model.RunResult{Metrics: &model.ProposalQualityMetrics{ValidationPassed: false}}

	cases := []struct {
		name string
		run  model.Run
		want bool
	}{
		{"exhausted", model.Run{Status: model.RunStatusExhausted}, true},
		{"failed", model.Run{Status: model.RunStatusFailed}, true},
		{"passed and gate cleared", model.Run{Status: model.RunStatusPassed, Result: passedMetrics}, false},
		{"passed but gate missed", model.Run{Status: model.RunStatusPassed, Result: gateMiss}, true},
		{"passed without result", model.Run{Status: model.RunStatusPassed}, false},
		{"still generating", model.Run{Status: model.RunStatusGenerating}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Needed(tc.run))
		})
	}
}

func TestReason(t *testing.T) {
	assert.Equal(t, ReasonExhausted, Reason(model.Run{Status: model.RunStatusExhausted}))
	assert.Equal(t, ReasonRunFailed, Reason(model.Run{Status: model.RunStatusFailed}))
	assert.Equal(t, ReasonQualityGate, Reason(model.Run{Status: model.RunStatusPassed}))
}

func TestPublish_ExhaustedRun(t *testing.T) {
	client := mocks.NewMockClient(t)

	client.On("CreatePage", mock.Anything, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		return req.Parent.DatabaseID == "db-review" &&
			req.Properties[propReason].(notionapi.SelectProperty).Select.Name == ReasonExhausted &&
			req.Properties[propRunID].(notionapi.RichTextProperty).RichText[0].Text.Content == "run-42"
	})).Return(&notionapi.Page{ID: "page-123"}, nil).Once()

	p := NewPublisher(client, "db-review")
	pageID, err := p.Publish(context.Background(), exhaustedRun())

	require.NoError(t, err)
	assert.Equal(t, "page-123", pageID)
}

func TestPublish_CreateError(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreatePage", mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()

	p := NewPublisher(client, "db-review")
	_, err := p.Publish(context.Background(), exhaustedRun())

	require.Error(t, err)
	assert.ErrorContains(t, err, "review: publish run run-42")
}

func TestPublish_CircuitOpenSkipsCall(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreatePage", mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()

	p := NewPublisher(client, "db-review")
	p.breaker = resilience.NewCircuitBreaker("notion", resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})

	_, err := p.Publish(context.Background(), exhaustedRun())
	require.Error(t, err)

	// The circuit is open now: no further Notion calls are attempted.
	_, err = p.Publish(context.Background(), exhaustedRun())
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestProperties(t *testing.T) {
	p := NewPublisher(mocks.NewMockClient(t), "db-review")
	props := p.properties(exhaustedRun())

	title := props[propName].(notionapi.TitleProperty).Title[0].Text.Content
	assert.Equal(t, "Proposal prop-7 - Exhausted retries", title)
	assert.Equal(t, 3.0, props[propAttempts].(notionapi.NumberProperty).Number)
	assert.Equal(t, 1.25, props[propCost].(notionapi.NumberProperty).Number)
	assert.Equal(t, 0.72, props[propConfidence].(notionapi.NumberProperty).Number)
	assert.Equal(t, "Needs Review", props[propStatus].(notionapi.StatusProperty).Status.Name)
}

func TestPageBlocks(t *testing.T) {
	blocks := pageBlocks(exhaustedRun())

	// Summary, validation heading + bullet, low-confidence heading + bullet,
	// extraction heading + paragraph + gap bullet.
	require.GreaterOrEqual(t, len(blocks), 8)

	summary, ok := blocks[0].(notionapi.ParagraphBlock)
	require.True(t, ok)
	assert.Contains(t, summary.Paragraph.RichText[0].Text.Content, "All 3 attempts failed validation")

	var bulletTexts []string
	for _, b := range blocks {
		if item, ok := b.(notionapi.BulletedListItemBlock); ok {
			bulletTexts = append(bulletTexts, item.BulletedListItem.RichText[0].Text.Content)
		}
	}
	assert.Contains(t, bulletTexts, "pricing.total: required numeric field is missing (expected number)")
	assert.Contains(t, bulletTexts, "pricing")
	assert.Contains(t, bulletTexts, "budget: no items extracted")
}

func TestPageBlocks_NoResult(t *testing.T) {
	blocks := pageBlocks(model.Run{Status: model.RunStatusFailed})
	require.Len(t, blocks, 1)

	summary := blocks[0].(notionapi.ParagraphBlock)
	assert.Contains(t, summary.Paragraph.RichText[0].Text.Content, "failed before producing a document")
}

func TestBulletList_Caps(t *testing.T) {
	items := make([]string, maxListItems+5)
	for i := range items {
		items[i] = "item"
	}

	blocks := bulletList(items)
	require.Len(t, blocks, maxListItems+1)

	tail, ok := blocks[maxListItems].(notionapi.ParagraphBlock)
	require.True(t, ok)
	assert.Equal(t, "and 5 more.", tail.Paragraph.RichText[0].Text.Content)
}
