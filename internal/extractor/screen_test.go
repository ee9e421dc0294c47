package extractor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/proposal-cli/internal/config"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/pkg/anthropic"
	"github.com/sells-group/proposal-cli/pkg/anthropic/mocks"
)

// sliceResultIter feeds canned batch results to CollectBatchResultsDetailed.
type sliceResultIter struct {
	items []anthropic.BatchResultItem
	idx   int
	err   error
}

func (it *sliceResultIter) Next() bool {
	if it.idx < len(it.items) {
		it.idx++
		return true
	}
	return false
}

func (it *sliceResultIter) Item() anthropic.BatchResultItem { return it.items[it.idx-1] }
func (it *sliceResultIter) Err() error                      { return it.err }
func (it *sliceResultIter) Close() error                    { return nil }

func screenContexts() []model.ProposalContext {
	first := testContext()
	second := testContext()
	second.ProposalID = "prop-2"
	second.CompanyName = "Borealis Logistics"
	second.Transcript = "Client: we want faster dispatch. That is all I can say today."
	return []model.ProposalContext{first, second}
}

func endedBatch(mc *mocks.MockClient, batchID string, items []anthropic.BatchResultItem) {
	mc.On("GetBatch", mock.Anything, batchID).
		Return(&anthropic.BatchResponse{ID: batchID, ProcessingStatus: "ended"}, nil)
	mc.On("GetBatchResults", mock.Anything, batchID).
		Return(&sliceResultIter{items: items}, nil)
}

func TestScreen_ScoresBacklog(t *testing.T) {
	ctx := context.Background()
	mc := mocks.NewMockClient(t)

	sparse := fullCoverage()
	sparse["budget"] = cat(0.2)
	sparse["timeline"] = cat(0.3, "sometime next year")

	mc.On("CreateBatch", mock.Anything, mock.MatchedBy(func(req anthropic.BatchRequest) bool {
		return len(req.Requests) == 2 &&
			req.Requests[0].CustomID == "prop-1" &&
			req.Requests[1].CustomID == "prop-2"
	})).Return(&anthropic.BatchResponse{ID: "batch_scr", ProcessingStatus: "in_progress"}, nil).Once()
	endedBatch(mc, "batch_scr", []anthropic.BatchResultItem{
		{CustomID: "prop-1", Type: "succeeded", Message: responseJSON(t, fullCoverage())},
		{CustomID: "prop-2", Type: "succeeded", Message: responseJSON(t, sparse)},
	})

	e := newTestExtractor(mc, config.ExtractionConfig{})
	report, err := e.Screen(ctx, screenContexts(), anthropic.WithPollInterval(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, []string{"batch_scr"}, report.BatchIDs)
	assert.Empty(t, report.Failures)
	require.Len(t, report.Results, 2)

	rich := report.Results[0]
	assert.Equal(t, "prop-1", rich.ProposalID)
	assert.Equal(t, 1.0, rich.Coverage)
	assert.InDelta(t, 0.786, rich.Confidence, 0.01)
	assert.Empty(t, rich.Gaps)
	// Sonnet at batch rates: half the live-call price.
	assert.InDelta(t, 0.003, rich.Usage.Cost, 0.0001)

	thin := report.Results[1]
	assert.Equal(t, "prop-2", thin.ProposalID)
	assert.InDelta(t, 5.0/7.0, thin.Coverage, 0.001)
	require.Len(t, thin.Gaps, 2)
	assert.Equal(t, model.CategoryBudget, thin.Gaps[0].Category)
	assert.Equal(t, "no items extracted", thin.Gaps[0].Reason)
	assert.Equal(t, model.CategoryTimeline, thin.Gaps[1].Category)

	assert.Equal(t, 2000, report.Usage.InputTokens)
	assert.InDelta(t, 0.006, report.Usage.Cost, 0.0001)
}

func TestScreen_EmptyTranscriptBecomesFailure(t *testing.T) {
	ctx := context.Background()
	mc := mocks.NewMockClient(t)

	pctxs := screenContexts()
	pctxs[1].Transcript = "   \n"

	mc.On("CreateBatch", mock.Anything, mock.MatchedBy(func(req anthropic.BatchRequest) bool {
		return len(req.Requests) == 1 && req.Requests[0].CustomID == "prop-1"
	})).Return(&anthropic.BatchResponse{ID: "batch_one", ProcessingStatus: "in_progress"}, nil).Once()
	endedBatch(mc, "batch_one", []anthropic.BatchResultItem{
		{CustomID: "prop-1", Type: "succeeded", Message: responseJSON(t, fullCoverage())},
	})

	e := newTestExtractor(mc, config.ExtractionConfig{})
	report, err := e.Screen(ctx, pctxs, anthropic.WithPollInterval(time.Millisecond))

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "prop-2", report.Failures[0].ProposalID)
	assert.Equal(t, "empty transcript", report.Failures[0].Reason)
}

func TestScreen_NothingToScreen(t *testing.T) {
	mc := mocks.NewMockClient(t)
	e := newTestExtractor(mc, config.ExtractionConfig{})

	pctxs := screenContexts()
	pctxs[0].Transcript = ""
	pctxs[1].Transcript = "\t"

	_, err := e.Screen(context.Background(), pctxs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transcripts to screen")
}

func TestScreen_DuplicateProposalID(t *testing.T) {
	mc := mocks.NewMockClient(t)
	e := newTestExtractor(mc, config.ExtractionConfig{})

	pctxs := screenContexts()
	pctxs[1].ProposalID = "prop-1"

	_, err := e.Screen(context.Background(), pctxs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate proposal ID")
}

func TestScreen_MissingProposalID(t *testing.T) {
	mc := mocks.NewMockClient(t)
	e := newTestExtractor(mc, config.ExtractionConfig{})

	pctxs := screenContexts()
	pctxs[0].ProposalID = ""

	_, err := e.Screen(context.Background(), pctxs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing proposal ID")
}

func TestScreen_BatchItemFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	mc := mocks.NewMockClient(t)

	mc.On("CreateBatch", mock.Anything, mock.AnythingOfType("anthropic.BatchRequest")).
		Return(&anthropic.BatchResponse{ID: "batch_mix", ProcessingStatus: "in_progress"}, nil).Once()
	endedBatch(mc, "batch_mix", []anthropic.BatchResultItem{
		{CustomID: "prop-1", Type: "succeeded", Message: responseJSON(t, fullCoverage())},
		{CustomID: "prop-2", Type: "errored"},
	})

	e := newTestExtractor(mc, config.ExtractionConfig{})
	report, err := e.Screen(ctx, screenContexts(), anthropic.WithPollInterval(time.Millisecond))

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "prop-1", report.Results[0].ProposalID)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "prop-2", report.Failures[0].ProposalID)
	assert.Equal(t, "batch item errored", report.Failures[0].Reason)
}

func TestScreen_UnparseableAnswerIsRecorded(t *testing.T) {
	ctx := context.Background()
	mc := mocks.NewMockClient(t)

	mc.On("CreateBatch", mock.Anything, mock.AnythingOfType("anthropic.BatchRequest")).
		Return(&anthropic.BatchResponse{ID: "batch_bad", ProcessingStatus: "in_progress"}, nil).Once()
	endedBatch(mc, "batch_bad", []anthropic.BatchResultItem{
		{CustomID: "prop-1", Type: "succeeded", Message: &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Text: "no structured answer here"}},
		}},
		{CustomID: "prop-2", Type: "succeeded", Message: responseJSON(t, fullCoverage())},
	})

	e := newTestExtractor(mc, config.ExtractionConfig{})
	report, err := e.Screen(ctx, screenContexts(), anthropic.WithPollInterval(time.Millisecond))

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "prop-2", report.Results[0].ProposalID)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "prop-1", report.Failures[0].ProposalID)
	assert.Contains(t, report.Failures[0].Reason, "unparseable response")
}

func TestScreen_SubmitError(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("CreateBatch", mock.Anything, mock.AnythingOfType("anthropic.BatchRequest")).
		Return(nil, assert.AnError).Once()

	e := newTestExtractor(mc, config.ExtractionConfig{})
	_, err := e.Screen(context.Background(), screenContexts())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit screen batch")
}

func TestScreen_BatchExpires(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("CreateBatch", mock.Anything, mock.AnythingOfType("anthropic.BatchRequest")).
		Return(&anthropic.BatchResponse{ID: "batch_exp", ProcessingStatus: "in_progress"}, nil).Once()
	mc.On("GetBatch", mock.Anything, "batch_exp").
		Return(&anthropic.BatchResponse{ID: "batch_exp", ProcessingStatus: "expired"}, nil)

	e := newTestExtractor(mc, config.ExtractionConfig{})
	_, err := e.Screen(context.Background(), screenContexts(), anthropic.WithPollInterval(time.Millisecond))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestScreen_SmallBacklogUsesLiveCalls(t *testing.T) {
	ctx := context.Background()
	mc := mocks.NewMockClient(t)

	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, "Acme Manufacturing")
	})).Return(responseJSON(t, fullCoverage()), nil).Once()
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, "Borealis Logistics")
	})).Return(responseJSON(t, fullCoverage()), nil).Once()

	e := newTestExtractor(mc, config.ExtractionConfig{})
	WithBatchPolicy(BatchPolicy{SmallThreshold: 5})(e)

	report, err := e.Screen(ctx, screenContexts())
	require.NoError(t, err)
	assert.Empty(t, report.BatchIDs)
	require.Len(t, report.Results, 2)
	// Live rates, no batch discount.
	assert.InDelta(t, 0.006, report.Results[0].Usage.Cost, 0.0001)
	mc.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestScreen_DisabledBatchingUsesLiveCalls(t *testing.T) {
	ctx := context.Background()
	mc := mocks.NewMockClient(t)

	mc.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(responseJSON(t, fullCoverage()), nil).Twice()

	e := newTestExtractor(mc, config.ExtractionConfig{})
	WithBatchPolicy(BatchPolicy{Disabled: true})(e)

	report, err := e.Screen(ctx, screenContexts())
	require.NoError(t, err)
	assert.Empty(t, report.BatchIDs)
	assert.Len(t, report.Results, 2)
	mc.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestScreen_LiveCallFailureLandsInFailures(t *testing.T) {
	ctx := context.Background()
	mc := mocks.NewMockClient(t)

	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, "Acme Manufacturing")
	})).Return(responseJSON(t, fullCoverage()), nil).Once()
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, "Borealis Logistics")
	})).Return(nil, assert.AnError)

	e := newTestExtractor(mc, config.ExtractionConfig{})
	WithBatchPolicy(BatchPolicy{Disabled: true})(e)

	report, err := e.Screen(ctx, screenContexts())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "prop-1", report.Results[0].ProposalID)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "prop-2", report.Failures[0].ProposalID)
}

func TestScreen_OversizeBacklogIsChunked(t *testing.T) {
	ctx := context.Background()
	mc := mocks.NewMockClient(t)

	mc.On("CreateBatch", mock.Anything, mock.MatchedBy(func(req anthropic.BatchRequest) bool {
		return len(req.Requests) == 1 && req.Requests[0].CustomID == "prop-1"
	})).Return(&anthropic.BatchResponse{ID: "batch_a", ProcessingStatus: "in_progress"}, nil).Once()
	mc.On("CreateBatch", mock.Anything, mock.MatchedBy(func(req anthropic.BatchRequest) bool {
		return len(req.Requests) == 1 && req.Requests[0].CustomID == "prop-2"
	})).Return(&anthropic.BatchResponse{ID: "batch_b", ProcessingStatus: "in_progress"}, nil).Once()
	endedBatch(mc, "batch_a", []anthropic.BatchResultItem{
		{CustomID: "prop-1", Type: "succeeded", Message: responseJSON(t, fullCoverage())},
	})
	endedBatch(mc, "batch_b", []anthropic.BatchResultItem{
		{CustomID: "prop-2", Type: "succeeded", Message: responseJSON(t, fullCoverage())},
	})

	e := newTestExtractor(mc, config.ExtractionConfig{})
	WithBatchPolicy(BatchPolicy{MaxBatchSize: 1})(e)

	report, err := e.Screen(ctx, screenContexts(), anthropic.WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, []string{"batch_a", "batch_b"}, report.BatchIDs)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "prop-1", report.Results[0].ProposalID)
	assert.Equal(t, "prop-2", report.Results[1].ProposalID)
}
