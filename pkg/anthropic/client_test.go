package anthropic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient is a hand-rolled testify mock for Client. In-package tests
// cannot use pkg/anthropic/mocks without an import cycle, so the batch and
// cache suites share this one.
type MockClient struct {
	mock.Mock
}

// mocked unpacks a testify return pair, tolerating a nil value slot.
func mocked[T any](args mock.Arguments) (T, error) {
	v, _ := args.Get(0).(T)
	return v, args.Error(1)
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	return mocked[*MessageResponse](m.Called(ctx, req))
}

func (m *MockClient) CreateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	return mocked[*BatchResponse](m.Called(ctx, req))
}

func (m *MockClient) GetBatch(ctx context.Context, batchID string) (*BatchResponse, error) {
	return mocked[*BatchResponse](m.Called(ctx, batchID))
}

func (m *MockClient) GetBatchResults(ctx context.Context, batchID string) (BatchResultIterator, error) {
	return mocked[BatchResultIterator](m.Called(ctx, batchID))
}

// MockBatchResultIterator replays canned batch results.
type MockBatchResultIterator struct {
	queue   []BatchResultItem
	current BatchResultItem
	err     error
}

var (
	_ Client              = (*MockClient)(nil)
	_ BatchResultIterator = (*MockBatchResultIterator)(nil)
)

// NewMockBatchResultIterator creates an iterator over the given items.
func NewMockBatchResultIterator(items []BatchResultItem) *MockBatchResultIterator {
	return &MockBatchResultIterator{queue: items}
}

// NewMockBatchResultIteratorWithError yields every item, then reports err,
// mimicking a result stream that drops mid-read.
func NewMockBatchResultIteratorWithError(items []BatchResultItem, err error) *MockBatchResultIterator {
	return &MockBatchResultIterator{queue: items, err: err}
}

func (m *MockBatchResultIterator) Next() bool {
	if len(m.queue) == 0 {
		return false
	}
	m.current, m.queue = m.queue[0], m.queue[1:]
	return true
}

func (m *MockBatchResultIterator) Item() BatchResultItem { return m.current }

func (m *MockBatchResultIterator) Err() error {
	if len(m.queue) > 0 {
		return nil
	}
	return m.err
}

func (m *MockBatchResultIterator) Close() error { return nil }

func TestMockClient_ReturnsCannedResponse(t *testing.T) {
	ctx := context.Background()
	mc := new(MockClient)

	req := MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 2048,
		Messages:  []Message{{Role: "user", Content: "Draft the pricing section."}},
	}
	mc.On("CreateMessage", ctx, req).Return(&MessageResponse{
		ID:         "msg_pricing",
		Model:      "claude-sonnet-4-5-20250929",
		Content:    []ContentBlock{{Type: "text", Text: "## Pricing\n\nFixed monthly fee."}},
		StopReason: "end_turn",
		Usage:      TokenUsage{InputTokens: 412, OutputTokens: 96},
	}, nil)

	resp, err := mc.CreateMessage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "msg_pricing", resp.ID)
	assert.Contains(t, resp.Content[0].Text, "## Pricing")
	assert.Equal(t, int64(96), resp.Usage.OutputTokens)

	mc.AssertExpectations(t)
}

func TestMockClient_NilValuePassesErrorThrough(t *testing.T) {
	ctx := context.Background()
	mc := new(MockClient)
	mc.On("CreateMessage", ctx, mock.Anything).Return(nil, assert.AnError)
	mc.On("GetBatchResults", ctx, "batch_gone").Return(nil, assert.AnError)

	resp, err := mc.CreateMessage(ctx, MessageRequest{Model: "claude-haiku-4-5-20251001"})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, assert.AnError)

	iter, err := mc.GetBatchResults(ctx, "batch_gone")
	assert.Nil(t, iter)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMockClient_BatchLifecycle(t *testing.T) {
	ctx := context.Background()
	mc := new(MockClient)

	submit := BatchRequest{Requests: []BatchRequestItem{
		{CustomID: "prop-acme-q3_chunk_0", Params: MessageRequest{Model: "claude-haiku-4-5-20251001", MaxTokens: 1024}},
		{CustomID: "prop-acme-q3_chunk_1", Params: MessageRequest{Model: "claude-haiku-4-5-20251001", MaxTokens: 1024}},
	}}
	mc.On("CreateBatch", ctx, submit).Return(&BatchResponse{
		ID:               "batch_screen_12",
		ProcessingStatus: BatchStatusInProgress,
		RequestCounts:    RequestCounts{Processing: 2},
	}, nil)
	mc.On("GetBatch", ctx, "batch_screen_12").Return(&BatchResponse{
		ID:               "batch_screen_12",
		ProcessingStatus: BatchStatusEnded,
		RequestCounts:    RequestCounts{Succeeded: 2},
	}, nil)
	mc.On("GetBatchResults", ctx, "batch_screen_12").Return(NewMockBatchResultIterator([]BatchResultItem{
		{CustomID: "prop-acme-q3_chunk_0", Type: BatchResultSucceeded, Message: &MessageResponse{ID: "msg_c0"}},
		{CustomID: "prop-acme-q3_chunk_1", Type: BatchResultSucceeded, Message: &MessageResponse{ID: "msg_c1"}},
	}), nil)

	created, err := mc.CreateBatch(ctx, submit)
	require.NoError(t, err)
	assert.Equal(t, BatchStatusInProgress, created.ProcessingStatus)
	assert.Equal(t, int64(2), created.RequestCounts.Processing)

	polled, err := mc.GetBatch(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchStatusEnded, polled.ProcessingStatus)

	iter, err := mc.GetBatchResults(ctx, created.ID)
	require.NoError(t, err)

	var ids []string
	for iter.Next() {
		ids = append(ids, iter.Item().CustomID)
	}
	require.NoError(t, iter.Err())
	assert.Equal(t, []string{"prop-acme-q3_chunk_0", "prop-acme-q3_chunk_1"}, ids)

	mc.AssertExpectations(t)
}

func TestWithMaxRPS(t *testing.T) {
	cases := []struct {
		name    string
		rps     float64
		limited bool
	}{
		{"positive rate installs a limiter", 5, true},
		{"zero disables limiting", 0, false},
		{"negative disables limiting", -1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &sdkClient{}
			WithMaxRPS(tc.rps)(c)
			if tc.limited {
				assert.NotNil(t, c.limiter)
			} else {
				assert.Nil(t, c.limiter)
			}
		})
	}
}

func TestWithTimeout(t *testing.T) {
	cases := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"positive duration is installed", 90 * time.Second, 90 * time.Second},
		{"zero keeps the SDK default", 0, 0},
		{"negative keeps the SDK default", -time.Second, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &sdkClient{}
			WithTimeout(tc.timeout)(c)
			assert.Equal(t, tc.want, c.timeout)
		})
	}
}

func TestWait_WithoutLimiter(t *testing.T) {
	c := &sdkClient{}
	assert.NoError(t, c.wait(context.Background()))
}

func TestWait_StopsOnCancelledContext(t *testing.T) {
	c := &sdkClient{}
	WithMaxRPS(0.001)(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Burn the token the limiter starts with so the next wait has to block.
	require.NoError(t, c.limiter.Wait(context.Background()))
	assert.Error(t, c.wait(ctx))
}
