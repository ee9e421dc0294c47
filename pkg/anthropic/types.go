// Package anthropic wraps the official SDK behind a narrow interface: live
// messages plus the Message Batches API, with poll and collect helpers for
// batch consumers. Request and response types are defined here so the rest
// of the codebase never touches SDK types directly.
package anthropic

import "context"

// Client defines the Anthropic API operations used by the pipeline.
type Client interface {
	// CreateMessage runs one live message call.
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
	// CreateBatch submits a Message Batches job.
	CreateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error)
	// GetBatch fetches the current processing state of a batch.
	GetBatch(ctx context.Context, batchID string) (*BatchResponse, error)
	// GetBatchResults streams the per-item results of an ended batch.
	GetBatchResults(ctx context.Context, batchID string) (BatchResultIterator, error)
}

// BatchResultIterator streams individual results from a completed batch.
type BatchResultIterator interface {
	Next() bool
	Item() BatchResultItem
	Err() error
	Close() error
}

// MessageRequest describes one message call.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64
}

// SystemBlock is one system prompt block, optionally cached.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl opts a block into prompt caching.
type CacheControl struct {
	TTL string // "5m" or "1h"
}

// Message is a single conversational turn.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// MessageResponse is what one message call returned.
type MessageResponse struct {
	ID           string
	Model        string
	Content      []ContentBlock
	StopReason   string
	Usage        TokenUsage
	StopSequence string
}

// ContentBlock is one block of response content.
type ContentBlock struct {
	Type string
	Text string
}

// TokenUsage reports what one call consumed, by token class. Turning tokens
// into dollars is internal/cost's job.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// Batch processing statuses as reported by the API.
const (
	BatchStatusInProgress = "in_progress"
	BatchStatusCanceling  = "canceling"
	BatchStatusCanceled   = "canceled"
	BatchStatusEnded      = "ended"
	BatchStatusExpired    = "expired"
)

// Per-item batch result types.
const (
	BatchResultSucceeded = "succeeded"
	BatchResultErrored   = "errored"
	BatchResultCanceled  = "canceled"
	BatchResultExpired   = "expired"
)

// BatchRequest submits a set of message calls as one batch.
type BatchRequest struct {
	Requests []BatchRequestItem
}

// BatchRequestItem is one message call within a batch. CustomID is the
// caller's key for matching the result back to its request.
type BatchRequestItem struct {
	CustomID string
	Params   MessageRequest
}

// BatchResponse is the processing state of a batch.
type BatchResponse struct {
	ID               string
	ProcessingStatus string
	ResultsURL       string
	RequestCounts    RequestCounts
}

// RequestCounts tallies a batch's items by status.
type RequestCounts struct {
	Processing int64
	Succeeded  int64
	Errored    int64
	Canceled   int64
	Expired    int64
}

// BatchResultItem is one item's outcome. Message is set only for succeeded
// items.
type BatchResultItem struct {
	CustomID string
	Type     string
	Message  *MessageResponse
}
