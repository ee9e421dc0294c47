package store

import (
	"context"
	"time"

	"github.com/sells-group/proposal-cli/internal/model"
)

// RunFilter specifies criteria for listing generation runs.
type RunFilter struct {
	TenantID string          `json:"tenant_id,omitempty"`
	Status   model.RunStatus `json:"status,omitempty"`
	Since    time.Time       `json:"since,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// LearningFilter specifies criteria for listing learning-log entries.
type LearningFilter struct {
	ProposalID string `json:"proposal_id,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// FeedbackFilter specifies criteria for listing feedback records.
type FeedbackFilter struct {
	UserID   string    `json:"user_id,omitempty"`
	TenantID string    `json:"tenant_id,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}

// Store defines the persistence interface for the proposal pipeline: run
// tracking, the append-only learning log, and trust-annotated feedback.
type Store interface {
	// Runs. A run's result is written once, when the run settles; attempts
	// in flight never persist partial output.
	CreateRun(ctx context.Context, proposalID, tenantID string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Learning log, append-only.
	AppendLearning(ctx context.Context, entry model.LearningLogEntry) (*model.LearningLogEntry, error)
	ListLearnings(ctx context.Context, filter LearningFilter) ([]model.LearningLogEntry, error)

	// Feedback.
	CreateFeedback(ctx context.Context, rec model.FeedbackRecord) (*model.FeedbackRecord, error)
	ImportFeedback(ctx context.Context, recs []model.FeedbackRecord) (int, error)
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.FeedbackRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
