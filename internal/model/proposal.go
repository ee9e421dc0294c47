package model

import "time"

// RunStatus represents the current state of a generation run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusExtracting RunStatus = "extracting"
	RunStatusGenerating RunStatus = "generating"
	RunStatusPassed     RunStatus = "passed"
	RunStatusExhausted  RunStatus = "exhausted"
	RunStatusCancelled  RunStatus = "cancelled"
	RunStatusFailed     RunStatus = "failed"
)

// ProposalContext carries everything the pipeline needs to draft one
// proposal: who it is for, the source transcript, and whatever insight has
// already been extracted. It arrives tenant-scoped and validated.
type ProposalContext struct {
	ProposalID  string         `json:"proposal_id"`
	TenantID    string         `json:"tenant_id"`
	ClientName  string         `json:"client_name"`
	CompanyName string         `json:"company_name"`
	Industry    string         `json:"industry,omitempty"`
	Transcript  string         `json:"transcript"`
	Extracted   map[string]any `json:"extracted,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Run represents a single end-to-end generation run for a proposal.
type Run struct {
	ID         string     `json:"id"`
	ProposalID string     `json:"proposal_id"`
	TenantID   string     `json:"tenant_id"`
	Status     RunStatus  `json:"status"`
	Result     *RunResult `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Metrics      *ProposalQualityMetrics `json:"metrics,omitempty"`
	Extraction   *ExtractionSummary      `json:"extraction,omitempty"`
	AttemptCount int                     `json:"attempt_count"`
	Errors       []ValidationError       `json:"errors,omitempty"`
	TotalTokens  int                     `json:"total_tokens"`
	TotalCost    float64                 `json:"total_cost"`
	DurationMs   int64                   `json:"duration_ms"`
	Error        string                  `json:"error,omitempty"`
}

// GenerationResult is what the generator hands back to the caller after the
// retry loop settles. Document holds the assembled proposal keyed by section
// name. Errors is populated only when the run exhausted its attempt budget.
type GenerationResult struct {
	Document  map[string]any         `json:"document"`
	Sections  []SectionQuality       `json:"sections"`
	Metrics   ProposalQualityMetrics `json:"metrics"`
	Attempts  int                    `json:"attempts"`
	Errors    []ValidationError      `json:"errors,omitempty"`
	Usage     TokenUsage             `json:"usage"`
	Exhausted bool                   `json:"exhausted"`
}
