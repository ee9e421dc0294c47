package model

import "time"

// Diagnosis is the failure-analysis result for one failed attempt, either
// LLM-produced or assembled by the deterministic fallback. ConfidenceScore
// is the diagnoser's confidence in its own analysis, 0-100.
type Diagnosis struct {
	RootCause                  string   `json:"root_cause"`
	MissingFields              []string `json:"missing_fields,omitempty"`
	MalformedFields            []string `json:"malformed_fields,omitempty"`
	Recommendations            []string `json:"recommendations,omitempty"`
	SuggestedPromptAdjustments []string `json:"suggested_prompt_adjustments,omitempty"`
	ConfidenceScore            int      `json:"confidence_score"`
	Fallback                   bool     `json:"fallback,omitempty"`
}

// LearningLogEntry is the append-only audit record of one analyzed failure.
// AttemptCount is strictly increasing per proposal.
type LearningLogEntry struct {
	ID                         string    `json:"id"`
	ProposalID                 string    `json:"proposal_id"`
	TenantID                   string    `json:"tenant_id"`
	AttemptCount               int       `json:"attempt_count"`
	RootCause                  string    `json:"root_cause"`
	MissingFields              []string  `json:"missing_fields,omitempty"`
	MalformedFields            []string  `json:"malformed_fields,omitempty"`
	Recommendations            []string  `json:"recommendations,omitempty"`
	SuggestedPromptAdjustments []string  `json:"suggested_prompt_adjustments,omitempty"`
	ConfidenceScore            int       `json:"confidence_score"`
	CreatedAt                  time.Time `json:"created_at"`
}
