package model

import "time"

// Outcome is the recorded result of the deal a proposal was drafted for.
type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
)

// FeedbackInput is one human reaction to a generated proposal before
// validation. Optional fields are pointers so "absent" and "zero" stay
// distinguishable.
type FeedbackInput struct {
	UserID        string     `json:"user_id"`
	TenantID      string     `json:"tenant_id"`
	ProposalID    string     `json:"proposal_id"`
	UserRating    *float64   `json:"user_rating,omitempty"`
	WasEdited     bool       `json:"was_edited"`
	EditMagnitude *float64   `json:"edit_magnitude,omitempty"`
	Outcome       *Outcome   `json:"outcome,omitempty"`
	OutcomeAt     *time.Time `json:"outcome_at,omitempty"`
	ProposalAt    time.Time  `json:"proposal_at"`
}

// FeedbackValidation is the validator's verdict on one FeedbackInput.
type FeedbackValidation struct {
	IsValid         bool     `json:"is_valid"`
	ConfidenceScore float64  `json:"confidence_score"`
	Warnings        []string `json:"warnings,omitempty"`
	FeedbackWeight  float64  `json:"feedback_weight"`
}

// FeedbackRecord is the stored form: the input plus the validator's
// annotations. Immutable after creation; a low-confidence record is still
// kept, just down-weighted wherever feedback informs future behavior.
type FeedbackRecord struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	TenantID        string     `json:"tenant_id"`
	ProposalID      string     `json:"proposal_id"`
	UserRating      *float64   `json:"user_rating,omitempty"`
	WasEdited       bool       `json:"was_edited"`
	EditMagnitude   *float64   `json:"edit_magnitude,omitempty"`
	Outcome         *Outcome   `json:"outcome,omitempty"`
	OutcomeAt       *time.Time `json:"outcome_at,omitempty"`
	ProposalAt      time.Time  `json:"proposal_at"`
	ValidationScore float64    `json:"validation_score"`
	Warnings        []string   `json:"warnings,omitempty"`
	FeedbackWeight  float64    `json:"feedback_weight"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Record combines an input with its validation into the stored form.
// The caller assigns ID and CreatedAt at persistence time.
func (in FeedbackInput) Record(v FeedbackValidation) FeedbackRecord {
	return FeedbackRecord{
		UserID:          in.UserID,
		TenantID:        in.TenantID,
		ProposalID:      in.ProposalID,
		UserRating:      in.UserRating,
		WasEdited:       in.WasEdited,
		EditMagnitude:   in.EditMagnitude,
		Outcome:         in.Outcome,
		OutcomeAt:       in.OutcomeAt,
		ProposalAt:      in.ProposalAt,
		ValidationScore: v.ConfidenceScore,
		Warnings:        v.Warnings,
		FeedbackWeight:  v.FeedbackWeight,
	}
}
