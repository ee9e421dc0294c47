package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFeedbackInput_Record(t *testing.T) {
	t.Parallel()

	rating := 4.0
	magnitude := 0.2
	outcome := OutcomeWon
	outcomeAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	in := FeedbackInput{
		UserID:        "user-1",
		TenantID:      "tenant-1",
		ProposalID:    "prop-1",
		UserRating:    &rating,
		WasEdited:     true,
		EditMagnitude: &magnitude,
		Outcome:       &outcome,
		OutcomeAt:     &outcomeAt,
		ProposalAt:    time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC),
	}
	v := FeedbackValidation{
		IsValid:         true,
		ConfidenceScore: 0.85,
		Warnings:        []string{"rating_outlier"},
		FeedbackWeight:  4.2,
	}

	rec := in.Record(v)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "prop-1", rec.ProposalID)
	assert.Equal(t, &rating, rec.UserRating)
	assert.InDelta(t, 0.85, rec.ValidationScore, 0.0001)
	assert.Equal(t, []string{"rating_outlier"}, rec.Warnings)
	assert.InDelta(t, 4.2, rec.FeedbackWeight, 0.0001)
	assert.Empty(t, rec.ID)
	assert.True(t, rec.CreatedAt.IsZero())
}
