package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/proposal-cli/internal/model"
)

func ratingPtr(r float64) *float64   { return &r }
func magPtr(m float64) *float64      { return &m }
func outcomePtr(o model.Outcome) *model.Outcome { return &o }

func historyWithRatings(ratings ...float64) []model.FeedbackRecord {
	out := make([]model.FeedbackRecord, len(ratings))
	for i, r := range ratings {
		out[i] = model.FeedbackRecord{UserID: "u1", UserRating: ratingPtr(r)}
	}
	return out
}

func TestValidator_CleanFeedback(t *testing.T) {
	v := NewValidator(50)
	in := model.FeedbackInput{
		UserID:     "u1",
		ProposalID: "p1",
		UserRating: ratingPtr(4),
	}

	res := v.Validate(in, nil)

	assert.True(t, res.IsValid)
	assert.Equal(t, 1.0, res.ConfidenceScore)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1.5, res.FeedbackWeight)
}

func TestValidator_HighRatingButHeavyEdits(t *testing.T) {
	v := NewValidator(50)
	in := model.FeedbackInput{
		UserID:        "u1",
		ProposalID:    "p1",
		UserRating:    ratingPtr(5),
		WasEdited:     true,
		EditMagnitude: magPtr(0.7),
	}

	res := v.Validate(in, nil)

	assert.Contains(t, res.Warnings, WarnHighRatingHeavyEdits)
	assert.Equal(t, 0.5, res.ConfidenceScore)
	assert.False(t, res.IsValid, "halved confidence does not clear the 0.5 bar")
	// 1.5 rating x 2.0 edit data x 0.7 heavy-edit discount.
	assert.InDelta(t, 2.1, res.FeedbackWeight, 1e-9)
}

func TestValidator_LowRatingButMinimalEdits(t *testing.T) {
	v := NewValidator(50)
	in := model.FeedbackInput{
		UserID:        "u1",
		ProposalID:    "p1",
		UserRating:    ratingPtr(1),
		WasEdited:     true,
		EditMagnitude: magPtr(0.05),
	}

	res := v.Validate(in, nil)

	assert.Contains(t, res.Warnings, WarnLowRatingMinimalEdits)
	assert.Equal(t, 0.5, res.ConfidenceScore)
}

func TestValidator_OutcomeContradictions(t *testing.T) {
	tests := []struct {
		name    string
		rating  float64
		outcome model.Outcome
		want    string
	}{
		{"won deal low rating", 2, model.OutcomeWon, WarnWonDealLowRating},
		{"lost deal high rating", 5, model.OutcomeLost, WarnLostDealHighRating},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(50)
			in := model.FeedbackInput{
				UserID:     "u1",
				ProposalID: "p1",
				UserRating: ratingPtr(tt.rating),
				Outcome:    outcomePtr(tt.outcome),
			}

			res := v.Validate(in, nil)

			assert.Contains(t, res.Warnings, tt.want)
			assert.Equal(t, 0.5, res.ConfidenceScore)
		})
	}
}

func TestValidator_StackedContradictionsCompound(t *testing.T) {
	v := NewValidator(50)
	// High rating, heavy edits, on a lost deal: two contradictions.
	in := model.FeedbackInput{
		UserID:        "u1",
		ProposalID:    "p1",
		UserRating:    ratingPtr(5),
		WasEdited:     true,
		EditMagnitude: magPtr(0.8),
		Outcome:       outcomePtr(model.OutcomeLost),
	}

	res := v.Validate(in, nil)

	assert.Len(t, res.Warnings, 2)
	assert.InDelta(t, 0.25, res.ConfidenceScore, 1e-9)
	assert.False(t, res.IsValid)
}

func TestValidator_AllIdenticalRatings(t *testing.T) {
	v := NewValidator(50)
	in := model.FeedbackInput{UserID: "u1", ProposalID: "p1"}

	res := v.Validate(in, historyWithRatings(4, 4, 4, 4, 4))

	assert.Contains(t, res.Warnings, WarnAllIdenticalRatings)
	assert.NotContains(t, res.Warnings, WarnLowRatingVariance)
	assert.InDelta(t, 0.7, res.ConfidenceScore, 1e-9)
	assert.True(t, res.IsValid)
}

func TestValidator_LowRatingVariance(t *testing.T) {
	v := NewValidator(50)
	in := model.FeedbackInput{UserID: "u1", ProposalID: "p1"}

	res := v.Validate(in, historyWithRatings(4, 4.1, 4, 4.1, 4))

	assert.Contains(t, res.Warnings, WarnLowRatingVariance)
	assert.InDelta(t, 0.7, res.ConfidenceScore, 1e-9)
}

func TestValidator_ShortHistorySkipsPatternChecks(t *testing.T) {
	v := NewValidator(50)
	in := model.FeedbackInput{UserID: "u1", ProposalID: "p1"}

	// Four identical ratings: below the five-record minimum, so no flag.
	res := v.Validate(in, historyWithRatings(3, 3, 3, 3))

	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1.0, res.ConfidenceScore)
}

func TestValidator_SignificantPatternShift(t *testing.T) {
	v := NewValidator(50)
	in := model.FeedbackInput{UserID: "u1", ProposalID: "p1"}

	// Newest first: five 5s then five 1s; the 4-star swing flags a shift.
	res := v.Validate(in, historyWithRatings(5, 5, 5, 5, 5, 1, 1, 1, 1, 1))

	assert.Contains(t, res.Warnings, WarnPatternShift)
	assert.InDelta(t, 0.8, res.ConfidenceScore, 1e-9)
}

func TestValidator_RatingOutlier(t *testing.T) {
	v := NewValidator(50)
	in := model.FeedbackInput{
		UserID:     "u1",
		ProposalID: "p1",
		UserRating: ratingPtr(5),
	}

	res := v.Validate(in, historyWithRatings(3, 3.5, 2.5, 3, 4, 2))

	assert.Contains(t, res.Warnings, WarnRatingOutlier)
	assert.InDelta(t, 0.85, res.ConfidenceScore, 1e-9)
	assert.True(t, res.IsValid)
}

func TestValidator_HistoryLimitApplied(t *testing.T) {
	// Limit 5: only the newest five identical ratings count, so the
	// varied older ones cannot mask the low-effort pattern.
	v := NewValidator(5)
	in := model.FeedbackInput{UserID: "u1", ProposalID: "p1"}
	history := historyWithRatings(4, 4, 4, 4, 4, 1, 5, 2, 3.5, 4.8)

	res := v.Validate(in, history)

	assert.Contains(t, res.Warnings, WarnAllIdenticalRatings)
}

func TestValidator_WeightMultipliers(t *testing.T) {
	now := time.Now()
	early := now.Add(10 * 24 * time.Hour)
	late := now.Add(60 * 24 * time.Hour)

	tests := []struct {
		name string
		in   model.FeedbackInput
		want float64
	}{
		{"bare edit flag only", model.FeedbackInput{WasEdited: true}, 1.0},
		{"rating only", model.FeedbackInput{UserRating: ratingPtr(3)}, 1.5},
		{"outcome only", model.FeedbackInput{Outcome: outcomePtr(model.OutcomeWon)}, 3.0},
		{"edit data", model.FeedbackInput{WasEdited: true, EditMagnitude: magPtr(0.2)}, 2.0},
		{"heavy edit data", model.FeedbackInput{WasEdited: true, EditMagnitude: magPtr(0.8)}, 1.4},
		{
			"fresh outcome",
			model.FeedbackInput{
				Outcome:    outcomePtr(model.OutcomeWon),
				OutcomeAt:  &early,
				ProposalAt: now,
			},
			3.6,
		},
		{
			"stale outcome",
			model.FeedbackInput{
				Outcome:    outcomePtr(model.OutcomeWon),
				OutcomeAt:  &late,
				ProposalAt: now,
			},
			3.0,
		},
		{
			"everything caps at five",
			model.FeedbackInput{
				UserRating:    ratingPtr(5),
				WasEdited:     true,
				EditMagnitude: magPtr(0.2),
				Outcome:       outcomePtr(model.OutcomeWon),
				OutcomeAt:     &early,
				ProposalAt:    now,
			},
			5.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(50)
			tt.in.UserID = "u1"
			tt.in.ProposalID = "p1"

			res := v.Validate(tt.in, nil)

			assert.InDelta(t, tt.want, res.FeedbackWeight, 1e-9)
		})
	}
}

func TestValidator_OutcomeNeverLowersWeight(t *testing.T) {
	v := NewValidator(50)
	base := model.FeedbackInput{
		UserID:        "u1",
		ProposalID:    "p1",
		UserRating:    ratingPtr(4),
		WasEdited:     true,
		EditMagnitude: magPtr(0.3),
	}
	withOutcome := base
	withOutcome.Outcome = outcomePtr(model.OutcomeWon)

	without := v.Validate(base, nil)
	with := v.Validate(withOutcome, nil)

	assert.GreaterOrEqual(t, with.FeedbackWeight, without.FeedbackWeight)
	assert.LessOrEqual(t, with.FeedbackWeight, 5.0)
}

func TestValidator_WeightNeverExceedsCap(t *testing.T) {
	v := NewValidator(50)
	now := time.Now()
	at := now.Add(24 * time.Hour)
	in := model.FeedbackInput{
		UserID:        "u1",
		ProposalID:    "p1",
		UserRating:    ratingPtr(5),
		WasEdited:     true,
		EditMagnitude: magPtr(0.1),
		Outcome:       outcomePtr(model.OutcomeWon),
		OutcomeAt:     &at,
		ProposalAt:    now,
	}

	res := v.Validate(in, nil)

	require.LessOrEqual(t, res.FeedbackWeight, 5.0)
	assert.Equal(t, 5.0, res.FeedbackWeight)
}

func TestRecord_CarriesValidation(t *testing.T) {
	v := NewValidator(50)
	in := model.FeedbackInput{
		UserID:        "u1",
		TenantID:      "t1",
		ProposalID:    "p1",
		UserRating:    ratingPtr(5),
		WasEdited:     true,
		EditMagnitude: magPtr(0.7),
	}

	rec := in.Record(v.Validate(in, nil))

	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, 0.5, rec.ValidationScore)
	assert.Contains(t, rec.Warnings, WarnHighRatingHeavyEdits)
	assert.InDelta(t, 2.1, rec.FeedbackWeight, 1e-9)
}
