// Package feedback decides how much trust human reactions to generated
// proposals deserve before they are allowed to influence future behavior.
// A validation never blocks storage: every record is kept for audit, but
// contradictory or statistically implausible feedback is flagged and
// down-weighted.
package feedback

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/stats"
)

// Warning labels attached to suspect feedback. Stable strings: they are
// persisted on records and matched by monitoring.
const (
	WarnHighRatingHeavyEdits  = "high_rating_but_heavy_edits"
	WarnLowRatingMinimalEdits = "low_rating_but_minimal_edits"
	WarnWonDealLowRating      = "won_deal_but_low_rating"
	WarnLostDealHighRating    = "lost_deal_but_high_rating"
	WarnLowRatingVariance     = "low_rating_variance"
	WarnAllIdenticalRatings   = "all_identical_ratings"
	WarnPatternShift          = "significant_pattern_shift"
	WarnRatingOutlier         = "rating_outlier"
)

const (
	highRating = 4.0
	lowRating  = 2.0

	heavyEditMagnitude   = 0.5
	minimalEditMagnitude = 0.1

	// Minimum history sizes before a pattern check is statistically
	// meaningful. Below these the check is skipped, not passed.
	varianceMinHistory = 5
	outlierMinHistory  = 5
	shiftMinHistory    = 10

	varianceFloor    = 0.1
	shiftThreshold   = 2.0
	outlierThreshold = 2.0

	contradictionPenalty = 0.5
	variancePenalty      = 0.7
	shiftPenalty         = 0.8
	outlierPenalty       = 0.85

	// Weight multipliers. Deal outcomes are the strongest signal we get.
	outcomeBoost    = 3.0
	ratingBoost     = 1.5
	editDataBoost   = 2.0
	heavyEditDamp   = 0.7
	freshOutcome    = 1.2
	maxWeight       = 5.0
	freshOutcomeAge = 30 * 24 * time.Hour
)

// Validator scores incoming feedback against the submitter's history.
type Validator struct {
	historyLimit int
}

// NewValidator returns a Validator that considers at most historyLimit
// recent records per user (non-positive means the default of 50).
func NewValidator(historyLimit int) *Validator {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Validator{historyLimit: historyLimit}
}

// Validate evaluates one feedback input against the user's recent history
// (newest first) and returns the trust verdict. It is read-only and safe to
// run concurrently with anything.
func (v *Validator) Validate(in model.FeedbackInput, history []model.FeedbackRecord) model.FeedbackValidation {
	if len(history) > v.historyLimit {
		history = history[:v.historyLimit]
	}

	confidence := 1.0
	var warnings []string

	flag := func(warning string, penalty float64) {
		warnings = append(warnings, warning)
		confidence *= penalty
	}

	for _, w := range contradictions(in) {
		flag(w, contradictionPenalty)
	}

	ratings := historicalRatings(history)

	if len(ratings) >= varianceMinHistory {
		if allIdentical(ratings) {
			flag(WarnAllIdenticalRatings, variancePenalty)
		} else if stats.Variance(ratings) < varianceFloor {
			flag(WarnLowRatingVariance, variancePenalty)
		}
	}

	if len(ratings) >= shiftMinHistory {
		recent := stats.Mean(ratings[:5])
		earlier := stats.Mean(ratings[5:])
		if math.Abs(recent-earlier) > shiftThreshold {
			flag(WarnPatternShift, shiftPenalty)
		}
	}

	if in.UserRating != nil && len(ratings) >= outlierMinHistory {
		if z := stats.ZScore(*in.UserRating, ratings); math.Abs(z) > outlierThreshold {
			flag(WarnRatingOutlier, outlierPenalty)
		}
	}

	result := model.FeedbackValidation{
		IsValid:         confidence > 0.5,
		ConfidenceScore: confidence,
		Warnings:        warnings,
		FeedbackWeight:  weight(in),
	}

	if !result.IsValid {
		zap.L().Warn("suspect feedback",
			zap.String("user_id", in.UserID),
			zap.String("proposal_id", in.ProposalID),
			zap.Float64("confidence", confidence),
			zap.Strings("warnings", warnings))
	}
	return result
}

// contradictions returns the internal-consistency flags for a single input:
// signals inside one reaction that disagree with each other.
func contradictions(in model.FeedbackInput) []string {
	var out []string

	if in.UserRating != nil && in.EditMagnitude != nil {
		if *in.UserRating >= highRating && *in.EditMagnitude > heavyEditMagnitude {
			out = append(out, WarnHighRatingHeavyEdits)
		}
		if *in.UserRating <= lowRating && *in.EditMagnitude < minimalEditMagnitude {
			out = append(out, WarnLowRatingMinimalEdits)
		}
	}

	if in.UserRating != nil && in.Outcome != nil {
		if *in.Outcome == model.OutcomeWon && *in.UserRating <= lowRating {
			out = append(out, WarnWonDealLowRating)
		}
		if *in.Outcome == model.OutcomeLost && *in.UserRating >= highRating {
			out = append(out, WarnLostDealHighRating)
		}
	}

	return out
}

// weight computes the trust multiplier applied wherever this feedback feeds
// future behavior. Richer, prompter signals earn more weight; heavy edits
// discount the generation's credit even when not contradictory.
func weight(in model.FeedbackInput) float64 {
	w := 1.0
	if in.Outcome != nil {
		w *= outcomeBoost
	}
	if in.UserRating != nil {
		w *= ratingBoost
	}
	if in.EditMagnitude != nil {
		w *= editDataBoost
		if *in.EditMagnitude > heavyEditMagnitude {
			w *= heavyEditDamp
		}
	}
	if in.Outcome != nil && in.OutcomeAt != nil && !in.ProposalAt.IsZero() &&
		in.OutcomeAt.Sub(in.ProposalAt) <= freshOutcomeAge {
		w *= freshOutcome
	}
	return math.Min(w, maxWeight)
}

// historicalRatings extracts the numeric ratings from history, newest first.
func historicalRatings(history []model.FeedbackRecord) []float64 {
	var out []float64
	for _, r := range history {
		if r.UserRating != nil {
			out = append(out, *r.UserRating)
		}
	}
	return out
}

// allIdentical reports whether every rating equals the first.
func allIdentical(ratings []float64) bool {
	for _, r := range ratings[1:] {
		if r != ratings[0] {
			return false
		}
	}
	return true
}
