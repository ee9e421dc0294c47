// Package monitoring gathers health metrics for the proposal pipeline and
// raises webhook alerts when thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/review"
	"github.com/sells-group/proposal-cli/internal/store"
)

const (
	// defaultLookbackHours is used when the config leaves the window unset.
	defaultLookbackHours = 24

	// suspectScoreThreshold marks feedback whose trust validation scored at
	// or below it. Mirrors the validator's isValid bar.
	suspectScoreThreshold = 0.5

	// collectLimit caps one collection query; a window busier than this is
	// a problem the alert should surface anyway.
	collectLimit = 10000
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Run metrics within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsPassed    int     `json:"runs_passed"`
	RunsExhausted int     `json:"runs_exhausted"`
	RunsFailed    int     `json:"runs_failed"`
	RunsActive    int     `json:"runs_active"`
	ExhaustedRate float64 `json:"exhausted_rate"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgAttempts   float64 `json:"avg_attempts"`
	CostUSD       float64 `json:"cost_usd"`
	TotalTokens   int     `json:"total_tokens"`

	// Feedback trust metrics within the lookback window.
	FeedbackTotal       int     `json:"feedback_total"`
	FeedbackSuspect     int     `json:"feedback_suspect"`
	SuspectFeedbackRate float64 `json:"suspect_feedback_rate"`

	// Runs currently waiting on a human.
	ReviewQueueDepth int `json:"review_queue_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window. A non-positive
// window falls back to 24 hours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = defaultLookbackHours
	}
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}
	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		Since: cutoff,
		Limit: collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var (
		confidenceSum float64
		scoredRuns    int
		attemptSum    int
		settledRuns   int
	)

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusPassed:
			snap.RunsPassed++
		case model.RunStatusExhausted:
			snap.RunsExhausted++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsActive++
		}
		if review.Needed(r) {
			snap.ReviewQueueDepth++
		}
		if r.Result != nil {
			snap.CostUSD += r.Result.TotalCost
			snap.TotalTokens += r.Result.TotalTokens
			attemptSum += r.Result.AttemptCount
			settledRuns++
			if r.Result.Metrics != nil {
				confidenceSum += r.Result.Metrics.OverallConfidence
				scoredRuns++
			}
		}
	}

	finished := snap.RunsPassed + snap.RunsExhausted + snap.RunsFailed
	if finished > 0 {
		snap.ExhaustedRate = float64(snap.RunsExhausted) / float64(finished)
	}
	if scoredRuns > 0 {
		snap.AvgConfidence = confidenceSum / float64(scoredRuns)
	}
	if settledRuns > 0 {
		snap.AvgAttempts = float64(attemptSum) / float64(settledRuns)
	}

	feedback, err := c.store.ListFeedback(ctx, store.FeedbackFilter{
		Since: cutoff,
		Limit: collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list feedback")
	}

	snap.FeedbackTotal = len(feedback)
	for _, f := range feedback {
		if f.ValidationScore <= suspectScoreThreshold {
			snap.FeedbackSuspect++
		}
	}
	if snap.FeedbackTotal > 0 {
		snap.SuspectFeedbackRate = float64(snap.FeedbackSuspect) / float64(snap.FeedbackTotal)
	}

	return snap, nil
}
