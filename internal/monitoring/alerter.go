package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/config"
)

// minFinishedForRateAlerts guards rate alerts against tiny samples: one
// exhausted run out of two is noise, not an incident.
const minFinishedForRateAlerts = 5

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertExhaustedRate   AlertType = "exhausted_rate"
	AlertSuspectFeedback AlertType = "suspect_feedback"
	AlertCostOverrun     AlertType = "cost_overrun"
	AlertReviewBacklog   AlertType = "review_backlog"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsPassed + snap.RunsExhausted + snap.RunsFailed
	if finished >= minFinishedForRateAlerts && snap.ExhaustedRate > a.cfg.ExhaustedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertExhaustedRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Exhausted-run rate %.1f%% exceeds threshold %.1f%% (%d exhausted / %d finished in last %dh)",
				snap.ExhaustedRate*100, a.cfg.ExhaustedRateThreshold*100,
				snap.RunsExhausted, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"exhausted_rate": snap.ExhaustedRate,
				"threshold":      a.cfg.ExhaustedRateThreshold,
				"exhausted":      snap.RunsExhausted,
				"finished":       finished,
			},
			Timestamp: now,
		})
	}

	if snap.FeedbackTotal >= minFinishedForRateAlerts && snap.SuspectFeedbackRate > a.cfg.SuspectFeedbackRate {
		alerts = append(alerts, Alert{
			Type:     AlertSuspectFeedback,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Suspect feedback rate %.1f%% exceeds threshold %.1f%% (%d of %d records in last %dh)",
				snap.SuspectFeedbackRate*100, a.cfg.SuspectFeedbackRate*100,
				snap.FeedbackSuspect, snap.FeedbackTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"suspect_rate": snap.SuspectFeedbackRate,
				"threshold":    a.cfg.SuspectFeedbackRate,
				"suspect":      snap.FeedbackSuspect,
				"total":        snap.FeedbackTotal,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"API cost $%.2f exceeds threshold $%.2f in last %dh",
				snap.CostUSD, a.cfg.CostThresholdUSD, snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":      snap.CostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"runs_total":    snap.RunsTotal,
			},
			Timestamp: now,
		})
	}

	if a.cfg.ReviewQueueThreshold > 0 && snap.ReviewQueueDepth > a.cfg.ReviewQueueThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertReviewBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Review queue depth %d exceeds threshold %d; drafts are waiting on humans",
				snap.ReviewQueueDepth, a.cfg.ReviewQueueThreshold,
			),
			Details: map[string]any{
				"queue_depth": snap.ReviewQueueDepth,
				"threshold":   a.cfg.ReviewQueueThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
