package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/config"
)

// defaultSweepInterval applies when the configured interval is unset.
const defaultSweepInterval = 5 * time.Minute

// escalateAfter is the number of consecutive failed sweeps before the
// watchdog switches from warn to error logging.
const escalateAfter = 3

// Watchdog periodically collects pipeline health metrics and pushes any
// threshold breaches through the alerter. The serve command starts one
// per process.
type Watchdog struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	failures int
}

// NewWatchdog wires a collector and an alerter into a background health loop.
func NewWatchdog(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Watchdog {
	return &Watchdog{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// A sweep failure never stops the loop.
func (w *Watchdog) Run(ctx context.Context) {
	interval := time.Duration(w.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	log := zap.L().With(zap.String("component", "monitoring.watchdog"))
	log.Info("health watchdog started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", w.cfg.LookbackWindowHours),
	)

	w.sweep(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health watchdog stopped")
			return
		case <-ticker.C:
			w.sweep(ctx, log)
		}
	}
}

func (w *Watchdog) sweep(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}

	snap, err := w.collector.Collect(ctx, w.cfg.LookbackWindowHours)
	if err != nil {
		w.failures++
		if w.failures >= escalateAfter {
			log.Error("health sweep failing repeatedly",
				zap.Int("consecutive_failures", w.failures),
				zap.Error(err),
			)
		} else {
			log.Warn("health sweep failed", zap.Error(err))
		}
		return
	}
	w.failures = 0

	alerts := w.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("health sweep clean",
			zap.Int("runs_total", snap.RunsTotal),
			zap.Int("review_queue_depth", snap.ReviewQueueDepth),
		)
		return
	}

	sent := w.alerter.SendAlerts(ctx, alerts)
	log.Info("health sweep raised alerts",
		zap.Int("triggered", len(alerts)),
		zap.Int("delivered", sent),
	)
}
