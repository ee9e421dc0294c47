package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/config"
	"github.com/sells-group/proposal-cli/internal/store"
)

func TestWatchdog_RunStopsOnCancel(t *testing.T) {
	st := newTestStore(t)
	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitoringConfig{
		ExhaustedRateThreshold: 0.20,
		LookbackWindowHours:    24,
	})
	wd := NewWatchdog(collector, alerter, config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		wd.Run(ctx)
		close(done)
	}()

	// Let the initial sweep and one tick happen, then cancel.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watchdog.Run did not stop after context cancellation")
	}
}

func TestWatchdog_CancelledContextReturnsImmediately(t *testing.T) {
	st := newTestStore(t)
	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitoringConfig{})

	// Zero interval falls back to the default, which would never tick
	// inside this test; Run must still return promptly on a dead context.
	wd := NewWatchdog(collector, alerter, config.MonitoringConfig{})
	assert.NotNil(t, wd)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wd.Run(ctx)
}

func TestWatchdog_SweepTracksConsecutiveFailures(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "watchdog.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))

	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitoringConfig{})
	wd := NewWatchdog(collector, alerter, config.MonitoringConfig{LookbackWindowHours: 24})

	log := zap.NewNop()
	ctx := context.Background()

	// A healthy sweep keeps the counter at zero.
	wd.sweep(ctx, log)
	assert.Equal(t, 0, wd.failures)

	// Once the store goes away every sweep fails and the counter climbs.
	require.NoError(t, st.Close())
	for i := 0; i < escalateAfter+1; i++ {
		wd.sweep(ctx, log)
	}
	assert.Equal(t, escalateAfter+1, wd.failures)
}
