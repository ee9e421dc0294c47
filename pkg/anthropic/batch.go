package anthropic

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Polling defaults. Screening sweeps usually finish inside a few minutes;
// the half-hour ceiling covers the API's worst case.
const (
	defaultBatchPollInitial = 2 * time.Second
	defaultBatchPollCap     = 15 * time.Second
	defaultBatchPollTimeout = 30 * time.Minute
)

// PollOption adjusts how PollBatch waits on a running batch.
type PollOption func(*pollSettings)

type pollSettings struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

// WithPollInterval sets the first wait between status checks.
func WithPollInterval(d time.Duration) PollOption {
	return func(s *pollSettings) { s.initial = d }
}

// WithPollCap bounds how far the wait between checks may stretch.
func WithPollCap(d time.Duration) PollOption {
	return func(s *pollSettings) { s.cap = d }
}

// WithPollTimeout caps the total time spent waiting on the batch.
func WithPollTimeout(d time.Duration) PollOption {
	return func(s *pollSettings) { s.timeout = d }
}

// PollBatch blocks until the batch reaches a terminal status or the context
// gives out. Waits stretch exponentially from the initial interval up to the
// cap, jittered so concurrent pollers spread out. A terminal batch is
// returned even when its status is an error, so callers can still inspect
// the request counts.
func PollBatch(ctx context.Context, client Client, batchID string, opts ...PollOption) (*BatchResponse, error) {
	settings := pollSettings{
		initial: defaultBatchPollInitial,
		cap:     defaultBatchPollCap,
		timeout: defaultBatchPollTimeout,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	log := zap.L().With(zap.String("batch_id", batchID))
	wait := settings.initial
	for attempt := 1; ; attempt++ {
		batch, err := client.GetBatch(ctx, batchID)
		if err != nil {
			return nil, eris.Wrapf(err, "anthropic: poll batch %s", batchID)
		}

		switch batch.ProcessingStatus {
		case BatchStatusEnded:
			return batch, nil
		case BatchStatusExpired:
			return batch, eris.Errorf("anthropic: batch %s expired", batchID)
		case BatchStatusCanceled, BatchStatusCanceling:
			return batch, eris.Errorf("anthropic: batch %s canceled", batchID)
		}

		log.Debug("anthropic: batch still processing",
			zap.Int("attempt", attempt),
			zap.Int64("processing", batch.RequestCounts.Processing),
			zap.Duration("wait", wait),
		)

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "anthropic: poll batch %s timed out", batchID)
		case <-time.After(wait):
		}
		wait = nextPollWait(wait, settings.cap)
	}
}

// nextPollWait doubles the wait up to the ceiling, then smears it by up to
// 20% either way so pollers do not fall into lockstep.
func nextPollWait(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		next = ceiling
	}
	factor := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(next) * factor)
}

// BatchFailure records one batch item that came back without a usable
// message.
type BatchFailure struct {
	CustomID string
	Type     string // "errored", "canceled", "expired"
}

// BatchCollectResult splits a drained batch into answers and failures.
type BatchCollectResult struct {
	Succeeded map[string]*MessageResponse
	Failures  []BatchFailure
}

// CollectBatchResults drains the iterator and returns succeeded messages
// keyed by custom_id, discarding failure detail. Use the Detailed variant
// when per-item failures matter.
func CollectBatchResults(iter BatchResultIterator) (map[string]*MessageResponse, error) {
	collected, err := CollectBatchResultsDetailed(iter)
	if err != nil {
		return nil, err
	}
	return collected.Succeeded, nil
}

// CollectBatchResultsDetailed drains the iterator, keeping succeeded
// messages keyed by custom_id and recording every other outcome as a
// failure. The iterator is closed before returning.
func CollectBatchResultsDetailed(iter BatchResultIterator) (*BatchCollectResult, error) {
	defer iter.Close()

	collected := &BatchCollectResult{
		Succeeded: make(map[string]*MessageResponse),
	}
	for iter.Next() {
		item := iter.Item()
		switch {
		case item.Type == BatchResultSucceeded && item.Message != nil:
			collected.Succeeded[item.CustomID] = item.Message
		case item.Type == BatchResultSucceeded:
			// Succeeded without a message; count it as errored rather
			// than dropping it silently.
			collected.Failures = append(collected.Failures, BatchFailure{
				CustomID: item.CustomID,
				Type:     BatchResultErrored,
			})
			zap.L().Warn("anthropic: batch item succeeded without a message",
				zap.String("custom_id", item.CustomID),
			)
		default:
			collected.Failures = append(collected.Failures, BatchFailure{
				CustomID: item.CustomID,
				Type:     item.Type,
			})
			zap.L().Warn("anthropic: batch item failed",
				zap.String("custom_id", item.CustomID),
				zap.String("type", item.Type),
			)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "anthropic: collect batch results")
	}

	if len(collected.Failures) > 0 {
		zap.L().Warn("anthropic: batch finished with failures",
			zap.Int("succeeded", len(collected.Succeeded)),
			zap.Int("failed", len(collected.Failures)),
		)
	}
	return collected, nil
}
