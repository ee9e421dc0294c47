package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock drives a breaker's cooldown without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// failN pushes n failing calls through the breaker.
func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return transientErr()
		})
	}
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func(context.Context) error {
		return nil
	})
}

func TestBreaker_ClosedPassesCallsThrough(t *testing.T) {
	cb := NewCircuitBreaker("anthropic", DefaultCircuitBreakerConfig())

	calls := 0
	err := cb.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if got := cb.State(); got != CircuitClosed {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestBreaker_TripsAtFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})

	failN(cb, 2)
	if got := cb.State(); got != CircuitClosed {
		t.Fatalf("state after 2 failures = %s, want closed", got)
	}

	failN(cb, 1)
	if got := cb.State(); got != CircuitOpen {
		t.Fatalf("state after 3 failures = %s, want open", got)
	}

	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Error("open breaker ran the call")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_SuccessBreaksTheStreak(t *testing.T) {
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})

	// Two failures, a success, two more failures. The streak never reaches
	// three, so the breaker stays closed.
	failN(cb, 2)
	if err := succeed(cb); err != nil {
		t.Fatalf("succeed: %v", err)
	}
	failN(cb, 2)

	if got := cb.State(); got != CircuitClosed {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestBreaker_ProbeAfterCooldownClosesCircuit(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     30 * time.Second,
	})
	cb.nowFunc = clock.Now

	failN(cb, 2)
	if got := cb.State(); got != CircuitOpen {
		t.Fatalf("state = %s, want open", got)
	}

	clock.advance(31 * time.Second)
	if got := cb.State(); got != CircuitHalfOpen {
		t.Fatalf("state after cooldown = %s, want half-open", got)
	}

	if err := succeed(cb); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got := cb.State(); got != CircuitClosed {
		t.Errorf("state after good probe = %s, want closed", got)
	}
}

func TestBreaker_FailedProbeReopensCircuit(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     30 * time.Second,
	})
	cb.nowFunc = clock.Now

	failN(cb, 2)
	clock.advance(31 * time.Second)

	// The probe fails, restarting the open window from now.
	failN(cb, 1)

	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Error("reopened breaker ran the call")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_NeedsEveryProbeBeforeClosing(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Second,
		HalfOpenProbes:   2,
	})
	cb.nowFunc = clock.Now

	failN(cb, 1)
	clock.advance(31 * time.Second)

	if err := succeed(cb); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if got := cb.State(); got != CircuitHalfOpen {
		t.Fatalf("state after one probe = %s, want half-open", got)
	}

	if err := succeed(cb); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if got := cb.State(); got != CircuitClosed {
		t.Errorf("state after both probes = %s, want closed", got)
	}
}

func TestBreaker_ShouldTripFiltersErrors(t *testing.T) {
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		ShouldTrip:       IsTransient,
	})

	// Permanent errors never count toward the threshold.
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return errors.New("invalid request")
		})
	}
	if got := cb.State(); got != CircuitClosed {
		t.Fatalf("state after permanent errors = %s, want closed", got)
	}

	failN(cb, 2)
	if got := cb.State(); got != CircuitOpen {
		t.Errorf("state after transient errors = %s, want open", got)
	}
}

func TestBreaker_ResetForcesClosed(t *testing.T) {
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})

	failN(cb, 2)
	if got := cb.State(); got != CircuitOpen {
		t.Fatalf("state = %s, want open", got)
	}

	cb.Reset()
	if got := cb.State(); got != CircuitClosed {
		t.Fatalf("state after reset = %s, want closed", got)
	}
	if err := succeed(cb); err != nil {
		t.Errorf("call after reset: %v", err)
	}
}

func TestBreaker_SharedAcrossGoroutines(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{
		FailureThreshold: 100,
		ResetTimeout:     time.Minute,
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			_ = cb.Execute(context.Background(), func(context.Context) error {
				if fail {
					return transientErr()
				}
				return nil
			})
		}(i%2 == 0)
	}
	wg.Wait()
}

func TestNewCircuitBreaker_ZeroConfigGetsDefaults(t *testing.T) {
	cb := NewCircuitBreaker("notion", CircuitBreakerConfig{})

	if cb.cfg.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cb.cfg.FailureThreshold)
	}
	if cb.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %s, want 30s", cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenProbes != 1 {
		t.Errorf("HalfOpenProbes = %d, want 1", cb.cfg.HalfOpenProbes)
	}
}

func TestExecuteVal_CarriesTheValue(t *testing.T) {
	cb := NewCircuitBreaker("anthropic", DefaultCircuitBreakerConfig())

	got, err := ExecuteVal(context.Background(), cb, func(context.Context) (string, error) {
		return "executive summary", nil
	})
	if err != nil {
		t.Fatalf("ExecuteVal: %v", err)
	}
	if got != "executive summary" {
		t.Errorf("value = %q", got)
	}
}

func TestExecuteVal_OpenCircuitReturnsZeroValue(t *testing.T) {
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})
	failN(cb, 1)

	got, err := ExecuteVal(context.Background(), cb, func(context.Context) (string, error) {
		return "never runs", nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if got != "" {
		t.Errorf("value = %q, want empty", got)
	}
}

func TestServiceBreakers_OneBreakerPerService(t *testing.T) {
	sb := NewServiceBreakers(DefaultCircuitBreakerConfig())

	if sb.Get("anthropic") != sb.Get("anthropic") {
		t.Error("same service returned distinct breakers")
	}
	if sb.Get("anthropic") == sb.Get("notion") {
		t.Error("different services share a breaker")
	}
}

func TestServiceBreakers_StatesSnapshot(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})

	failN(sb.Get("anthropic"), 1)
	_ = sb.Get("notion")

	states := sb.States()
	if states["anthropic"] != CircuitOpen {
		t.Errorf("anthropic = %s, want open", states["anthropic"])
	}
	if states["notion"] != CircuitClosed {
		t.Errorf("notion = %s, want closed", states["notion"])
	}
}

func TestCircuitState_Strings(t *testing.T) {
	cases := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
