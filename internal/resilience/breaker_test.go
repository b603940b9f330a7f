package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failingOp() (interface{}, error) { return nil, errBoom }

func okOp() (interface{}, error) { return "ok", nil }

// fakeClock lets tests control the breaker's view of time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(t *testing.T, cfg BreakerConfig) (*Breaker, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	b := NewBreaker("llm", cfg)
	b.SetClock(clock.Now)
	return b, clock
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := b.Do(failingOp)
		require.ErrorIs(t, err, errBoom, "failure %d should surface the operation error", i)
	}
	assert.Equal(t, StateOpen, b.State())

	// The next call must be rejected without invoking the operation.
	invoked := false
	_, err := b.Do(func() (interface{}, error) {
		invoked = true
		return nil, nil
	})
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "llm", openErr.Name)
	assert.False(t, invoked, "open breaker must not invoke the operation")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	_, _ = b.Do(failingOp)
	_, _ = b.Do(failingOp)
	assert.Equal(t, 2, b.FailureCount())

	_, err := b.Do(okOp)
	require.NoError(t, err)
	assert.Equal(t, 0, b.FailureCount())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second})

	_, _ = b.Do(failingOp)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(31 * time.Second)

	result, err := b.Do(okOp)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.FailureCount())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second})

	_, _ = b.Do(failingOp)
	clock.Advance(31 * time.Second)

	_, err := b.Do(failingOp)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())

	// Re-armed: still rejecting before the new deadline.
	_, err = b.Do(okOp)
	var openErr *CircuitOpenError
	assert.ErrorAs(t, err, &openErr)
}

func TestBreakerSingleProbeAllowed(t *testing.T) {
	b, clock := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Second})

	_, _ = b.Do(failingOp)
	clock.Advance(11 * time.Second)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := b.Do(func() (interface{}, error) {
			close(probeStarted)
			<-release
			return "ok", nil
		})
		done <- err
	}()

	<-probeStarted
	// While the probe is in flight, concurrent callers see the open circuit.
	_, err := b.Do(okOp)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerFallbackWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		Fallback:         func() (interface{}, error) { return "cached", nil },
	})

	_, _ = b.Do(failingOp)
	result, err := b.Do(okOp)
	require.NoError(t, err)
	assert.Equal(t, "cached", result)
}

func TestBreakerFallbackFailureWrapped(t *testing.T) {
	fbErr := errors.New("fallback down")
	b, _ := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		Fallback:         func() (interface{}, error) { return nil, fbErr },
	})

	_, _ = b.Do(failingOp)
	_, err := b.Do(okOp)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.ErrorIs(t, err, fbErr)
}

func TestBreakerReporterSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var transitions []BreakerState

	b, clock := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})
	b.SetReporter(func(name string, state BreakerState, failures int) {
		mu.Lock()
		transitions = append(transitions, state)
		mu.Unlock()
	})

	_, _ = b.Do(failingOp)
	clock.Advance(2 * time.Second)
	_, _ = b.Do(okOp)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []BreakerState{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreakerReporterPanicIgnored(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	b.SetReporter(func(string, BreakerState, int) { panic("metrics backend down") })

	_, err := b.Do(failingOp)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State(), "a panicking reporter must not change the decision")
}

func TestRegistryGetOrCreateIdempotent(t *testing.T) {
	reg := NewRegistry(BreakerConfig{FailureThreshold: 2}, nil)

	a := reg.GetOrCreate("github")
	b := reg.GetOrCreate("github")
	assert.Same(t, a, b)

	// An existing breaker keeps its original config.
	c := reg.GetOrCreateWith("github", BreakerConfig{FailureThreshold: 99})
	assert.Same(t, a, c)
}

func TestRegistryStatusesSorted(t *testing.T) {
	reg := NewRegistry(BreakerConfig{}, nil)
	reg.GetOrCreate("zeta")
	reg.GetOrCreate("alpha")

	statuses := reg.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "alpha", statuses[0].Name)
	assert.Equal(t, "zeta", statuses[1].Name)
}
