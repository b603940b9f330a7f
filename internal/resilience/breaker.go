package resilience

import (
	"sync"
	"time"
)

// BreakerState is the lifecycle state of a circuit breaker.
type BreakerState int

const (
	StateClosed   BreakerState = iota // normal operation
	StateOpen                         // calls rejected until the recovery timeout elapses
	StateHalfOpen                     // single probe in flight
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds per-breaker tuning.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	Fallback         Operation
}

// StateReporter receives breaker state transitions. It is a side
// channel: a nil reporter is fine and a panicking reporter is swallowed
// so that observability can never change a gating decision.
type StateReporter func(name string, state BreakerState, failures int)

// Breaker isolates one named dependency. After FailureThreshold
// consecutive failures it opens and rejects calls until RecoveryTimeout
// elapses, then allows a single probe before committing to closed or
// open again.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu            sync.Mutex
	state         BreakerState
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	nextAttemptAt time.Time
	probing       bool

	report StateReporter
	now    func() time.Time
}

// NewBreaker creates a Breaker, applying defaults for zero fields
// (threshold 5, recovery timeout 60s).
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// SetReporter registers the transition side channel.
func (b *Breaker) SetReporter(r StateReporter) {
	b.report = r
}

// SetClock overrides the time source (for testing).
func (b *Breaker) SetClock(now func() time.Time) {
	b.now = now
}

// Name returns the dependency identifier this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Do runs op under the breaker. While open and before the recovery
// deadline it invokes the fallback if one is configured, otherwise it
// returns a CircuitOpenError; the underlying operation is never called.
// Once the deadline passes, exactly one caller is admitted as the
// half-open probe; concurrent callers keep seeing the open circuit until
// the probe commits. Operation errors are returned unchanged — the
// breaker gates whether the call happens, never what it returns.
func (b *Breaker) Do(op Operation) (interface{}, error) {
	if admitted, err := b.admit(); !admitted {
		if b.cfg.Fallback != nil {
			result, fbErr := b.cfg.Fallback()
			if fbErr != nil {
				return nil, &CircuitOpenError{Name: b.name, FallbackErr: fbErr}
			}
			return result, nil
		}
		return nil, err
	}

	result, err := op()
	if err != nil {
		b.recordFailure()
		return nil, err
	}
	b.recordSuccess()
	return result, nil
}

// admit decides whether a call may proceed. It returns (false, err)
// when the circuit rejects the call.
func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, nil
	case StateHalfOpen:
		if b.probing {
			return false, &CircuitOpenError{Name: b.name}
		}
		b.probing = true
		return true, nil
	case StateOpen:
		if b.now().Before(b.nextAttemptAt) {
			return false, &CircuitOpenError{Name: b.name}
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return true, nil
	}
	return false, &CircuitOpenError{Name: b.name}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.failureCount = 0
		b.successCount = 0
		b.probing = false
		b.nextAttemptAt = time.Time{}
		b.transition(StateClosed)
	case StateClosed:
		b.failureCount = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureAt = b.now()

	switch {
	case b.state == StateHalfOpen:
		b.probing = false
		b.open()
	case b.failureCount >= b.cfg.FailureThreshold:
		b.open()
	}
}

// open arms the recovery deadline and transitions to Open. Caller holds b.mu.
func (b *Breaker) open() {
	b.nextAttemptAt = b.now().Add(b.cfg.RecoveryTimeout)
	b.transition(StateOpen)
}

// transition updates state and reports it. Caller holds b.mu.
func (b *Breaker) transition(next BreakerState) {
	if b.state == next {
		return
	}
	b.state = next
	if b.report != nil {
		func() {
			defer func() { _ = recover() }()
			b.report(b.name, next, b.failureCount)
		}()
	}
}

// Reset forces the breaker back to closed with cleared counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.successCount = 0
	b.probing = false
	b.nextAttemptAt = time.Time{}
	b.transition(StateClosed)
}

// BreakerStatus is a point-in-time snapshot for status output.
type BreakerStatus struct {
	Name          string    `json:"name"`
	State         string    `json:"state"`
	FailureCount  int       `json:"failure_count"`
	LastFailureAt time.Time `json:"last_failure_at,omitzero"`
	NextAttemptAt time.Time `json:"next_attempt_at,omitzero"`
}

// Status returns a snapshot of the breaker.
func (b *Breaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{
		Name:          b.name,
		State:         b.state.String(),
		FailureCount:  b.failureCount,
		LastFailureAt: b.lastFailureAt,
		NextAttemptAt: b.nextAttemptAt,
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive-failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
