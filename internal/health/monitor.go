// Package health tracks the liveness of named external services and
// offers per-service graceful degradation. It is the second protection
// layer next to the circuit breakers: stages consult the cached status
// before attempting a call the breaker would otherwise have to reject.
package health

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Check probes a service and reports whether it is usable.
type Check func() (bool, error)

// DegradeFunc produces a substitute result when a service is down.
type DegradeFunc func(args ...interface{}) (interface{}, error)

// NoDegradationError is returned by Degrade when the service has no
// registered degradation strategy.
type NoDegradationError struct {
	Service string
}

func (e *NoDegradationError) Error() string {
	return fmt.Sprintf("service %q is unavailable and has no degradation strategy", e.Service)
}

type entry struct {
	check               Check
	degrade             DegradeFunc
	healthy             bool
	lastCheckedAt       time.Time
	consecutiveFailures int
}

// Monitor is a registry of named services with health checks. All
// methods are safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	services map[string]*entry
	now      func() time.Time
}

// NewMonitor creates an empty Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		services: make(map[string]*entry),
		now:      time.Now,
	}
}

// SetClock overrides the time source (for testing).
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Register adds a service. A service registers as healthy until the
// first check says otherwise. degrade may be nil. Re-registering a name
// replaces the previous entry.
func (m *Monitor) Register(name string, check Check, degrade DegradeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[name] = &entry{check: check, degrade: degrade, healthy: true}
}

// CheckHealth runs the service's live check and caches the result. A
// check that errors or panics counts as unhealthy; the failure never
// propagates to the caller. Unknown services report unhealthy.
func (m *Monitor) CheckHealth(name string) bool {
	m.mu.Lock()
	e, ok := m.services[name]
	m.mu.Unlock()
	if !ok {
		return false
	}

	healthy := runCheck(e.check)

	m.mu.Lock()
	defer m.mu.Unlock()
	e.healthy = healthy
	e.lastCheckedAt = m.now()
	if healthy {
		e.consecutiveFailures = 0
	} else {
		e.consecutiveFailures++
	}
	return healthy
}

// runCheck invokes check, converting errors and panics to unhealthy.
func runCheck(check Check) (healthy bool) {
	defer func() {
		if recover() != nil {
			healthy = false
		}
	}()
	ok, err := check()
	return ok && err == nil
}

// IsHealthy returns the cached status without triggering a live check.
// Callers decide when to refresh with CheckHealth.
func (m *Monitor) IsHealthy(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.services[name]
	return ok && e.healthy
}

// Degrade invokes the service's degradation strategy, or fails with a
// NoDegradationError naming the service if none is registered.
func (m *Monitor) Degrade(name string, args ...interface{}) (interface{}, error) {
	m.mu.Lock()
	e, ok := m.services[name]
	m.mu.Unlock()
	if !ok || e.degrade == nil {
		return nil, &NoDegradationError{Service: name}
	}
	return e.degrade(args...)
}

// ServiceStatus is a snapshot of one monitored service.
type ServiceStatus struct {
	Name                string    `json:"name"`
	Healthy             bool      `json:"healthy"`
	LastCheckedAt       time.Time `json:"last_checked_at,omitzero"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Statuses returns snapshots of all services, sorted by name.
func (m *Monitor) Statuses() []ServiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ServiceStatus, 0, len(m.services))
	for name, e := range m.services {
		out = append(out, ServiceStatus{
			Name:                name,
			Healthy:             e.healthy,
			LastCheckedAt:       e.lastCheckedAt,
			ConsecutiveFailures: e.consecutiveFailures,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
