package resilience

import (
	"sort"
	"sync"
)

// Registry holds one breaker per named dependency. Breakers are created
// lazily and live for the registry's lifetime; GetOrCreate is idempotent
// and never reconfigures an existing breaker.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	report   StateReporter
	defaults BreakerConfig
}

// NewRegistry creates a Registry. defaults apply to breakers created
// without an explicit config; report is attached to every breaker.
func NewRegistry(defaults BreakerConfig, report StateReporter) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		report:   report,
		defaults: defaults,
	}
}

// GetOrCreate returns the breaker for name, creating it with the
// registry defaults on first use.
func (r *Registry) GetOrCreate(name string) *Breaker {
	return r.GetOrCreateWith(name, r.defaults)
}

// GetOrCreateWith returns the breaker for name, creating it with cfg on
// first use. An existing breaker keeps its original config.
func (r *Registry) GetOrCreateWith(name string, cfg BreakerConfig) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, cfg)
	b.SetReporter(r.report)
	r.breakers[name] = b
	return b
}

// Get returns the breaker for name, or nil if none has been created.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakers[name]
}

// Statuses returns snapshots of all breakers, sorted by name.
func (r *Registry) Statuses() []BreakerStatus {
	r.mu.Lock()
	all := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		all = append(all, b)
	}
	r.mu.Unlock()

	statuses := make([]BreakerStatus, 0, len(all))
	for _, b := range all {
		statuses = append(statuses, b.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// ResetAll closes every breaker and clears its counters.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	all := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		all = append(all, b)
	}
	r.mu.Unlock()

	for _, b := range all {
		b.Reset()
	}
}
