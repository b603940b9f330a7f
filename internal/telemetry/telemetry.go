// Package telemetry is the observability side channel: structured
// events for breaker transitions, retry attempts, stage transitions and
// recovery outcomes. Emission is fire-and-forget — a failing or
// panicking emitter never reaches the pipeline's control flow.
package telemetry

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fields carries structured event data.
type Fields map[string]interface{}

// Emitter receives named events. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Emit(event string, fields Fields)
}

// Emit sends an event to e, swallowing panics. A nil e is a no-op.
func Emit(e Emitter, event string, fields Fields) {
	if e == nil {
		return
	}
	defer func() { _ = recover() }()
	e.Emit(event, fields)
}

// NopEmitter discards everything.
type NopEmitter struct{}

func (NopEmitter) Emit(string, Fields) {}

// LogEmitter writes one line per event to an io.Writer, with fields in
// key-sorted order for deterministic output.
type LogEmitter struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewLogEmitter creates a LogEmitter writing to w.
func NewLogEmitter(w io.Writer) *LogEmitter {
	return &LogEmitter{w: w, now: time.Now}
}

// SetClock overrides the timestamp source (for testing).
func (l *LogEmitter) SetClock(now func() time.Time) {
	l.now = now
}

func (l *LogEmitter) Emit(event string, fields Fields) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(l.now().UTC().Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(event)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, fields[k])
	}
	sb.WriteString("\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, sb.String())
}

// MultiEmitter fans out to several emitters, isolating each one's
// failures from the others.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter combines emitters; nil entries are skipped.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	var kept []Emitter
	for _, e := range emitters {
		if e != nil {
			kept = append(kept, e)
		}
	}
	return &MultiEmitter{emitters: kept}
}

func (m *MultiEmitter) Emit(event string, fields Fields) {
	for _, e := range m.emitters {
		Emit(e, event, fields)
	}
}
