package runtime

import (
	"github.com/forgeline/forgeline/internal/db"
	"github.com/forgeline/forgeline/internal/stages"
	"github.com/forgeline/forgeline/internal/telemetry"
)

// Run lifecycle event names recorded in the audit database.
const (
	eventRunStarted = "run_started"
	eventRunFailed  = "run_failed"
	eventRunBlocked = "run_blocked"
)

// Auditor persists pipeline events into the audit database for one
// run. It implements telemetry.Emitter so it can sit in the emitter
// chain next to logging and metrics; write failures are swallowed, the
// audit trail is observability and must never gate the pipeline.
type Auditor struct {
	db    *db.DB
	runID string
}

// NewAuditor creates the audit emitter for a run.
func NewAuditor(database *db.DB, runID string) *Auditor {
	return &Auditor{db: database, runID: runID}
}

func (a *Auditor) Emit(event string, fields telemetry.Fields) {
	switch event {
	case telemetry.EventBreakerState:
		_ = a.db.LogBreakerEvent(
			fieldString(fields, "breaker"),
			fieldString(fields, "state"),
			fieldInt(fields, "failures"),
		)
	case telemetry.EventStageCompleted:
		_ = a.db.LogStageRun(
			a.runID,
			fieldString(fields, "stage"),
			fieldInt(fields, "attempt"),
			true,
			int(fieldFloat(fields, "score")),
			int(fieldFloat(fields, "duration_seconds")*1000),
			"",
		)
	case telemetry.EventStageFailed:
		_ = a.db.LogStageRun(
			a.runID,
			fieldString(fields, "stage"),
			fieldInt(fields, "attempt"),
			false,
			0,
			0,
			fieldString(fields, "error"),
		)
	case telemetry.EventRecoveryAttempt:
		outcome := fieldString(fields, "outcome")
		_ = a.db.LogRecoveryAttempt(
			a.runID,
			stages.StageBuildTest,
			fieldInt(fields, "attempt"),
			fieldString(fields, "strategy"),
			int(fieldFloat(fields, "confidence")),
			outcome == "applied",
			outcome,
		)
	case telemetry.EventGateDecision:
		_ = a.db.LogGateDecision(
			a.runID,
			stages.StageHumanGate,
			int(fieldFloat(fields, "score")),
			fieldBool(fields, "approved"),
			fieldString(fields, "source"),
			fieldString(fields, "feedback"),
		)
	case telemetry.EventRunCompleted:
		_ = a.db.LogRunEvent(a.runID, event, "", 0, "")
	}
}

// RunStarted records the start of a run.
func (a *Auditor) RunStarted(ticketURL string) {
	_ = a.db.LogRunEvent(a.runID, eventRunStarted, "", 0, ticketURL)
}

// RunFailed records a terminal failure.
func (a *Auditor) RunFailed(stage string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	_ = a.db.LogRunEvent(a.runID, eventRunFailed, stage, 0, detail)
}

// RunBlocked records a run parked for human attention.
func (a *Auditor) RunBlocked(stage string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	_ = a.db.LogRunEvent(a.runID, eventRunBlocked, stage, 0, detail)
}

// Field accessors tolerant of the numeric types emitters actually use.

func fieldString(f telemetry.Fields, key string) string {
	s, _ := f[key].(string)
	return s
}

func fieldBool(f telemetry.Fields, key string) bool {
	b, _ := f[key].(bool)
	return b
}

func fieldInt(f telemetry.Fields, key string) int {
	switch v := f[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func fieldFloat(f telemetry.Fields, key string) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
