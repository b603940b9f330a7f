package db

import (
	"database/sql"
	"fmt"
)

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	Event     string
	Stage     string
	Attempt   int
	Detail    string
	Timestamp string
}

// StageRun represents a row in the stage_runs table.
type StageRun struct {
	ID         int
	RunID      string
	Stage      string
	Attempt    int
	Success    bool
	Score      int
	DurationMs int
	Detail     string
	Timestamp  string
}

// BreakerEvent represents a row in the breaker_events table.
type BreakerEvent struct {
	ID        int
	Breaker   string
	State     string
	Failures  int
	Timestamp string
}

// RecoveryAttempt represents a row in the recovery_attempts table.
type RecoveryAttempt struct {
	ID         int
	RunID      string
	Stage      string
	Attempt    int
	Strategy   string
	Confidence int
	Success    bool
	Detail     string
	Timestamp  string
}

// GateDecision represents a row in the gate_decisions table.
type GateDecision struct {
	ID        int
	RunID     string
	Stage     string
	Score     int
	Approved  bool
	Source    string
	Feedback  string
	Timestamp string
}

// LogRunEvent inserts a run event.
func (d *DB) LogRunEvent(runID, event, stage string, attempt int, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, event, stage, attempt, detail) VALUES (?, ?, ?, ?, ?)`,
		runID, event, stage, attempt, detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// GetRunHistory returns all events for a run, newest first.
func (d *DB) GetRunHistory(runID string) ([]RunEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, event, stage, attempt, detail, timestamp
		 FROM run_events WHERE run_id = ? ORDER BY timestamp DESC, id DESC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get run history: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var stage, detail sql.NullString
		var attempt sql.NullInt64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &stage, &attempt, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		if stage.Valid {
			e.Stage = stage.String
		}
		if attempt.Valid {
			e.Attempt = int(attempt.Int64)
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LogStageRun inserts a stage run record.
func (d *DB) LogStageRun(runID, stage string, attempt int, success bool, score, durationMs int, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO stage_runs (run_id, stage, attempt, success, score, duration_ms, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, stage, attempt, success, score, durationMs, detail,
	)
	if err != nil {
		return fmt.Errorf("log stage run: %w", err)
	}
	return nil
}

// GetStageRuns returns all stage runs for a run, in execution order.
func (d *DB) GetStageRuns(runID string) ([]StageRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, stage, attempt, success, score, duration_ms, detail, timestamp
		 FROM stage_runs WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get stage runs: %w", err)
	}
	defer rows.Close()
	return scanStageRuns(rows)
}

// GetStageRunsByStage returns all runs of a named stage across every run, newest first.
func (d *DB) GetStageRunsByStage(stage string) ([]StageRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, stage, attempt, success, score, duration_ms, detail, timestamp
		 FROM stage_runs WHERE stage = ? ORDER BY id DESC`,
		stage,
	)
	if err != nil {
		return nil, fmt.Errorf("get stage runs by stage: %w", err)
	}
	defer rows.Close()
	return scanStageRuns(rows)
}

func scanStageRuns(rows *sql.Rows) ([]StageRun, error) {
	var runs []StageRun
	for rows.Next() {
		var r StageRun
		var score, durationMs sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.Stage, &r.Attempt, &r.Success, &score, &durationMs, &detail, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		if score.Valid {
			r.Score = int(score.Int64)
		}
		if durationMs.Valid {
			r.DurationMs = int(durationMs.Int64)
		}
		if detail.Valid {
			r.Detail = detail.String
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LogBreakerEvent inserts a breaker state transition.
func (d *DB) LogBreakerEvent(breaker, state string, failures int) error {
	_, err := d.conn.Exec(
		`INSERT INTO breaker_events (breaker, state, failures) VALUES (?, ?, ?)`,
		breaker, state, failures,
	)
	if err != nil {
		return fmt.Errorf("log breaker event: %w", err)
	}
	return nil
}

// GetBreakerEvents returns transitions for a breaker, newest first.
func (d *DB) GetBreakerEvents(breaker string) ([]BreakerEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, breaker, state, failures, timestamp
		 FROM breaker_events WHERE breaker = ? ORDER BY id DESC`,
		breaker,
	)
	if err != nil {
		return nil, fmt.Errorf("get breaker events: %w", err)
	}
	defer rows.Close()

	var events []BreakerEvent
	for rows.Next() {
		var e BreakerEvent
		if err := rows.Scan(&e.ID, &e.Breaker, &e.State, &e.Failures, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan breaker event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountBreakerOpens returns the number of times each breaker has opened.
func (d *DB) CountBreakerOpens() (map[string]int, error) {
	rows, err := d.conn.Query(
		`SELECT breaker, COUNT(*) FROM breaker_events WHERE state = 'open' GROUP BY breaker`,
	)
	if err != nil {
		return nil, fmt.Errorf("count breaker opens: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan breaker count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// LogRecoveryAttempt inserts a recovery attempt record.
func (d *DB) LogRecoveryAttempt(runID, stage string, attempt int, strategy string, confidence int, success bool, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO recovery_attempts (run_id, stage, attempt, strategy, confidence, success, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, stage, attempt, strategy, confidence, success, detail,
	)
	if err != nil {
		return fmt.Errorf("log recovery attempt: %w", err)
	}
	return nil
}

// GetRecoveryAttempts returns recovery attempts for a run in order.
func (d *DB) GetRecoveryAttempts(runID string) ([]RecoveryAttempt, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, stage, attempt, strategy, confidence, success, detail, timestamp
		 FROM recovery_attempts WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get recovery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []RecoveryAttempt
	for rows.Next() {
		var a RecoveryAttempt
		var detail sql.NullString
		if err := rows.Scan(&a.ID, &a.RunID, &a.Stage, &a.Attempt, &a.Strategy, &a.Confidence, &a.Success, &detail, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan recovery attempt: %w", err)
		}
		if detail.Valid {
			a.Detail = detail.String
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// RecoveryRate returns successes and total recovery attempts per strategy.
func (d *DB) RecoveryRate() (map[string][2]int, error) {
	rows, err := d.conn.Query(
		`SELECT strategy, SUM(CASE WHEN success THEN 1 ELSE 0 END), COUNT(*)
		 FROM recovery_attempts GROUP BY strategy`,
	)
	if err != nil {
		return nil, fmt.Errorf("recovery rate: %w", err)
	}
	defer rows.Close()

	rates := make(map[string][2]int)
	for rows.Next() {
		var strategy string
		var ok, total int
		if err := rows.Scan(&strategy, &ok, &total); err != nil {
			return nil, fmt.Errorf("scan recovery rate: %w", err)
		}
		rates[strategy] = [2]int{ok, total}
	}
	return rates, rows.Err()
}

// LogGateDecision inserts a human gate decision.
func (d *DB) LogGateDecision(runID, stage string, score int, approved bool, source, feedback string) error {
	_, err := d.conn.Exec(
		`INSERT INTO gate_decisions (run_id, stage, score, approved, source, feedback)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, stage, score, approved, source, feedback,
	)
	if err != nil {
		return fmt.Errorf("log gate decision: %w", err)
	}
	return nil
}

// GetGateDecisions returns gate decisions for a run in order.
func (d *DB) GetGateDecisions(runID string) ([]GateDecision, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, stage, score, approved, source, feedback, timestamp
		 FROM gate_decisions WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get gate decisions: %w", err)
	}
	defer rows.Close()

	var decisions []GateDecision
	for rows.Next() {
		var g GateDecision
		var feedback sql.NullString
		if err := rows.Scan(&g.ID, &g.RunID, &g.Stage, &g.Score, &g.Approved, &g.Source, &feedback, &g.Timestamp); err != nil {
			return nil, fmt.Errorf("scan gate decision: %w", err)
		}
		if feedback.Valid {
			g.Feedback = feedback.String
		}
		decisions = append(decisions, g)
	}
	return decisions, rows.Err()
}

// StageStats aggregates success and duration numbers for one stage.
type StageStats struct {
	Stage         string
	Runs          int
	Successes     int
	AvgDurationMs int
	AvgScore      int
}

// GetStageStats returns per-stage aggregates across all runs, ordered by stage name.
func (d *DB) GetStageStats() ([]StageStats, error) {
	rows, err := d.conn.Query(
		`SELECT stage, COUNT(*),
		        SUM(CASE WHEN success THEN 1 ELSE 0 END),
		        COALESCE(CAST(AVG(duration_ms) AS INTEGER), 0),
		        COALESCE(CAST(AVG(score) AS INTEGER), 0)
		 FROM stage_runs GROUP BY stage ORDER BY stage`,
	)
	if err != nil {
		return nil, fmt.Errorf("get stage stats: %w", err)
	}
	defer rows.Close()

	var stats []StageStats
	for rows.Next() {
		var s StageStats
		if err := rows.Scan(&s.Stage, &s.Runs, &s.Successes, &s.AvgDurationMs, &s.AvgScore); err != nil {
			return nil, fmt.Errorf("scan stage stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
