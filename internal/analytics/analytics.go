// Package analytics aggregates the audit database into operator-facing
// reports: stage latencies, recovery effectiveness, breaker churn, gate
// outcomes, and per-run timelines.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// StageDuration holds duration stats for a stage.
type StageDuration struct {
	Stage       string  `json:"stage"`
	Count       int     `json:"count"`
	SuccessRate float64 `json:"success_rate_pct"`
	Avg         float64 `json:"avg_seconds"`
	P50         float64 `json:"p50_seconds"`
	P95         float64 `json:"p95_seconds"`
}

// QueryStageDurations returns count, success rate, and duration
// percentiles per stage from recorded stage runs.
func QueryStageDurations(database DB, since string) ([]StageDuration, error) {
	query := `
		SELECT stage, success, duration_ms
		FROM stage_runs
		WHERE duration_ms IS NOT NULL`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage durations: %w", err)
	}
	defer rows.Close()

	type stageAgg struct {
		durations []float64
		successes int
	}
	byStage := make(map[string]*stageAgg)
	for rows.Next() {
		var stage string
		var success bool
		var durationMs int
		if err := rows.Scan(&stage, &success, &durationMs); err != nil {
			return nil, fmt.Errorf("scan stage duration: %w", err)
		}
		agg, ok := byStage[stage]
		if !ok {
			agg = &stageAgg{}
			byStage[stage] = agg
		}
		agg.durations = append(agg.durations, float64(durationMs)/1000.0)
		if success {
			agg.successes++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []StageDuration
	for stage, agg := range byStage {
		sort.Float64s(agg.durations)
		results = append(results, StageDuration{
			Stage:       stage,
			Count:       len(agg.durations),
			SuccessRate: pct(agg.successes, len(agg.durations)),
			Avg:         avg(agg.durations),
			P50:         percentile(agg.durations, 50),
			P95:         percentile(agg.durations, 95),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// RecoveryOutcome holds recovery effectiveness stats per strategy.
type RecoveryOutcome struct {
	Strategy      string  `json:"strategy"`
	Total         int     `json:"total"`
	SuccessRate   float64 `json:"success_rate_pct"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgAttempts   float64 `json:"avg_attempts"`
}

// QueryRecoveryOutcomes returns how often each recovery strategy
// produced an applied fix, and at what confidence.
func QueryRecoveryOutcomes(database DB, since string) ([]RecoveryOutcome, error) {
	query := `
		SELECT strategy,
			COUNT(*) as total,
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) as successes,
			AVG(confidence) as avg_confidence,
			AVG(attempt) as avg_attempt
		FROM recovery_attempts`

	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY strategy ORDER BY strategy`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recovery outcomes: %w", err)
	}
	defer rows.Close()

	var results []RecoveryOutcome
	for rows.Next() {
		var strategy string
		var total, successes int
		var avgConfidence, avgAttempt sql.NullFloat64
		if err := rows.Scan(&strategy, &total, &successes, &avgConfidence, &avgAttempt); err != nil {
			return nil, fmt.Errorf("scan recovery outcome: %w", err)
		}
		results = append(results, RecoveryOutcome{
			Strategy:      strategy,
			Total:         total,
			SuccessRate:   pct(successes, total),
			AvgConfidence: round1(avgConfidence.Float64),
			AvgAttempts:   round1(avgAttempt.Float64),
		})
	}
	return results, rows.Err()
}

// BreakerSummary holds state-transition counts for one breaker.
type BreakerSummary struct {
	Breaker   string `json:"breaker"`
	Opens     int    `json:"opens"`
	HalfOpens int    `json:"half_opens"`
	Closes    int    `json:"closes"`
	LastState string `json:"last_state"`
	LastSeen  string `json:"last_seen"`
}

// QueryBreakerSummaries returns transition counts and the most recent
// recorded state per breaker. A breaker that opens often marks an
// unreliable collaborator.
func QueryBreakerSummaries(database DB, since string) ([]BreakerSummary, error) {
	query := `
		SELECT breaker,
			SUM(CASE WHEN state = 'open' THEN 1 ELSE 0 END) as opens,
			SUM(CASE WHEN state = 'half_open' THEN 1 ELSE 0 END) as half_opens,
			SUM(CASE WHEN state = 'closed' THEN 1 ELSE 0 END) as closes,
			MAX(timestamp) as last_seen
		FROM breaker_events`

	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY breaker ORDER BY breaker`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query breaker summaries: %w", err)
	}
	defer rows.Close()

	var results []BreakerSummary
	for rows.Next() {
		var bs BreakerSummary
		if err := rows.Scan(&bs.Breaker, &bs.Opens, &bs.HalfOpens, &bs.Closes, &bs.LastSeen); err != nil {
			return nil, fmt.Errorf("scan breaker summary: %w", err)
		}
		results = append(results, bs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		var state string
		err := database.Conn().QueryRow(
			`SELECT state FROM breaker_events WHERE breaker = ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
			results[i].Breaker,
		).Scan(&state)
		if err == nil {
			results[i].LastState = state
		}
	}
	return results, nil
}

// GateSummary holds gate decision counts per source.
type GateSummary struct {
	Source   string  `json:"source"`
	Total    int     `json:"total"`
	Approved float64 `json:"approved_pct"`
	AvgScore float64 `json:"avg_score"`
}

// QueryGateSummaries returns how gate decisions split across
// automation, typed human feedback, and the empty-input default.
func QueryGateSummaries(database DB, since string) ([]GateSummary, error) {
	query := `
		SELECT source,
			COUNT(*) as total,
			SUM(CASE WHEN approved = 1 THEN 1 ELSE 0 END) as approved,
			AVG(score) as avg_score
		FROM gate_decisions`

	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY source ORDER BY source`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query gate summaries: %w", err)
	}
	defer rows.Close()

	var results []GateSummary
	for rows.Next() {
		var gs GateSummary
		var approved int
		var avgScore sql.NullFloat64
		if err := rows.Scan(&gs.Source, &gs.Total, &approved, &avgScore); err != nil {
			return nil, fmt.Errorf("scan gate summary: %w", err)
		}
		gs.Approved = pct(approved, gs.Total)
		gs.AvgScore = round1(avgScore.Float64)
		results = append(results, gs)
	}
	return results, rows.Err()
}

// Throughput holds run counts for a time period.
type Throughput struct {
	Period      string  `json:"period"`
	Started     int     `json:"started"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Blocked     int     `json:"blocked"`
	AvgDuration float64 `json:"avg_duration_hours"`
}

// QueryThroughput returns run outcomes grouped by week, newest first.
func QueryThroughput(database DB, since string) ([]Throughput, error) {
	query := `
		SELECT
			strftime('%Y-W%W', timestamp) as period,
			SUM(CASE WHEN event = 'run_started' THEN 1 ELSE 0 END) as started,
			SUM(CASE WHEN event = 'run_completed' THEN 1 ELSE 0 END) as completed,
			SUM(CASE WHEN event = 'run_failed' THEN 1 ELSE 0 END) as failed,
			SUM(CASE WHEN event = 'run_blocked' THEN 1 ELSE 0 END) as blocked
		FROM run_events
		WHERE event IN ('run_started', 'run_completed', 'run_failed', 'run_blocked')`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY period ORDER BY period DESC LIMIT 10`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query throughput: %w", err)
	}
	defer rows.Close()

	var results []Throughput
	for rows.Next() {
		var tp Throughput
		if err := rows.Scan(&tp.Period, &tp.Started, &tp.Completed, &tp.Failed, &tp.Blocked); err != nil {
			return nil, fmt.Errorf("scan throughput: %w", err)
		}
		results = append(results, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Pair each run_started with the same run's run_completed to get
	// the average wall-clock duration for runs finishing in the period.
	for i := range results {
		durQuery := `
			SELECT AVG(
				(julianday(
					(SELECT MIN(re2.timestamp) FROM run_events re2
					 WHERE re2.run_id = re1.run_id AND re2.event = 'run_completed'
					 AND re2.timestamp > re1.timestamp)
				) - julianday(re1.timestamp)) * 24
			) as avg_hours
			FROM run_events re1
			WHERE re1.event = 'run_started'
			AND strftime('%Y-W%W',
				(SELECT MIN(re2.timestamp) FROM run_events re2
				 WHERE re2.run_id = re1.run_id AND re2.event = 'run_completed'
				 AND re2.timestamp > re1.timestamp)
			) = ?`

		var avgHours sql.NullFloat64
		if err := database.Conn().QueryRow(durQuery, results[i].Period).Scan(&avgHours); err == nil && avgHours.Valid {
			results[i].AvgDuration = round1(avgHours.Float64)
		}
	}

	return results, nil
}

// TimelineEvent holds a single event for the run-detail view.
type TimelineEvent struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Event     string `json:"event"`
	Stage     string `json:"stage,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// QueryRunTimeline returns the full merged timeline for one run: run
// events, stage runs, recovery attempts, and gate decisions in
// timestamp order.
func QueryRunTimeline(database DB, runID string) ([]TimelineEvent, error) {
	var results []TimelineEvent

	reRows, err := database.Conn().Query(
		`SELECT timestamp, event, stage, detail
		 FROM run_events WHERE run_id = ? ORDER BY timestamp, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer reRows.Close()

	for reRows.Next() {
		var e TimelineEvent
		var stage, detail sql.NullString
		if err := reRows.Scan(&e.Timestamp, &e.Event, &stage, &detail); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		e.Type = "run"
		e.Stage = stage.String
		e.Detail = detail.String
		results = append(results, e)
	}
	if err := reRows.Err(); err != nil {
		return nil, err
	}

	srRows, err := database.Conn().Query(
		`SELECT timestamp, stage, attempt, success, score, duration_ms
		 FROM stage_runs WHERE run_id = ? ORDER BY timestamp, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer srRows.Close()

	for srRows.Next() {
		var ts, stage string
		var attempt int
		var success bool
		var score, durationMs sql.NullInt64
		if err := srRows.Scan(&ts, &stage, &attempt, &success, &score, &durationMs); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		status := "ok"
		if !success {
			status = "failed"
		}
		results = append(results, TimelineEvent{
			Timestamp: ts,
			Type:      "stage",
			Event:     status,
			Stage:     stage,
			Detail:    fmt.Sprintf("attempt=%d score=%d duration=%dms", attempt, score.Int64, durationMs.Int64),
		})
	}
	if err := srRows.Err(); err != nil {
		return nil, err
	}

	raRows, err := database.Conn().Query(
		`SELECT timestamp, stage, attempt, strategy, confidence, success
		 FROM recovery_attempts WHERE run_id = ? ORDER BY timestamp, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query recovery attempts: %w", err)
	}
	defer raRows.Close()

	for raRows.Next() {
		var ts, stage, strategy string
		var attempt, confidence int
		var success bool
		if err := raRows.Scan(&ts, &stage, &attempt, &strategy, &confidence, &success); err != nil {
			return nil, fmt.Errorf("scan recovery attempt: %w", err)
		}
		status := "applied"
		if !success {
			status = "failed"
		}
		results = append(results, TimelineEvent{
			Timestamp: ts,
			Type:      "recovery",
			Event:     status,
			Stage:     stage,
			Detail:    fmt.Sprintf("strategy=%s attempt=%d confidence=%d", strategy, attempt, confidence),
		})
	}
	if err := raRows.Err(); err != nil {
		return nil, err
	}

	gdRows, err := database.Conn().Query(
		`SELECT timestamp, stage, score, approved, source, feedback
		 FROM gate_decisions WHERE run_id = ? ORDER BY timestamp, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query gate decisions: %w", err)
	}
	defer gdRows.Close()

	for gdRows.Next() {
		var ts, stage, source string
		var score int
		var approved bool
		var feedback sql.NullString
		if err := gdRows.Scan(&ts, &stage, &score, &approved, &source, &feedback); err != nil {
			return nil, fmt.Errorf("scan gate decision: %w", err)
		}
		detail := fmt.Sprintf("source=%s score=%d approved=%t", source, score, approved)
		if feedback.Valid && feedback.String != "" {
			detail += " feedback=" + feedback.String
		}
		results = append(results, TimelineEvent{
			Timestamp: ts,
			Type:      "gate",
			Event:     source,
			Stage:     stage,
			Detail:    detail,
		})
	}
	if err := gdRows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp < results[j].Timestamp
	})
	return results, nil
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return round1(sum / float64(len(values)))
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return round1(sorted[lower])
	}
	weight := rank - float64(lower)
	return round1(sorted[lower]*(1-weight) + sorted[upper]*weight)
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
