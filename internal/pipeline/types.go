package pipeline

// Ticket holds the refined ticket a run was started from.
type Ticket struct {
	URL                string   `json:"url"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Requirements       []string `json:"requirements,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
}

// FileRef is a source or test file pulled in as generation context.
type FileRef struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ValidationResult summarises one validation pass over generated
// artifacts. Success means no errors were found; Score is 0-100.
type ValidationResult struct {
	Success  bool     `json:"success"`
	Score    float64  `json:"score"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidationResult derives a summary from a raw score and issue
// lists. Success is having no errors.
func NewValidationResult(score float64, errors, warnings []string) ValidationResult {
	return ValidationResult{
		Success:  len(errors) == 0,
		Score:    score,
		Errors:   errors,
		Warnings: warnings,
	}
}

// ValidationRecord is one append-only history entry. RecordedAt is
// RFC3339 so snapshots round-trip byte-stable through JSON.
type ValidationRecord struct {
	Stage      string           `json:"stage,omitempty"`
	Result     ValidationResult `json:"result"`
	RecordedAt string           `json:"recorded_at"`
}

// RecoveryStrategy selects how automatic recovery proceeds. The set is
// closed: anything outside it is treated as unknown by the dispatcher,
// never string-matched.
type RecoveryStrategy string

const (
	// StrategyNone disables automatic recovery for the run.
	StrategyNone RecoveryStrategy = ""
	// StrategyBuildTest re-prompts for fixes from build/test errors.
	StrategyBuildTest RecoveryStrategy = "build_test"
)

// Run statuses, mirrored into run.json by the store.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusBlocked    = "blocked"
)
