package pipeline

import "time"

// State is the immutable snapshot of everything flowing through one
// pipeline run. Every With method returns a new value sharing the
// untouched fields; nothing mutates a State in place, so concurrent
// readers never observe a partial update. The caller discards the old
// value after a With call.
type State struct {
	Ticket Ticket `json:"ticket"`

	GeneratedCode  string `json:"generated_code,omitempty"`
	GeneratedTests string `json:"generated_tests,omitempty"`
	MethodName     string `json:"method_name,omitempty"`
	CommandID      string `json:"command_id,omitempty"`

	CodeFiles []FileRef `json:"code_files,omitempty"`
	TestFiles []FileRef `json:"test_files,omitempty"`

	Validation        *ValidationResult  `json:"validation,omitempty"`
	ValidationHistory []ValidationRecord `json:"validation_history,omitempty"`

	BuildErrors []string `json:"build_errors,omitempty"`
	TestErrors  []string `json:"test_errors,omitempty"`

	RecoveryStrategy    RecoveryStrategy `json:"recovery_strategy,omitempty"`
	RecoveryAttempt     int              `json:"recovery_attempt"`
	RecoveryConfidence  float64          `json:"recovery_confidence"`
	RecoveryExplanation string           `json:"recovery_explanation,omitempty"`

	Feedback map[string]string `json:"feedback,omitempty"`
}

// NewState creates the initial state for a ticket. Recovery confidence
// starts at 100: nothing has gone wrong yet.
func NewState(ticket Ticket) State {
	return State{
		Ticket:             ticket,
		RecoveryConfidence: 100,
	}
}

// WithTicket replaces the ticket fields, e.g. after refinement.
func (s State) WithTicket(t Ticket) State {
	s.Ticket = t
	return s
}

// WithContextFiles records the relevant source and test files.
func (s State) WithContextFiles(code, tests []FileRef) State {
	s.CodeFiles = code
	s.TestFiles = tests
	return s
}

// WithCode sets the generated code and its identifiers. Empty method
// name or command id leave the previous values in place.
func (s State) WithCode(code, methodName, commandID string) State {
	s.GeneratedCode = code
	if methodName != "" {
		s.MethodName = methodName
	}
	if commandID != "" {
		s.CommandID = commandID
	}
	return s
}

// WithTests sets the generated tests.
func (s State) WithTests(tests string) State {
	s.GeneratedTests = tests
	return s
}

// WithValidation sets the current validation summary.
func (s State) WithValidation(result ValidationResult) State {
	r := result
	s.Validation = &r
	return s
}

// WithValidationHistory appends records to the history. The receiver's
// slice is never mutated; the new state gets its own backing array.
func (s State) WithValidationHistory(records ...ValidationRecord) State {
	history := make([]ValidationRecord, 0, len(s.ValidationHistory)+len(records))
	history = append(history, s.ValidationHistory...)
	history = append(history, records...)
	s.ValidationHistory = history
	return s
}

// RecordValidation is WithValidation plus a timestamped history entry
// for the given stage.
func (s State) RecordValidation(stage string, result ValidationResult) State {
	return s.WithValidation(result).WithValidationHistory(ValidationRecord{
		Stage:      stage,
		Result:     result,
		RecordedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// WithCheckErrors records build and test failures from the build/test
// stage. Passing two empty slices clears them.
func (s State) WithCheckErrors(buildErrors, testErrors []string) State {
	s.BuildErrors = buildErrors
	s.TestErrors = testErrors
	return s
}

// WithRecoveryStrategy selects the automatic-recovery strategy.
func (s State) WithRecoveryStrategy(strategy RecoveryStrategy) State {
	s.RecoveryStrategy = strategy
	return s
}

// WithRecoveryUpdate increments the recovery attempt counter and
// overwrites the confidence and explanation. The attempt count only
// ever increases within a run.
func (s State) WithRecoveryUpdate(confidence float64, explanation string) State {
	s.RecoveryAttempt++
	s.RecoveryConfidence = confidence
	s.RecoveryExplanation = explanation
	return s
}

// WithFeedback merges feedback entries into a fresh map.
func (s State) WithFeedback(data map[string]string) State {
	merged := make(map[string]string, len(s.Feedback)+len(data))
	for k, v := range s.Feedback {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	s.Feedback = merged
	return s
}

// AuditTrail returns a copy of the validation history. Mutating the
// returned slice cannot affect the state.
func (s State) AuditTrail() []ValidationRecord {
	trail := make([]ValidationRecord, len(s.ValidationHistory))
	copy(trail, s.ValidationHistory)
	return trail
}

// Score returns the current validation score, or 0 when no validation
// has run yet.
func (s State) Score() float64 {
	if s.Validation == nil {
		return 0
	}
	return s.Validation.Score
}

// CheckErrorCount is the combined number of recorded build and test
// errors, as consulted by the failure-recovery router.
func (s State) CheckErrorCount() int {
	return len(s.BuildErrors) + len(s.TestErrors)
}
