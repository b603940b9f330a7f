package pipeline

import (
	"encoding/json"
	"reflect"
	"testing"
)

func sampleTicket() Ticket {
	return Ticket{
		URL:                "https://github.com/example/app/issues/7",
		Title:              "Add export command",
		Description:        "Users need CSV export",
		Requirements:       []string{"export to CSV", "respect filters"},
		AcceptanceCriteria: []string{"file downloads", "columns match view"},
	}
}

func TestWithCodeDoesNotMutateReceiver(t *testing.T) {
	old := NewState(sampleTicket())
	newState := old.WithCode("func Export() {}", "Export", "cmd-1")

	if old.GeneratedCode != "" {
		t.Errorf("receiver mutated: GeneratedCode = %q", old.GeneratedCode)
	}
	if newState.GeneratedCode != "func Export() {}" {
		t.Errorf("GeneratedCode = %q", newState.GeneratedCode)
	}
	if newState.MethodName != "Export" || newState.CommandID != "cmd-1" {
		t.Errorf("identifiers = %q/%q", newState.MethodName, newState.CommandID)
	}

	// Untouched fields are equal between old and new.
	if !reflect.DeepEqual(old.Ticket, newState.Ticket) {
		t.Error("Ticket should be untouched")
	}
	if old.RecoveryConfidence != newState.RecoveryConfidence {
		t.Error("RecoveryConfidence should be untouched")
	}
}

func TestWithCodeKeepsIdentifiersWhenEmpty(t *testing.T) {
	s := NewState(sampleTicket()).WithCode("v1", "Export", "cmd-1")
	s = s.WithCode("v2", "", "")

	if s.MethodName != "Export" || s.CommandID != "cmd-1" {
		t.Errorf("identifiers lost on re-generation: %q/%q", s.MethodName, s.CommandID)
	}
	if s.GeneratedCode != "v2" {
		t.Errorf("GeneratedCode = %q, want v2", s.GeneratedCode)
	}
}

func TestValidationHistoryAppendOnly(t *testing.T) {
	s := NewState(sampleTicket())

	s1 := s.WithValidationHistory(ValidationRecord{Stage: "generate", RecordedAt: "2026-01-01T00:00:00Z"})
	s2 := s1.WithValidationHistory(ValidationRecord{Stage: "build-test", RecordedAt: "2026-01-01T00:01:00Z"})

	if len(s.ValidationHistory) != 0 {
		t.Error("original state history grew")
	}
	if len(s1.ValidationHistory) != 1 || len(s2.ValidationHistory) != 2 {
		t.Fatalf("history lengths = %d, %d; want 1, 2", len(s1.ValidationHistory), len(s2.ValidationHistory))
	}
	if s2.ValidationHistory[0].Stage != "generate" || s2.ValidationHistory[1].Stage != "build-test" {
		t.Error("history order not preserved")
	}

	// Appending to s1 again must not leak into s2's backing array.
	s3 := s1.WithValidationHistory(ValidationRecord{Stage: "other"})
	if s2.ValidationHistory[1].Stage != "build-test" {
		t.Error("sibling state corrupted s2's history")
	}
	_ = s3
}

func TestAuditTrailIsACopy(t *testing.T) {
	s := NewState(sampleTicket()).WithValidationHistory(ValidationRecord{Stage: "generate"})

	trail := s.AuditTrail()
	trail[0].Stage = "tampered"

	if s.ValidationHistory[0].Stage != "generate" {
		t.Error("mutating the audit trail changed the state")
	}
}

func TestWithRecoveryUpdateMonotonic(t *testing.T) {
	s := NewState(sampleTicket())

	s = s.WithRecoveryUpdate(72.5, "patched missing import")
	s = s.WithRecoveryUpdate(55, "second pass")

	if s.RecoveryAttempt != 2 {
		t.Errorf("RecoveryAttempt = %d, want 2", s.RecoveryAttempt)
	}
	if s.RecoveryConfidence != 55 {
		t.Errorf("RecoveryConfidence = %v, want 55", s.RecoveryConfidence)
	}
	if s.RecoveryExplanation != "second pass" {
		t.Errorf("RecoveryExplanation = %q", s.RecoveryExplanation)
	}
}

func TestWithFeedbackMergesIntoFreshMap(t *testing.T) {
	s := NewState(sampleTicket()).WithFeedback(map[string]string{"human": "looks fine"})
	s2 := s.WithFeedback(map[string]string{"auto": "approved"})

	if len(s.Feedback) != 1 {
		t.Error("original feedback map mutated")
	}
	if s2.Feedback["human"] != "looks fine" || s2.Feedback["auto"] != "approved" {
		t.Errorf("merged feedback = %v", s2.Feedback)
	}
}

func TestNewValidationResult(t *testing.T) {
	r := NewValidationResult(85, nil, []string{"unused import"})
	if !r.Success {
		t.Error("no errors should mean success")
	}

	r = NewValidationResult(40, []string{"TS2304: cannot find name"}, nil)
	if r.Success {
		t.Error("errors should mean failure")
	}
	if r.Score != 40 {
		t.Errorf("Score = %v, want 40", r.Score)
	}
}

func TestScoreAndCheckErrorCount(t *testing.T) {
	s := NewState(sampleTicket())
	if s.Score() != 0 {
		t.Errorf("Score with no validation = %v, want 0", s.Score())
	}

	s = s.WithValidation(NewValidationResult(60, []string{"e1"}, nil))
	s = s.WithCheckErrors([]string{"build: undefined symbol"}, []string{"test: want 2 got 3"})

	if s.Score() != 60 {
		t.Errorf("Score = %v, want 60", s.Score())
	}
	if s.CheckErrorCount() != 2 {
		t.Errorf("CheckErrorCount = %d, want 2", s.CheckErrorCount())
	}
}

func TestStateJSONRoundTrip(t *testing.T) {
	s := NewState(sampleTicket()).
		WithCode("code", "Run", "cmd-9").
		WithTests("tests").
		WithContextFiles([]FileRef{{Path: "a.go", Content: "package a"}}, []FileRef{{Path: "a_test.go", Content: "package a"}}).
		WithValidation(NewValidationResult(91, nil, []string{"w"})).
		WithValidationHistory(
			ValidationRecord{Stage: "generate", Result: NewValidationResult(70, []string{"e"}, nil), RecordedAt: "2026-01-01T00:00:00Z"},
			ValidationRecord{Stage: "build-test", Result: NewValidationResult(91, nil, nil), RecordedAt: "2026-01-01T00:05:00Z"},
		).
		WithCheckErrors([]string{"b1"}, []string{"t1"}).
		WithRecoveryStrategy(StrategyBuildTest).
		WithRecoveryUpdate(66, "why").
		WithFeedback(map[string]string{"human": "ok"})

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got State
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !reflect.DeepEqual(s, got) {
		t.Errorf("round trip mismatch:\n old: %+v\n new: %+v", s, got)
	}
	if len(got.ValidationHistory) != 2 || got.ValidationHistory[0].Stage != "generate" {
		t.Error("history order lost in round trip")
	}
}
