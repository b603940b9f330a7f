package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_SimpleVars(t *testing.T) {
	tmpl := "Fixing {{title}} on attempt {{attempt}}."
	result, err := Render(tmpl, Vars{"title": "login bug", "attempt": "2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Fixing login bug on attempt 2." {
		t.Errorf("got %q", result)
	}
}

func TestRender_MissingVar(t *testing.T) {
	_, err := Render("{{title}} / {{attempt}}", Vars{"title": "x"})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "attempt") {
		t.Errorf("error should mention missing variable, got: %v", err)
	}
}

func TestRender_ConditionalPresent(t *testing.T) {
	tmpl := "Start.{{#if errors}}\nErrors: {{errors}}\n{{/if}}End."
	result, err := Render(tmpl, Vars{"errors": "two failures"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "Errors: two failures") {
		t.Errorf("conditional body missing: %q", result)
	}
}

func TestRender_ConditionalAbsent(t *testing.T) {
	tmpl := "Start.{{#if errors}}Errors: {{errors}}{{/if}}End."
	result, err := Render(tmpl, Vars{"errors": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Start.End." {
		t.Errorf("got %q", result)
	}
}

func TestRender_NestedConditionals(t *testing.T) {
	tmpl := "{{#if a}}A{{#if b}}B{{/if}}{{/if}}"
	result, err := Render(tmpl, Vars{"a": "1", "b": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "A" {
		t.Errorf("got %q", result)
	}
}

func TestRender_DanglingClose(t *testing.T) {
	if _, err := Render("text {{/if}}", Vars{}); err == nil {
		t.Error("expected error for dangling close tag")
	}
}

func TestRender_UnclosedBlock(t *testing.T) {
	if _, err := Render("{{#if a}}never closed", Vars{"a": "1"}); err == nil {
		t.Error("expected error for unclosed block")
	}
}

func TestLoad_Builtin(t *testing.T) {
	tmpl, err := Load("fix.md", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(tmpl, "{{build_errors}}") {
		t.Error("fix template should reference build_errors")
	}
}

func TestLoad_Unknown(t *testing.T) {
	if _, err := Load("nope.md", ""); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestLoad_OverrideWins(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fix.md"), []byte("custom {{attempt}}"), 0644); err != nil {
		t.Fatal(err)
	}
	tmpl, err := Load("fix.md", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl != "custom {{attempt}}" {
		t.Errorf("got %q", tmpl)
	}
}

func TestLoad_EscapeRejected(t *testing.T) {
	if _, err := Load("../../etc/passwd", t.TempDir()); err == nil {
		t.Error("expected error for path escaping the override directory")
	}
}

func TestBuiltinsRender(t *testing.T) {
	// Each builtin must render cleanly with a full variable set.
	vars := Vars{
		"ticket_url": "u", "ticket_body": "b", "title": "t",
		"description": "d", "requirements": "r", "acceptance_criteria": "a",
		"context_files": "", "feedback": "", "code": "c", "tests": "",
		"build_errors": "be", "test_errors": "te", "attempt": "1",
	}
	for _, name := range Names() {
		tmpl, err := Load(name, "")
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if _, err := Render(tmpl, vars); err != nil {
			t.Errorf("render %s: %v", name, err)
		}
	}
}
