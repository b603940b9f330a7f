// Package stages holds the concrete stage executors and the default
// pipeline wiring: fetch -> refine -> generate -> integrate ->
// build_test -> (recover loop | human_gate) -> review -> done.
package stages

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Stage names used as graph nodes and breaker names.
const (
	StageFetch     = "fetch"
	StageRefine    = "refine"
	StageGenerate  = "generate"
	StageIntegrate = "integrate"
	StageBuildTest = "build_test"
	StageRecover   = "recover"
	StageHumanGate = "human_gate"
	StageReview    = "review"
)

// decodeModelJSON unmarshals a model response into out, tolerating a
// markdown code fence around the JSON object.
func decodeModelJSON(response string, out interface{}) error {
	text := strings.TrimSpace(response)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	// Models sometimes wrap the object in prose; cut to the outermost braces.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

// joinList renders a string slice as markdown bullets for templates.
func joinList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
