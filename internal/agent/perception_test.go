package agent

import (
	"strings"
	"testing"
)

func TestParseSnapshot_FencedBlock(t *testing.T) {
	raw := "Evaluation:\n```json\n" + `{"local_goal_achieved": true, "original_goal_achieved": false, "reasoning": "step ok"}` + "\n```"

	snap := ParseSnapshot(raw)
	if !snap.LocalGoalAchieved || snap.OriginalGoalAchieved {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
	if snap.Reasoning != "step ok" {
		t.Errorf("Reasoning lost: %q", snap.Reasoning)
	}
}

func TestParseSnapshot_BareJSON(t *testing.T) {
	raw := `The result: {"local_goal_achieved": true, "original_goal_achieved": true, "reasoning": "done", "solution_summary": "42"} end`

	snap := ParseSnapshot(raw)
	if !snap.OriginalGoalAchieved || snap.SolutionSummary != "42" {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
}

func TestParseSnapshot_MalformedDegradesToNotAchieved(t *testing.T) {
	for _, raw := range []string{"", "not json at all", "{broken", "```json\n{]\n```"} {
		snap := ParseSnapshot(raw)
		if snap.LocalGoalAchieved || snap.OriginalGoalAchieved {
			t.Errorf("Malformed input %q must not claim achievement", raw)
		}
		if snap.Reasoning == "" {
			t.Errorf("Malformed input %q should carry a reasoning", raw)
		}
	}
}

func TestParseSnapshot_OriginalImpliesLocal(t *testing.T) {
	raw := `{"local_goal_achieved": false, "original_goal_achieved": true, "reasoning": "overall done"}`

	snap := ParseSnapshot(raw)
	if !snap.LocalGoalAchieved {
		t.Error("original_goal_achieved should imply local_goal_achieved")
	}
}

func TestParseSnapshot_LongGarbageTruncated(t *testing.T) {
	snap := ParseSnapshot(strings.Repeat("x", 10000))
	if len(snap.Reasoning) > 400 {
		t.Errorf("Reasoning should be truncated, got %d bytes", len(snap.Reasoning))
	}
}
