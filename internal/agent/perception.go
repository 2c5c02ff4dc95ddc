package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var snapshotBlockPattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// ParseSnapshot extracts an EvaluationSnapshot from raw oracle output.
// It is total: malformed output degrades to a zero snapshot whose
// reasoning carries the raw text, which the loop treats as "not
// achieved" and replans from.
func ParseSnapshot(raw string) EvaluationSnapshot {
	candidate := raw
	if m := snapshotBlockPattern.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	} else {
		// Some models return bare JSON without a fence.
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start >= 0 && end > start {
			candidate = raw[start : end+1]
		}
	}

	var snap EvaluationSnapshot
	if err := json.Unmarshal([]byte(candidate), &snap); err != nil {
		return EvaluationSnapshot{
			Reasoning: "unparseable oracle evaluation: " + truncate(raw, 300),
		}
	}
	if snap.Reasoning == "" {
		snap.Reasoning = "no reasoning provided"
	}
	// A claim that the whole goal is done implies the local one is too.
	if snap.OriginalGoalAchieved {
		snap.LocalGoalAchieved = true
	}
	return snap
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
