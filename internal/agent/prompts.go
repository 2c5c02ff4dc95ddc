package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// PromptManager resolves oracle prompt templates. A template is read
// from <dir>/<name>.md when present, otherwise the built-in default is
// used, so the binary works without a prompts directory.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

const defaultPlannerPrompt = `You are the planning brain of an autonomous task agent.
Given the context JSON below, return ONE decision as a fenced json block:

` + "```json" + `
{
  "step_index": 0,
  "description": "what this step does",
  "type": "CODE",
  "code": "def solve():\n    result = call_tool('tool_name', {\"arg\": \"value\"})\n    return result",
  "plan_text": ["Step 0: ...", "Step 1: ..."]
}
` + "```" + `

Rules:
- "type" is one of CODE, CONCLUDE, NOP, HUMAN_IN_LOOP.
- CODE steps carry a "code" field: a Starlark routine named solve() taking
  no parameters. Call tools only through call_tool(name, args) with a dict
  of arguments, and return the final value. No imports, no file access,
  no nested function definitions.
- CONCLUDE steps carry a "conclusion" field with the final answer.
- Use NOP when the goal is too ambiguous to act on.
- Use HUMAN_IN_LOOP with "human_in_loop_reason" and "human_in_loop_message"
  when you cannot make progress; include a "suggested_plan" list.
- "plan_text" is the full multi-step plan; one line per step, even when
  only the next step's code is returned.
- Prefer tools marked RELIABLE; avoid tools marked AVOID or FAILING.
- In plan_mode "mid_session", continue the existing plan where it still
  holds and rewrite it where it does not.`

const defaultEvaluatorPrompt = `You are the perception layer of an autonomous task agent.
Judge the snapshot in the context JSON below and return ONLY a fenced json block:

` + "```json" + `
{
  "local_goal_achieved": false,
  "original_goal_achieved": false,
  "reasoning": "one or two sentences",
  "solution_summary": "the final answer, if original_goal_achieved is true"
}
` + "```" + `

- For snapshot_type "user_query": original_goal_achieved is true only when
  the historical context already contains a complete answer.
- For snapshot_type "step_result": local_goal_achieved means this step did
  what its description promised; original_goal_achieved means the user's
  whole goal is now answered by the result.
- Never mark a goal achieved on an error message or empty result.`

// Get returns the template for name, preferring a file override.
func (pm *PromptManager) Get(name, fallback string) string {
	if pm != nil && pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name+".md"))
		if err == nil && len(data) > 0 {
			return string(data)
		}
	}
	return fallback
}

// PlanContext is everything the planner template gets to see.
type PlanContext struct {
	PlanMode          string   `json:"plan_mode"`
	OriginalQuery     string   `json:"original_query"`
	PlanVersion       int      `json:"current_plan_version"`
	CurrentPlan       []string `json:"current_plan,omitempty"`
	CompletedSteps    []string `json:"completed_steps,omitempty"`
	CurrentStep       string   `json:"current_step,omitempty"`
	RecentFailures    []string `json:"recent_failures,omitempty"`
	HistoricalContext string   `json:"historical_context"`
	UserGuidance      string   `json:"user_guidance,omitempty"`
}

// EvalContext is the perception template's input.
type EvalContext struct {
	SnapshotType      string   `json:"snapshot_type"`
	OriginalQuery     string   `json:"original_query"`
	Content           string   `json:"content"`
	CurrentPlan       []string `json:"current_plan,omitempty"`
	HistoricalContext string   `json:"historical_context,omitempty"`
}

// BuildPlanPrompt assembles the planner prompt: template, the tool
// catalogue with live reliability statistics, then the context JSON.
func (pm *PromptManager) BuildPlanPrompt(pc PlanContext, toolDescriptions, perfSummary string) string {
	var b strings.Builder
	b.WriteString(pm.Get("planner", defaultPlannerPrompt))
	b.WriteString("\n\n### The ONLY Available Tools\n\n")
	b.WriteString(toolDescriptions)
	if perfSummary != "" {
		b.WriteString("\n\n")
		b.WriteString(perfSummary)
	}
	b.WriteString("\n\n### Context\n\n```json\n")
	b.WriteString(marshalContext(pc))
	b.WriteString("\n```")
	return b.String()
}

// BuildEvalPrompt assembles the perception prompt.
func (pm *PromptManager) BuildEvalPrompt(ec EvalContext) string {
	var b strings.Builder
	b.WriteString(pm.Get("evaluator", defaultEvaluatorPrompt))
	b.WriteString("\n\n### Snapshot\n\n```json\n")
	b.WriteString(marshalContext(ec))
	b.WriteString("\n```")
	return b.String()
}

func marshalContext(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
