// Package decision turns raw oracle text into a well-typed step proposal.
// Validate is total: whatever the oracle returns, including nothing at
// all, it produces a usable proposal, never an error.
package decision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Step kinds a proposal may carry.
const (
	KindCode        = "CODE"
	KindConclude    = "CONCLUDE"
	KindNop         = "NOP"
	KindHumanInLoop = "HUMAN_IN_LOOP"
)

// Origin records how the proposal was obtained from the oracle text.
type Origin string

const (
	// OriginParsed: a well-formed JSON block was found and decoded.
	OriginParsed Origin = "parsed"
	// OriginSalvaged: the JSON block was malformed but a best-effort code
	// fragment was recovered from it.
	OriginSalvaged Origin = "salvaged"
	// OriginFallback: nothing usable was found; the proposal escalates to
	// a human.
	OriginFallback Origin = "fallback"
)

// Proposal is the fully-populated shape of the oracle's next-step
// directive. Every field is defaulted, so callers never see a zero Kind
// or an empty plan.
type Proposal struct {
	StepIndex     int      `json:"step_index"`
	Description   string   `json:"description"`
	Kind          string   `json:"type"`
	Code          string   `json:"code"`
	Conclusion    string   `json:"conclusion"`
	PlanText      []string `json:"plan_text"`
	HumanReason   string   `json:"human_in_loop_reason"`
	HumanMessage  string   `json:"human_in_loop_message"`
	SuggestedPlan []string `json:"suggested_plan"`

	RawText string `json:"-"`
	Origin  Origin `json:"-"`
}

var (
	jsonBlockPattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	bareJSONPattern  = regexp.MustCompile(`(?s)\{.*\}`)
	codeFieldPattern = regexp.MustCompile(`(?s)"code"\s*:\s*"(.*?)"\s*[,}]`)
)

// Validate parses raw oracle output into a Proposal. On a malformed JSON
// block it salvages a code fragment if one can be recovered; when nothing
// usable is found, or an unexpected panic occurs, it falls back to a
// human-in-the-loop proposal with a PLAN_FAILURE reason.
func Validate(raw string) (p Proposal) {
	defer func() {
		if r := recover(); r != nil {
			p = fallback(raw, fmt.Sprintf("unexpected failure while parsing oracle output: %v", r))
		}
	}()

	block := extractJSONBlock(raw)
	if block == "" {
		return fallback(raw, "no JSON block found in oracle output")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(block), &fields); err != nil {
		return salvage(raw, block)
	}

	// Tolerate the nested {"next_step": {...}} shape some prompts elicit.
	if nested, ok := fields["next_step"].(map[string]any); ok {
		delete(fields, "next_step")
		for k, v := range nested {
			fields[k] = v
		}
	}

	p = fromFields(fields)
	p.RawText = clip(raw, 1000)
	p.Origin = OriginParsed
	applyDefaults(&p)
	return p
}

func extractJSONBlock(raw string) string {
	if m := jsonBlockPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	// Accept an unfenced object as a degraded form.
	return bareJSONPattern.FindString(raw)
}

// salvage regex-extracts a best-effort code fragment from a malformed
// JSON block and downgrades the step to CODE, or NOP when no code text
// was present.
func salvage(raw, block string) Proposal {
	code := ""
	if m := codeFieldPattern.FindStringSubmatch(block); m != nil {
		if unquoted, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
			code = unquoted
		} else {
			code = m[1]
		}
	}

	kind := KindNop
	if code != "" {
		kind = KindCode
	}

	p := Proposal{
		Description: "Recovered partial JSON from oracle response.",
		Kind:        kind,
		Code:        code,
		PlanText:    []string{"Step 0: Partial plan recovered due to JSON decode error."},
		RawText:     clip(raw, 1000),
		Origin:      OriginSalvaged,
	}
	applyDefaults(&p)
	return p
}

// PlanFailure builds the human-escalation proposal used when the oracle
// cannot be reached at all, so transport failures and unparseable output
// land on the same code path.
func PlanFailure(reason string) Proposal {
	return fallback("", reason)
}

func fallback(raw, reason string) Proposal {
	p := Proposal{
		Description:  reason,
		Kind:         KindHumanInLoop,
		PlanText:     []string{"Step 0: Failed to parse decision. Human intervention required."},
		HumanReason:  "PLAN_FAILURE",
		HumanMessage: fmt.Sprintf("Failed to parse oracle output: %s. Please provide a valid plan.", reason),
		SuggestedPlan: []string{
			"Step 0: Clarify the query",
			"Step 1: Retry with simpler approach",
		},
		RawText: clip(raw, 1000),
		Origin:  OriginFallback,
	}
	applyDefaults(&p)
	return p
}

func fromFields(fields map[string]any) Proposal {
	var p Proposal
	p.StepIndex = asInt(fields["step_index"])
	p.Description = asString(fields["description"])
	p.Kind = asString(fields["type"])
	p.Code = asString(fields["code"])
	p.Conclusion = asString(fields["conclusion"])
	p.PlanText = asStrings(fields["plan_text"])
	p.HumanReason = asString(fields["human_in_loop_reason"])
	p.HumanMessage = asString(fields["human_in_loop_message"])
	p.SuggestedPlan = asStrings(fields["suggested_plan"])
	return p
}

// applyDefaults fills every required field missing from the oracle's
// response so the orchestrator can always proceed.
func applyDefaults(p *Proposal) {
	if p.StepIndex < 0 {
		p.StepIndex = 0
	}
	if p.Description == "" {
		p.Description = "Missing from LLM response"
	}
	switch p.Kind {
	case KindCode, KindConclude, KindNop, KindHumanInLoop:
	default:
		p.Kind = KindNop
	}
	if len(p.PlanText) == 0 {
		p.PlanText = []string{"Step 0: No valid plan returned by LLM."}
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch v := v.(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return 0
}

func asStrings(v any) []string {
	switch v := v.(type) {
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
