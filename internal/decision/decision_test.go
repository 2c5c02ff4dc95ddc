package decision

import (
	"strings"
	"testing"
)

func TestValidate_WellFormedFencedBlock(t *testing.T) {
	raw := "Here is my decision:\n```json\n" + `{
  "step_index": 2,
  "description": "Look up the price",
  "type": "CODE",
  "code": "def solve():\n    return call_tool('stock_price', {\"symbol\": \"ACME\"})",
  "plan_text": ["Step 0: done", "Step 1: done", "Step 2: look up the price"]
}` + "\n```\nDone."

	p := Validate(raw)
	if p.Origin != OriginParsed {
		t.Fatalf("Expected parsed origin, got %s", p.Origin)
	}
	if p.StepIndex != 2 || p.Kind != KindCode {
		t.Errorf("Unexpected proposal: index=%d kind=%s", p.StepIndex, p.Kind)
	}
	if !strings.Contains(p.Code, "def solve():") {
		t.Errorf("Code not decoded: %q", p.Code)
	}
	if len(p.PlanText) != 3 {
		t.Errorf("Expected 3 plan lines, got %v", p.PlanText)
	}
}

func TestValidate_BareJSONWithoutFence(t *testing.T) {
	raw := `{"type": "CONCLUDE", "conclusion": "The answer is 4", "description": "conclude", "plan_text": ["Step 0: conclude"]}`

	p := Validate(raw)
	if p.Origin != OriginParsed {
		t.Fatalf("Expected parsed origin, got %s", p.Origin)
	}
	if p.Kind != KindConclude || p.Conclusion != "The answer is 4" {
		t.Errorf("Unexpected proposal: %+v", p)
	}
}

func TestValidate_NestedNextStepFlattened(t *testing.T) {
	raw := "```json\n" + `{"plan_text": ["Step 0: x"], "next_step": {"type": "CODE", "code": "def solve():\n    return 1", "description": "x"}}` + "\n```"

	p := Validate(raw)
	if p.Kind != KindCode {
		t.Errorf("Nested step not flattened: kind=%s", p.Kind)
	}
	if !strings.Contains(p.Code, "return 1") {
		t.Errorf("Nested code lost: %q", p.Code)
	}
}

func TestValidate_SalvagesCodeFromBrokenJSON(t *testing.T) {
	// Trailing comma makes the block undecodable, but the code field is
	// still recoverable.
	raw := "```json\n" + `{"type": "CODE", "code": "def solve():\n    return call_tool('search', {})", "oops":,}` + "\n```"

	p := Validate(raw)
	if p.Origin != OriginSalvaged {
		t.Fatalf("Expected salvaged origin, got %s", p.Origin)
	}
	if p.Kind != KindCode {
		t.Errorf("Salvaged proposal should be CODE, got %s", p.Kind)
	}
	if !strings.Contains(p.Code, "def solve():") || !strings.Contains(p.Code, "\n") {
		t.Errorf("Escapes not decoded in salvaged code: %q", p.Code)
	}
}

func TestValidate_SalvageWithoutCodeIsNop(t *testing.T) {
	raw := "```json\n" + `{"type": "CODE", "description": "broken",}` + "\n```"

	p := Validate(raw)
	if p.Origin != OriginSalvaged {
		t.Fatalf("Expected salvaged origin, got %s", p.Origin)
	}
	if p.Kind != KindNop {
		t.Errorf("Codeless salvage should be NOP, got %s", p.Kind)
	}
}

func TestValidate_TotalOverArbitraryInput(t *testing.T) {
	inputs := []string{
		"",
		"no json here at all",
		"```json\n```",
		"{",
		strings.Repeat("x", 100000),
		"```json\n[1, 2, 3]\n```",
		"\x00\xff garbage bytes",
	}
	for _, raw := range inputs {
		p := Validate(raw)
		if p.Kind == "" {
			t.Errorf("Zero kind for input %.40q", raw)
		}
		if p.Description == "" {
			t.Errorf("Zero description for input %.40q", raw)
		}
		if len(p.PlanText) == 0 {
			t.Errorf("Empty plan for input %.40q", raw)
		}
	}
}

func TestValidate_FallbackEscalates(t *testing.T) {
	p := Validate("the model rambled and produced nothing structured")
	if p.Origin != OriginFallback {
		t.Fatalf("Expected fallback origin, got %s", p.Origin)
	}
	if p.Kind != KindHumanInLoop {
		t.Errorf("Fallback must escalate, got %s", p.Kind)
	}
	if p.HumanReason != "PLAN_FAILURE" {
		t.Errorf("Expected PLAN_FAILURE, got %q", p.HumanReason)
	}
	if len(p.SuggestedPlan) == 0 {
		t.Error("Fallback should suggest a plan")
	}
}

func TestValidate_DefaultsApplied(t *testing.T) {
	raw := "```json\n" + `{"type": "WEIRD", "step_index": -4}` + "\n```"

	p := Validate(raw)
	if p.Kind != KindNop {
		t.Errorf("Unknown kind should default to NOP, got %s", p.Kind)
	}
	if p.StepIndex != 0 {
		t.Errorf("Negative index should clamp to 0, got %d", p.StepIndex)
	}
	if p.Description != "Missing from LLM response" {
		t.Errorf("Unexpected default description: %q", p.Description)
	}
	if p.PlanText[0] != "Step 0: No valid plan returned by LLM." {
		t.Errorf("Unexpected default plan: %v", p.PlanText)
	}
}

func TestPlanFailure(t *testing.T) {
	p := PlanFailure("oracle unavailable: connection refused")
	if p.Kind != KindHumanInLoop || p.HumanReason != "PLAN_FAILURE" {
		t.Errorf("Unexpected proposal: %+v", p)
	}
	if !strings.Contains(p.HumanMessage, "connection refused") {
		t.Errorf("Reason not surfaced: %q", p.HumanMessage)
	}
}

func TestValidate_RawTextClipped(t *testing.T) {
	raw := strings.Repeat("a", 5000)
	p := Validate(raw)
	if len(p.RawText) > 1000 {
		t.Errorf("RawText not clipped: %d bytes", len(p.RawText))
	}
}
