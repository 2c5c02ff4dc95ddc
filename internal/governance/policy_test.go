package governance

import (
	"strings"
	"testing"
)

func TestDefaultPolicyEngine_AllowsPlainCode(t *testing.T) {
	engine := NewDefaultPolicyEngine()

	code := `def solve():
    result = call_tool('search', {"query": "weather in Paris"})
    return result`

	res := engine.Evaluate(code)
	if res.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s (%s)", res.Effect, res.Reason)
	}
}

func TestDefaultPolicyEngine_DeniesUnsafePatterns(t *testing.T) {
	engine := NewDefaultPolicyEngine()

	bad := []string{
		`def solve(): return open("../../etc/passwd")`,
		`def solve(): return "<script>alert(1)</script>"`,
		`def solve(): return "</script>"`,
		`def solve(): return call_tool('db', {"q": "DELETE FROM users"})`,
		`def solve(): return call_tool('db', {"q": "drop table sessions"})`,
		`def solve(): return call_tool('shell', {"cmd": "rm -rf /"})`,
		`def solve(): return eval("1+1")`,
		`def solve(): return exec("print(1)")`,
		`def solve(): return compile("x", "f", "eval")`,
		`def solve(): __import__("os")`,
		`def solve(): system("ls")`,
		`def solve(): popen("ls")`,
		`def solve(): return call_tool('db', {"q": "Delete From accounts"})`, // case-insensitive
	}
	for _, code := range bad {
		res := engine.Evaluate(code)
		if res.Effect != EffectDeny {
			t.Errorf("Expected EffectDeny for %q, got %s", code, res.Effect)
		}
		if res.Reason == "" {
			t.Errorf("Deny verdict for %q carries no reason", code)
		}
	}
}

func TestDefaultPolicyEngine_DenyPattern(t *testing.T) {
	engine := NewDefaultPolicyEngine()

	if err := engine.DenyPattern(`curl\s+`); err != nil {
		t.Fatalf("DenyPattern failed: %v", err)
	}
	if err := engine.DenyPattern(`[invalid`); err == nil {
		t.Error("Expected error for invalid pattern")
	}

	res := engine.Evaluate(`def solve(): return call_tool('shell', {"cmd": "curl http://x"})`)
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny for custom pattern, got %s", res.Effect)
	}
	if !strings.Contains(res.Reason, "curl") {
		t.Errorf("Reason should name the matched pattern, got %q", res.Reason)
	}
}

func TestDefaultPolicyEngine_EvalPatternMatchesSubstrings(t *testing.T) {
	// The eval( pattern intentionally matches any call ending in "eval",
	// so identifiers like retrieval() are denied too. Documented behavior.
	engine := NewDefaultPolicyEngine()
	res := engine.Evaluate(`def solve(): return retrieval("x")`)
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res.Effect)
	}
}
