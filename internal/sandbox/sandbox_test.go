package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rahul/cortex/internal/governance"
)

// fakeGateway scripts tool responses for executor tests.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []string
	respond func(tool, argsJSON string) (string, error)
}

func (f *fakeGateway) Invoke(ctx context.Context, tool string, argsJSON string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, tool)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(tool, argsJSON)
	}
	return "ok", nil
}

func newExecutor(limits Limits) *Executor {
	return NewExecutor(governance.NewDefaultPolicyEngine(), limits)
}

func TestExecute_Success(t *testing.T) {
	gw := &fakeGateway{
		respond: func(tool, argsJSON string) (string, error) {
			var args map[string]any
			if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
				return "", err
			}
			if tool != "add" {
				return "", fmt.Errorf("unknown tool %s", tool)
			}
			return fmt.Sprintf("%v", args["a"].(float64)+args["b"].(float64)), nil
		},
	}

	code := `def solve():
    result = call_tool('add', {"a": 2, "b": 2})
    return result`

	res := newExecutor(DefaultLimits()).Execute(context.Background(), code, gw)
	if res.Status != StatusSuccess {
		t.Fatalf("Expected success, got %s (%s)", res.Status, res.Error)
	}
	if res.Output != "4" {
		t.Errorf("Expected output 4, got %q", res.Output)
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "add" {
		t.Errorf("Expected ToolsUsed [add], got %v", res.ToolsUsed)
	}
}

func TestExecute_StructuredToolResult(t *testing.T) {
	gw := &fakeGateway{
		respond: func(tool, argsJSON string) (string, error) {
			return `{"symbol": "ACME", "price": 41.5, "tags": ["fast", "cheap"]}`, nil
		},
	}

	code := `def solve():
    quote = call_tool('stock_quote', {"symbol": "ACME"})
    return quote["symbol"] + " " + quote["tags"][1]`

	res := newExecutor(DefaultLimits()).Execute(context.Background(), code, gw)
	if res.Status != StatusSuccess {
		t.Fatalf("Expected success, got %s (%s)", res.Status, res.Error)
	}
	if res.Output != "ACME cheap" {
		t.Errorf("Expected output from indexed fields, got %q", res.Output)
	}
}

func TestExecute_ScalarToolResultStaysString(t *testing.T) {
	gw := &fakeGateway{
		respond: func(tool, argsJSON string) (string, error) {
			return "42", nil
		},
	}

	// String concatenation fails on non-strings, so this also pins the type.
	code := `def solve():
    return call_tool('echo', {}) + "!"`

	res := newExecutor(DefaultLimits()).Execute(context.Background(), code, gw)
	if res.Status != StatusSuccess {
		t.Fatalf("Expected success, got %s (%s)", res.Status, res.Error)
	}
	if res.Output != "42!" {
		t.Errorf("Expected 42!, got %q", res.Output)
	}
}

func TestExecute_PolicyViolationNeverRuns(t *testing.T) {
	gw := &fakeGateway{}
	code := `def solve():
    return call_tool('shell', {"cmd": "rm -rf /tmp/x"})`

	res := newExecutor(DefaultLimits()).Execute(context.Background(), code, gw)
	if res.Status != StatusPolicyViolation {
		t.Fatalf("Expected policy_violation, got %s", res.Status)
	}
	if !strings.Contains(res.Output, "unsafe code patterns") {
		t.Errorf("Unexpected output: %q", res.Output)
	}
	if len(gw.calls) != 0 {
		t.Errorf("Denied code must not reach the gateway, got calls %v", gw.calls)
	}
}

func TestExecute_LintViolation(t *testing.T) {
	code := `def solve(query):
    return query`

	res := newExecutor(DefaultLimits()).Execute(context.Background(), code, &fakeGateway{})
	if res.Status != StatusPolicyViolation {
		t.Fatalf("Expected policy_violation, got %s", res.Status)
	}
	if !strings.Contains(res.Output, "validation failed") {
		t.Errorf("Unexpected output: %q", res.Output)
	}
}

func TestExecute_StaticToolLimits(t *testing.T) {
	code := `def solve():
    a = call_tool('search', {"q": "1"})
    b = call_tool('search', {"q": "2"})
    c = call_tool('search', {"q": "3"})
    return a + b + c`

	gw := &fakeGateway{}
	res := newExecutor(DefaultLimits()).Execute(context.Background(), code, gw)
	if res.Status != StatusPolicyViolation {
		t.Fatalf("Expected policy_violation, got %s", res.Status)
	}
	if len(gw.calls) != 0 {
		t.Errorf("Over-limit code must not reach the gateway, got calls %v", gw.calls)
	}
}

func TestExecute_RuntimeQuota(t *testing.T) {
	limits := DefaultLimits()
	limits.ToolCallQuota = 3
	limits.RepeatLimit = 0 // single call site, exercise the runtime counter

	code := `def solve():
    out = []
    for i in range(5):
        out.append(call_tool('echo', {"i": i}))
    return out`

	gw := &fakeGateway{}
	res := newExecutor(limits).Execute(context.Background(), code, gw)
	if res.Status != StatusError {
		t.Fatalf("Expected error, got %s (%q)", res.Status, res.Output)
	}
	if !strings.Contains(res.Error, "exceeded max tool calls") {
		t.Errorf("Unexpected error: %q", res.Error)
	}
	// The quota check fires on the call after the limit.
	if len(gw.calls) != 3 {
		t.Errorf("Expected 3 gateway calls before the quota tripped, got %d", len(gw.calls))
	}
}

func TestExecute_Timeout(t *testing.T) {
	limits := DefaultLimits()
	limits.Timeout = 50 * time.Millisecond

	gw := &fakeGateway{
		respond: func(tool, argsJSON string) (string, error) {
			time.Sleep(500 * time.Millisecond)
			return "", context.DeadlineExceeded
		},
	}

	code := `def solve():
    return call_tool('slow', {})`

	res := newExecutor(limits).Execute(context.Background(), code, gw)
	if res.Status != StatusTimeout {
		t.Fatalf("Expected timeout, got %s (%q)", res.Status, res.Output)
	}
	if res.Output != "[sandbox error: execution timeout]" {
		t.Errorf("Unexpected output: %q", res.Output)
	}
}

func TestExecute_ExecutionStepCeiling(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxExecutionSteps = 1000

	code := `def solve():
    total = 0
    for i in range(1000000):
        total += i
    return total`

	res := newExecutor(limits).Execute(context.Background(), code, &fakeGateway{})
	if res.Status != StatusError && res.Status != StatusTimeout {
		t.Fatalf("Expected error for runaway loop, got %s", res.Status)
	}
}

func TestExecute_ToolErrorIsFolded(t *testing.T) {
	gw := &fakeGateway{
		respond: func(tool, argsJSON string) (string, error) {
			return "", fmt.Errorf("connection refused")
		},
	}

	code := `def solve():
    return call_tool('search', {"q": "x"})`

	res := newExecutor(DefaultLimits()).Execute(context.Background(), code, gw)
	if res.Status != StatusError {
		t.Fatalf("Expected error, got %s", res.Status)
	}
	if !strings.Contains(res.Output, "connection refused") {
		t.Errorf("Tool error should surface in output, got %q", res.Output)
	}
	// Tools attempted before the failure are still reported.
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "search" {
		t.Errorf("Expected ToolsUsed [search], got %v", res.ToolsUsed)
	}
}

func TestExecute_OutputNormalization(t *testing.T) {
	cases := []struct {
		name string
		code string
		want string
	}{
		{
			"dict with result key unwrapped",
			`def solve():
    return {"result": "42"}`,
			"42",
		},
		{
			"list space joined",
			`def solve():
    return [1, 2, 3]`,
			"1 2 3",
		},
		{
			"scalar printed plainly",
			`def solve():
    return 7`,
			"7",
		},
		{
			"none",
			`def solve():
    return None`,
			"None",
		},
	}

	ex := newExecutor(DefaultLimits())
	for _, tc := range cases {
		res := ex.Execute(context.Background(), tc.code, &fakeGateway{})
		if res.Status != StatusSuccess {
			t.Errorf("%s: expected success, got %s (%s)", tc.name, res.Status, res.Error)
			continue
		}
		if res.Output != tc.want {
			t.Errorf("%s: output %q, want %q", tc.name, res.Output, tc.want)
		}
	}
}

func TestExecute_OtherDictJSONEncoded(t *testing.T) {
	code := `def solve():
    return {"answer": "yes"}`

	res := newExecutor(DefaultLimits()).Execute(context.Background(), code, &fakeGateway{})
	if res.Status != StatusSuccess {
		t.Fatalf("Expected success, got %s", res.Status)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(res.Output), &decoded); err != nil {
		t.Fatalf("Output is not JSON: %q", res.Output)
	}
	if decoded["answer"] != "yes" {
		t.Errorf("Unexpected decoded output: %v", decoded)
	}
}

func TestExecute_KnownBadCorpusNeverRuns(t *testing.T) {
	// Pattern-gate and structure-gate violations alike must be rejected
	// before any tool call can happen.
	corpus := []string{
		`def solve(): return open("../secret")`,
		`def solve(): return call_tool('fs', {"path": "../../etc/passwd"})`,
		`def solve(): return "<script>steal()</script>"`,
		`def solve(): return call_tool('db', {"q": "DELETE FROM audit_log"})`,
		`def solve(): return call_tool('db', {"q": "DROP TABLE users"})`,
		`def solve(): return call_tool('shell', {"cmd": "rm -rf ~"})`,
		`def solve(): return eval("__import__")`,
		`def solve(): return exec("payload")`,
		`def solve(): return compile("x", "f", "exec")`,
		`def solve(): __import__("subprocess")`,
		`def solve(): system("id")`,
		`def solve(): popen("cat /etc/shadow")`,
		"helper = 1\ndef solve():\n    return helper",
		"def other():\n    return 1",
		"def solve(x):\n    return x",
		"def solve():\n    def inner():\n        return 1\n    return inner()",
		"def solve():\n    f = lambda: 1\n    return f()",
		"def solve():\n    while True:\n        pass\n    return 1",
		"def solve():\n    a = call_tool('t1', {})\n    b = call_tool('t2', {})\n    c = call_tool('t3', {})\n    d = call_tool('t4', {})\n    return a",
		"def solve(:\n    return 1",
	}

	ex := newExecutor(DefaultLimits())
	for i, code := range corpus {
		gw := &fakeGateway{}
		res := ex.Execute(context.Background(), code, gw)
		if res.Status != StatusPolicyViolation {
			t.Errorf("corpus[%d]: expected policy_violation, got %s (%q)", i, res.Status, res.Output)
		}
		if len(gw.calls) != 0 {
			t.Errorf("corpus[%d]: rejected code reached the gateway: %v", i, gw.calls)
		}
	}
}

func TestCleanOutput(t *testing.T) {
	in := "```python\nimport os\ndef helper():\n    pass\nfinal answer\n```"
	got := cleanOutput(in)
	if got != "final answer" {
		t.Errorf("cleanOutput = %q, want %q", got, "final answer")
	}
}
