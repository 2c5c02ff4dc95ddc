package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/rahul/cortex/internal/governance"
	"github.com/rahul/cortex/internal/tools"
)

// Status classifies how an execution ended.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusPolicyViolation Status = "policy_violation"
	StatusError           Status = "error"
	StatusTimeout         Status = "timeout"
)

// Result is the outcome of one sandboxed execution. Output is always
// populated with a display string, including on failure, so the caller
// never has to branch before logging.
type Result struct {
	Status    Status
	Output    string
	Error     string
	ToolsUsed []string
}

func (r Result) Failed() bool {
	return r.Status != StatusSuccess
}

// Limits bounds the blast radius of one execution.
type Limits struct {
	Timeout           time.Duration
	ToolCallQuota     int
	DiversityLimit    int
	RepeatLimit       int
	MaxExecutionSteps uint64
}

func DefaultLimits() Limits {
	return Limits{
		Timeout:           30 * time.Second,
		ToolCallQuota:     10,
		DiversityLimit:    3,
		RepeatLimit:       2,
		MaxExecutionSteps: 10_000_000,
	}
}

// Executor runs a CODE step's solve() routine in a Starlark interpreter
// after vetting it against the policy engine and the structural linter.
// Tool access is only possible through the call_tool builtin bound to the
// gateway passed to Execute.
type Executor struct {
	Policy governance.PolicyEngine
	Limits Limits
}

func NewExecutor(policy governance.PolicyEngine, limits Limits) *Executor {
	return &Executor{Policy: policy, Limits: limits}
}

// Execute vets and runs code. It never panics and never returns an error:
// every failure mode is folded into the Result.
func (e *Executor) Execute(ctx context.Context, code string, gw tools.Gateway) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Status: StatusError,
				Output: fmt.Sprintf("[sandbox error: %v]", r),
				Error:  fmt.Sprintf("%v", r),
			}
		}
	}()

	// Pattern policy gate: denied code is never run.
	if verdict := e.Policy.Evaluate(code); verdict.Effect == governance.EffectDeny {
		return Result{
			Status: StatusPolicyViolation,
			Output: "[sandbox error: unsafe code patterns detected]",
			Error:  verdict.Reason,
		}
	}

	// Structural gate.
	if errs := Lint(code); len(errs) > 0 {
		return Result{
			Status: StatusPolicyViolation,
			Output: fmt.Sprintf("[sandbox error: validation failed - %s]", strings.Join(errs, "; ")),
			Error:  strings.Join(errs, "; "),
		}
	}

	// Static capability gate over the source text.
	if errs := checkToolUsage(code, e.Limits.DiversityLimit, e.Limits.RepeatLimit); len(errs) > 0 {
		return Result{
			Status: StatusPolicyViolation,
			Output: fmt.Sprintf("[sandbox error: validation failed - %s]", strings.Join(errs, "; ")),
			Error:  strings.Join(errs, "; "),
		}
	}

	return e.run(ctx, code, gw)
}

func (e *Executor) run(ctx context.Context, code string, gw tools.Gateway) Result {
	execCtx, cancel := context.WithTimeout(ctx, e.Limits.Timeout)
	defer cancel()

	thread := &starlark.Thread{Name: "solve"}
	if e.Limits.MaxExecutionSteps > 0 {
		thread.SetMaxExecutionSteps(e.Limits.MaxExecutionSteps)
	}

	// Abort the interpreter when the deadline fires.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-execCtx.Done():
			thread.Cancel("deadline exceeded")
		case <-finished:
		}
	}()

	callCount := 0
	var toolsUsed []string

	callTool := starlark.NewBuiltin("call_tool", func(t *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("call_tool: want tool name and optional args dict, got %d arguments", len(args))
		}
		name, ok := starlark.AsString(args[0])
		if !ok {
			return nil, fmt.Errorf("call_tool: tool name must be a string")
		}

		callCount++
		if e.Limits.ToolCallQuota > 0 && callCount > e.Limits.ToolCallQuota {
			return nil, fmt.Errorf("exceeded max tool calls (%d) in solve() plan", e.Limits.ToolCallQuota)
		}
		toolsUsed = append(toolsUsed, name)

		toolArgs := map[string]any{}
		if len(args) == 2 {
			converted, ok := fromStarlarkValue(args[1]).(map[string]any)
			if !ok {
				return nil, fmt.Errorf("call_tool: args must be a dict")
			}
			toolArgs = converted
		}
		argsJSON, err := json.Marshal(toolArgs)
		if err != nil {
			return nil, fmt.Errorf("call_tool: %v", err)
		}

		result, err := gw.Invoke(execCtx, name, string(argsJSON))
		if err != nil {
			return nil, err
		}
		return toolResultValue(result), nil
	})

	predeclared := starlark.StringDict{"call_tool": callTool}

	globals, err := starlark.ExecFileOptions(fileOptions, thread, "solve.star", code, predeclared)
	if err != nil {
		return e.failure(execCtx, err, toolsUsed)
	}

	solve, ok := globals["solve"]
	if !ok {
		return Result{
			Status:    StatusError,
			Output:    "[sandbox error: no solve() function found in plan]",
			Error:     "no solve() function found in plan",
			ToolsUsed: toolsUsed,
		}
	}

	value, err := starlark.Call(thread, solve, nil, nil)
	if err != nil {
		return e.failure(execCtx, err, toolsUsed)
	}

	return Result{
		Status:    StatusSuccess,
		Output:    normalizeOutput(value),
		ToolsUsed: toolsUsed,
	}
}

func (e *Executor) failure(ctx context.Context, err error, toolsUsed []string) Result {
	if ctx.Err() == context.DeadlineExceeded {
		return Result{
			Status:    StatusTimeout,
			Output:    "[sandbox error: execution timeout]",
			Error:     fmt.Sprintf("execution exceeded %s deadline", e.Limits.Timeout),
			ToolsUsed: toolsUsed,
		}
	}

	msg := err.Error()
	if evalErr, ok := err.(*starlark.EvalError); ok {
		msg = evalErr.Msg
	}
	return Result{
		Status:    StatusError,
		Output:    fmt.Sprintf("[sandbox error: %s]", msg),
		Error:     msg,
		ToolsUsed: toolsUsed,
	}
}

// normalizeOutput converts solve()'s return value into a single display
// string: a dict with a "result" key is unwrapped, other dicts are JSON
// encoded, lists are space joined, scalars are printed plainly.
func normalizeOutput(v starlark.Value) string {
	var text string
	switch converted := fromStarlarkValue(v).(type) {
	case nil:
		text = "None"
	case string:
		text = converted
	case map[string]any:
		if inner, ok := converted["result"]; ok {
			text = fmt.Sprintf("%v", inner)
		} else if data, err := json.Marshal(converted); err == nil {
			text = string(data)
		} else {
			text = fmt.Sprintf("%v", converted)
		}
	case []any:
		parts := make([]string, len(converted))
		for i, e := range converted {
			parts[i] = fmt.Sprintf("%v", e)
		}
		text = strings.Join(parts, " ")
	default:
		text = fmt.Sprintf("%v", converted)
	}
	return cleanOutput(text)
}

var (
	fencePattern  = regexp.MustCompile("```[\\w]*\\n?")
	importPattern = regexp.MustCompile(`(?m)^import\s+.*$`)
	fromPattern   = regexp.MustCompile(`(?m)^from\s+.*import.*$`)
	defPattern    = regexp.MustCompile(`^\s*def\s+`)
	solvePattern  = regexp.MustCompile(`^\s*def\s+solve\b`)
)

// cleanOutput strips markdown fences and stray import/def lines the
// oracle sometimes leaks into result text.
func cleanOutput(text string) string {
	text = fencePattern.ReplaceAllString(text, "")
	text = importPattern.ReplaceAllString(text, "")
	text = fromPattern.ReplaceAllString(text, "")

	var cleaned []string
	skipDef := false
	for _, line := range strings.Split(text, "\n") {
		if defPattern.MatchString(line) && !solvePattern.MatchString(line) {
			skipDef = true
		} else if skipDef && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			skipDef = false
		}
		if !skipDef {
			cleaned = append(cleaned, line)
		}
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
