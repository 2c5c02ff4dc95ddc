package governance

import (
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine vets proposed step code before it is allowed near the
// sandbox. Evaluation fails closed: a matching pattern denies execution.
type PolicyEngine interface {
	Evaluate(code string) Result
}

// unsafePatterns is the fixed deny-list applied to every code proposal:
// path traversal, script injection, destructive SQL, shell-outs, and
// dynamic code loading.
var unsafePatterns = []string{
	`\.\./+`,
	`<script`,
	`</script`,
	`delete\s+from`,
	`drop\s+table`,
	`rm\s+-rf`,
	`eval\(`,
	`exec\(`,
	`compile\(`,
	`__import__`,
	`system\(`,
	`popen\(`,
}

// DefaultPolicyEngine matches code against case-insensitive deny regexes.
type DefaultPolicyEngine struct {
	denied []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	e := &DefaultPolicyEngine{}
	for _, p := range unsafePatterns {
		e.denied = append(e.denied, regexp.MustCompile(`(?i)`+p))
	}
	return e
}

// DenyPattern adds an operator-supplied pattern on top of the built-in
// deny-list.
func (e *DefaultPolicyEngine) DenyPattern(pattern string) error {
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return err
	}
	e.denied = append(e.denied, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(code string) Result {
	for _, re := range e.denied {
		if re.MatchString(code) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("code matches restricted pattern: %s", re.String()),
			}
		}
	}
	return Result{
		Effect: EffectAllow,
		Reason: "approved by default policy",
	}
}
