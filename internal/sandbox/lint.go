package sandbox

import (
	"fmt"
	"regexp"

	"go.starlark.net/syntax"
)

// fileOptions is the dialect accepted from the oracle: set literals and
// while loops are allowed, recursion is not.
var fileOptions = &syntax.FileOptions{
	Set:            true,
	While:          true,
	GlobalReassign: true,
}

// dangerousCalls are builtins a plan may never invoke directly; tool
// access goes through call_tool only.
var dangerousCalls = map[string]bool{
	"eval":    true,
	"exec":    true,
	"compile": true,
	"open":    true,
	"system":  true,
}

var toolCallPattern = regexp.MustCompile(`call_tool\(\s*['"]([A-Za-z0-9_]+)['"]`)

// Lint statically validates proposed step code before execution: the
// source must define exactly one top-level solve() routine taking no
// parameters, with no nested definitions, no load statements, no
// deny-listed calls, and no while loop lacking a reachable exit.
// An empty result means the code passed.
func Lint(code string) []string {
	file, err := fileOptions.Parse("solve.star", code, 0)
	if err != nil {
		return []string{fmt.Sprintf("syntax error: %v", err)}
	}

	var errors []string
	var solve *syntax.DefStmt

	for _, stmt := range file.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok {
			errors = append(errors, "only a solve() definition is allowed at top level")
			continue
		}
		if def.Name.Name != "solve" {
			errors = append(errors, fmt.Sprintf("unexpected top-level function: %s", def.Name.Name))
			continue
		}
		if solve != nil {
			errors = append(errors, "solve() defined more than once")
			continue
		}
		solve = def
	}

	if solve == nil {
		errors = append(errors, "no solve() function defined")
		return errors
	}
	if len(solve.Params) != 0 {
		errors = append(errors, "solve() must not take parameters")
	}

	for _, stmt := range solve.Body {
		syntax.Walk(stmt, func(n syntax.Node) bool {
			switch n := n.(type) {
			case *syntax.DefStmt:
				errors = append(errors, fmt.Sprintf("nested function definition not allowed: %s", n.Name.Name))
			case *syntax.LambdaExpr:
				errors = append(errors, "lambda expressions not allowed in solve()")
			case *syntax.LoadStmt:
				errors = append(errors, "load statements not allowed in solve()")
			case *syntax.CallExpr:
				if ident, ok := n.Fn.(*syntax.Ident); ok && dangerousCalls[ident.Name] {
					errors = append(errors, fmt.Sprintf("dangerous function call not allowed: %s", ident.Name))
				}
			case *syntax.WhileStmt:
				if !hasLoopExit(n.Body) {
					errors = append(errors, "while loop without break (potential infinite loop)")
				}
			}
			return true
		})
	}

	return errors
}

// hasLoopExit reports whether the loop body contains a break or return.
func hasLoopExit(body []syntax.Stmt) bool {
	found := false
	for _, stmt := range body {
		syntax.Walk(stmt, func(n syntax.Node) bool {
			switch n := n.(type) {
			case *syntax.BranchStmt:
				if n.Token == syntax.BREAK {
					found = true
				}
			case *syntax.ReturnStmt:
				found = true
			case *syntax.DefStmt, *syntax.LambdaExpr:
				// A break inside a nested scope does not exit this loop.
				return false
			}
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

// toolCalls extracts the tool names referenced by call_tool invocations in
// source order, one entry per call site.
func toolCalls(code string) []string {
	var names []string
	for _, m := range toolCallPattern.FindAllStringSubmatch(code, -1) {
		names = append(names, m[1])
	}
	return names
}

// checkToolUsage applies the static diversity and repeat limits to the
// call_tool references in the source text.
func checkToolUsage(code string, diversityLimit, repeatLimit int) []string {
	counts := make(map[string]int)
	for _, name := range toolCalls(code) {
		counts[name]++
	}

	var errors []string
	if diversityLimit > 0 && len(counts) > diversityLimit {
		errors = append(errors, fmt.Sprintf("code uses more than %d distinct tools", diversityLimit))
	}
	if repeatLimit > 0 {
		for name, count := range counts {
			if count > repeatLimit {
				errors = append(errors, fmt.Sprintf("tool %s called more than %d times", name, repeatLimit))
			}
		}
	}
	return errors
}
