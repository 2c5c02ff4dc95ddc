package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// MathTool implements one arithmetic operation over two operands. Each
// operation is registered under its own tool name so plans can call
// add/subtract/multiply/divide directly.
type MathTool struct {
	op string
}

func NewMathTool(op string) *MathTool {
	return &MathTool{op: op}
}

// RegisterMathTools adds the four basic arithmetic tools to the registry.
func RegisterMathTools(r *Registry) {
	for _, op := range []string{"add", "subtract", "multiply", "divide"} {
		r.Register(NewMathTool(op))
	}
}

func (m *MathTool) Name() string {
	return m.op
}

func (m *MathTool) Description() string {
	return fmt.Sprintf("Compute the %s of two numbers 'a' and 'b'.", m.op)
}

func (m *MathTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number", "description": "First operand"},
			"b": map[string]any{"type": "number", "description": "Second operand"},
		},
		"required": []string{"a", "b"},
	}
}

func (m *MathTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		A float64 `json:"a"`
		B float64 `json:"b"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	var result float64
	switch m.op {
	case "add":
		result = args.A + args.B
	case "subtract":
		result = args.A - args.B
	case "multiply":
		result = args.A * args.B
	case "divide":
		if args.B == 0 {
			return "", fmt.Errorf("division by zero")
		}
		result = args.A / args.B
	default:
		return "", fmt.Errorf("unknown operation %q", m.op)
	}

	return strconv.FormatFloat(result, 'f', -1, 64), nil
}
