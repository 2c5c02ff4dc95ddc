package tools

import (
	"context"
	"testing"
)

func TestSearchTool_Shape(t *testing.T) {
	s, err := NewSearchTool()
	if err != nil {
		t.Fatalf("NewSearchTool: %v", err)
	}
	if s.Name() != "search" {
		t.Errorf("name = %q, want search", s.Name())
	}
	if s.MaxResultChars <= 0 {
		t.Errorf("MaxResultChars = %d, want a positive bound", s.MaxResultChars)
	}
	params := s.Parameters()
	props, ok := params["properties"].(map[string]any)
	if !ok {
		t.Fatalf("parameters missing properties object: %#v", params)
	}
	if _, ok := props["query"]; !ok {
		t.Errorf("parameters missing query property")
	}
	required, ok := params["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "query" {
		t.Errorf("required = %#v, want [query]", params["required"])
	}
}

func TestSearchTool_RejectsBadInput(t *testing.T) {
	s, err := NewSearchTool()
	if err != nil {
		t.Fatalf("NewSearchTool: %v", err)
	}
	if _, err := s.Execute(context.Background(), "not json"); err == nil {
		t.Errorf("expected error for malformed input")
	}
	if _, err := s.Execute(context.Background(), `{"query": "   "}`); err == nil {
		t.Errorf("expected error for blank query")
	}
}
