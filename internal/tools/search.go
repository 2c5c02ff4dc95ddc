package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// SearchTool answers open-web queries through DuckDuckGo. Results are
// framed and bounded the same way fetch_webpage frames article text, so
// oracle prompts stay a predictable size.
type SearchTool struct {
	client *duckduckgo.Tool

	// MaxResultChars caps the snippet text returned to a plan.
	MaxResultChars int
}

func NewSearchTool() (*SearchTool, error) {
	ddg, err := duckduckgo.New(5, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &SearchTool{client: ddg, MaxResultChars: 8000}, nil
}

func (s *SearchTool) Name() string {
	return "search"
}

func (s *SearchTool) Description() string {
	return "Search the web for current information and return result snippets with source links."
}

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query (e.g., ACME corp latest earnings)",
			},
		},
		"required": []string{"query"},
	}
}

func (s *SearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("query is required")
	}

	res, err := s.client.Call(ctx, args.Query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}

	body := strings.TrimSpace(res)
	if body == "" {
		return fmt.Sprintf("No results found for %q", args.Query), nil
	}
	if s.MaxResultChars > 0 && len(body) > s.MaxResultChars {
		body = body[:s.MaxResultChars] + "\n... (results truncated) ..."
	}
	return fmt.Sprintf("SEARCH RESULTS for %q\n\n%s", args.Query, body), nil
}
