package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Gateway is the uniform interface through which sandboxed code invokes
// tools. Failures surface as errors here and are converted to structured
// result strings before they cross the sandbox boundary.
type Gateway interface {
	Invoke(ctx context.Context, tool string, argsJSON string) (string, error)
}

// Registry manages the set of available tools and dispatches invocations.
type Registry struct {
	Tools map[string]Tool
	Perf  *PerfTracker
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
		Perf:  NewPerfTracker(),
	}
}

func (r *Registry) Register(t Tool) {
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// Invoke dispatches one tool call and records its outcome for the
// performance statistics fed back into planning.
func (r *Registry) Invoke(ctx context.Context, tool string, argsJSON string) (string, error) {
	t := r.Get(tool)
	if t == nil {
		r.Perf.Record(tool, false, 0)
		return "", fmt.Errorf("tool %q not found", tool)
	}

	start := time.Now()
	result, err := t.Execute(ctx, argsJSON)
	r.Perf.Record(tool, err == nil, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("tool %q failed: %w", tool, err)
	}
	return result, nil
}

// Descriptions renders one line per registered tool for the planning
// prompt, in stable name order.
func (r *Registry) Descriptions() string {
	names := make([]string, 0, len(r.Tools))
	for name := range r.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, r.Tools[name].Description()))
	}
	return strings.Join(lines, "\n")
}
