package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ToolStats summarizes recent outcomes for one tool.
type ToolStats struct {
	Calls          int
	SuccessRate    float64
	RecentFailures int // consecutive failures, most recent first
	AvgLatencyMS   float64
}

type perfCall struct {
	tool    string
	success bool
	latency time.Duration
}

// PerfTracker keeps a sliding window of tool invocations so the planner
// can prefer reliable tools and avoid failing ones.
type PerfTracker struct {
	mu     sync.Mutex
	calls  []perfCall
	window int
}

func NewPerfTracker() *PerfTracker {
	return &PerfTracker{window: 200}
}

func (p *PerfTracker) Record(tool string, success bool, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, perfCall{tool: tool, success: success, latency: latency})
	if len(p.calls) > p.window {
		p.calls = p.calls[len(p.calls)-p.window:]
	}
}

// Stats aggregates the most recent n calls per the whole window.
func (p *PerfTracker) Stats(recentN int) map[string]ToolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	calls := p.calls
	if recentN > 0 && len(calls) > recentN {
		calls = calls[len(calls)-recentN:]
	}

	type agg struct {
		calls     int
		successes int
		latency   time.Duration
		failRun   int
		runEnded  bool
	}
	byTool := make(map[string]*agg)

	// Walk newest-first so the consecutive-failure run is anchored at the
	// most recent call.
	for i := len(calls) - 1; i >= 0; i-- {
		c := calls[i]
		a := byTool[c.tool]
		if a == nil {
			a = &agg{}
			byTool[c.tool] = a
		}
		a.calls++
		a.latency += c.latency
		if c.success {
			a.successes++
			a.runEnded = true
		} else if !a.runEnded {
			a.failRun++
		}
	}

	stats := make(map[string]ToolStats, len(byTool))
	for tool, a := range byTool {
		stats[tool] = ToolStats{
			Calls:          a.calls,
			SuccessRate:    float64(a.successes) / float64(a.calls),
			RecentFailures: a.failRun,
			AvgLatencyMS:   float64(a.latency.Milliseconds()) / float64(a.calls),
		}
	}
	return stats
}

// Summary renders the performance block appended to planning prompts.
// Returns "" when no calls have been recorded yet.
func (p *PerfTracker) Summary(recentN int) string {
	stats := p.Stats(recentN)
	if len(stats) == 0 {
		return ""
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{
		"### Tool Performance Statistics",
		"Prefer reliable tools and avoid failing ones.",
	}
	for _, name := range names {
		s := stats[name]
		status := "RELIABLE"
		switch {
		case s.RecentFailures >= 3:
			status = "AVOID - recent consecutive failures"
		case s.SuccessRate < 0.5:
			status = "FAILING"
		case s.SuccessRate < 0.8:
			status = "UNRELIABLE"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s (success: %.0f%%, latency: %.0fms, recent failures: %d)",
			name, status, s.SuccessRate*100, s.AvgLatencyMS, s.RecentFailures))
	}
	return strings.Join(lines, "\n")
}
