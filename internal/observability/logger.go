package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePerception  EventType = "perception"
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeSandbox     EventType = "sandbox"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeHITL        EventType = "hitl"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeOracle      EventType = "oracle"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	StepIndex int       `json:"step_index,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. Oracle transcripts additionally go
// to a rotating JSONL file for offline inspection.
type Logger struct {
	out           io.Writer
	oracleLogPath string
	maxSize       int64
}

func NewLogger() *Logger {
	return &Logger{
		out:           os.Stdout,
		oracleLogPath: filepath.Join("logs", "oracle.jsonl"),
		maxSize:       10 * 1024 * 1024, // 10MB
	}
}

// NewLoggerAt places the oracle transcript at path instead of the
// default logs directory.
func NewLoggerAt(path string) *Logger {
	return &Logger{
		out:           os.Stdout,
		oracleLogPath: path,
		maxSize:       10 * 1024 * 1024,
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Fprintf(l.out, "{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeOracle {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.oracleLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.oracleLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.oracleLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.oracleLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.oracleLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(sessionID string, version int, planText []string) {
	l.Log(Event{
		Type:      EventTypePlan,
		SessionID: sessionID,
		Data: map[string]any{
			"version":   version,
			"plan_text": planText,
		},
	})
}

func (l *Logger) LogStep(sessionID string, stepIndex int, kind, description, status string) {
	l.Log(Event{
		Type:      EventTypeStep,
		SessionID: sessionID,
		StepIndex: stepIndex,
		Data: map[string]string{
			"kind":        kind,
			"description": description,
			"status":      status,
		},
	})
}

func (l *Logger) LogPerception(sessionID, snapshotType, reasoning string, localAchieved, originalAchieved bool) {
	l.Log(Event{
		Type:      EventTypePerception,
		SessionID: sessionID,
		Data: map[string]any{
			"snapshot_type":          snapshotType,
			"reasoning":              reasoning,
			"local_goal_achieved":    localAchieved,
			"original_goal_achieved": originalAchieved,
		},
	})
}

func (l *Logger) LogPolicyCheck(sessionID string, stepIndex int, verdict string) {
	l.Log(Event{
		Type:      EventTypePolicyCheck,
		SessionID: sessionID,
		StepIndex: stepIndex,
		Data:      map[string]string{"verdict": verdict},
	})
}

func (l *Logger) LogToolCall(sessionID string, stepIndex int, tool string) {
	l.Log(Event{
		Type:      EventTypeToolCall,
		SessionID: sessionID,
		StepIndex: stepIndex,
		Data:      map[string]string{"tool": tool},
	})
}

func (l *Logger) LogSandbox(sessionID string, stepIndex int, status, output string) {
	l.Log(Event{
		Type:      EventTypeSandbox,
		SessionID: sessionID,
		StepIndex: stepIndex,
		Data: map[string]string{
			"status": status,
			"output": output,
		},
	})
}

func (l *Logger) LogHITL(sessionID string, reason, message string) {
	l.Log(Event{
		Type:      EventTypeHITL,
		SessionID: sessionID,
		Data: map[string]string{
			"reason":  reason,
			"message": message,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogOracle(sessionID string, purpose, prompt, response string) {
	l.Log(Event{
		Type:      EventTypeOracle,
		SessionID: sessionID,
		Data: map[string]any{
			"purpose":  purpose,
			"prompt":   prompt,
			"response": response,
		},
	})
}
