package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// State is the orchestrator's session state machine.
type State string

const (
	StatePlanning      State = "planning"
	StateExecuting     State = "executing"
	StateEvaluating    State = "evaluating"
	StateAwaitingHuman State = "awaiting_human"
	StateComplete      State = "complete"
	StateError         State = "error"
)

// validTransitions makes illegal state changes unrepresentable: advance
// panics on anything not listed here, since that is a programmer error,
// not an input error.
var validTransitions = map[State][]State{
	StatePlanning:      {StateExecuting, StateAwaitingHuman, StateComplete, StateError},
	StateExecuting:     {StateEvaluating, StateAwaitingHuman, StateError},
	StateEvaluating:    {StatePlanning, StateAwaitingHuman, StateComplete, StateError},
	StateAwaitingHuman: {StatePlanning},
	StateComplete:      {},
	StateError:         {},
}

// StepKind classifies one unit of planned work.
type StepKind string

const (
	StepCode          StepKind = "CODE"
	StepConclude      StepKind = "CONCLUDE"
	StepClarification StepKind = "CLARIFICATION_NEEDED"
	StepHumanInLoop   StepKind = "HUMAN_IN_LOOP"
)

// StepStatus tracks a step's lifecycle. Once a step reaches completed,
// awaiting_human, or clarification_needed it is never mutated again.
type StepStatus string

const (
	StatusPending       StepStatus = "pending"
	StatusCompleted     StepStatus = "completed"
	StatusAwaitingHuman StepStatus = "awaiting_human"
	StatusClarification StepStatus = "clarification_needed"
)

// Escalation reasons surfaced to the human operator.
const (
	ReasonMaxRetries  = "MAX_RETRIES_EXCEEDED"
	ReasonMaxSteps    = "MAX_STEPS_EXCEEDED"
	ReasonPlanFailure = "PLAN_FAILURE"
)

// EvaluationSnapshot is the oracle's judgement of a step result (or of
// the raw goal, before planning).
type EvaluationSnapshot struct {
	LocalGoalAchieved    bool   `json:"local_goal_achieved"`
	OriginalGoalAchieved bool   `json:"original_goal_achieved"`
	Reasoning            string `json:"reasoning"`
	SolutionSummary      string `json:"solution_summary"`
}

// Step is one unit of work executed under a plan version.
type Step struct {
	Index           int                 `json:"index"`
	Kind            StepKind            `json:"kind"`
	Description     string              `json:"description"`
	Code            string              `json:"code,omitempty"`
	Conclusion      string              `json:"conclusion,omitempty"`
	Retries         int                 `json:"retries"`
	Status          StepStatus          `json:"status"`
	ExecutionResult string              `json:"execution_result,omitempty"`
	Evaluation      *EvaluationSnapshot `json:"evaluation,omitempty"`
	HumanReason     string              `json:"human_in_loop_reason,omitempty"`
	HumanMessage    string              `json:"human_in_loop_message,omitempty"`
	SuggestedPlan   []string            `json:"suggested_plan,omitempty"`
}

// PlanVersion is an immutable plan text plus the steps executed under it.
// Superseded versions are kept, never rewritten.
type PlanVersion struct {
	PlanText []string `json:"plan_text"`
	Steps    []*Step  `json:"steps"`
}

// Session is the lifetime of one user goal.
type Session struct {
	ID            string         `json:"id"`
	Goal          string         `json:"goal"`
	PlanVersions  []*PlanVersion `json:"plan_versions"`
	StepsExecuted int            `json:"steps_executed"`
	State         State          `json:"state"`
	FinalAnswer   string         `json:"final_answer,omitempty"`
	ToolsUsed     []string       `json:"tools_used,omitempty"`
	FailureNotes  []string       `json:"failure_notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func NewSession(goal string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Goal:      goal,
		State:     StatePlanning,
		CreatedAt: time.Now(),
	}
}

// advance moves the session to next, panicking on an illegal transition.
// Re-entering the current state is always allowed (a retried step stays
// in executing).
func (s *Session) advance(next State) {
	if s.State == next {
		return
	}
	for _, allowed := range validTransitions[s.State] {
		if allowed == next {
			s.State = next
			return
		}
	}
	panic(fmt.Sprintf("illegal session transition: %s -> %s", s.State, next))
}

// AddPlanVersion appends a new immutable plan version with its first step
// and returns that step.
func (s *Session) AddPlanVersion(planText []string, step *Step) *Step {
	s.PlanVersions = append(s.PlanVersions, &PlanVersion{
		PlanText: planText,
		Steps:    []*Step{step},
	})
	return step
}

// CurrentPlan returns the newest plan version, or nil before planning.
func (s *Session) CurrentPlan() *PlanVersion {
	if len(s.PlanVersions) == 0 {
		return nil
	}
	return s.PlanVersions[len(s.PlanVersions)-1]
}

// MarkComplete finishes the session with the given answer.
func (s *Session) MarkComplete(finalAnswer string) {
	s.FinalAnswer = finalAnswer
	s.advance(StateComplete)
}

// NoteFailure keeps a short memory of recent failed steps for replanning
// context. Only the last few are retained.
func (s *Session) NoteFailure(note string) {
	const keep = 3
	s.FailureNotes = append(s.FailureNotes, note)
	if len(s.FailureNotes) > keep {
		s.FailureNotes = s.FailureNotes[len(s.FailureNotes)-keep:]
	}
}

// RecordTools accumulates the distinct tool names used by the session.
func (s *Session) RecordTools(names []string) {
	for _, name := range names {
		seen := false
		for _, existing := range s.ToolsUsed {
			if existing == name {
				seen = true
				break
			}
		}
		if !seen {
			s.ToolsUsed = append(s.ToolsUsed, name)
		}
	}
}

// Save writes a session snapshot so HITL pauses survive a process exit.
func (s *Session) Save(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	s.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, s.ID+".json"), data, 0644)
}

// LoadSession restores a persisted session snapshot.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
