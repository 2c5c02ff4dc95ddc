package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/cortex/internal/decision"
	"github.com/rahul/cortex/internal/memory"
	"github.com/rahul/cortex/internal/observability"
	"github.com/rahul/cortex/internal/oracle"
	"github.com/rahul/cortex/internal/sandbox"
	"github.com/rahul/cortex/internal/store"
	"github.com/rahul/cortex/internal/tools"
)

// History is the slice of the store the loop needs. A nil History is
// valid; the loop then runs without long-term memory.
type History interface {
	Append(store.Record) error
	All() ([]store.Record, error)
}

// Budgets bounds a session's spend before escalating to a human.
type Budgets struct {
	MaxSteps         int
	MaxRetries       int
	ResumeExtraSteps int
}

func DefaultBudgets() Budgets {
	return Budgets{MaxSteps: 3, MaxRetries: 3, ResumeExtraSteps: 3}
}

// maxGoalLength caps the raw user goal before it reaches the oracle.
const maxGoalLength = 1500

// Loop is the orchestrator: it drives one session through planning,
// sandboxed execution and evaluation until the goal is answered or a
// human has to step in.
type Loop struct {
	Oracle   oracle.Oracle
	Registry *tools.Registry
	Executor *sandbox.Executor
	Scorer   *memory.Scorer
	History  History
	Prompts  *PromptManager
	Logger   *observability.Logger
	Budgets  Budgets

	// SessionDir, when set, receives a JSON snapshot of the session after
	// every state change so a HITL pause survives a restart.
	SessionDir string
}

// Run executes one goal to its terminal or awaiting-human state. The
// returned session is always non-nil; inspect its State.
func (l *Loop) Run(ctx context.Context, goal string) *Session {
	goal = strings.TrimSpace(goal)
	if len(goal) > maxGoalLength {
		goal = goal[:maxGoalLength]
	}
	session := NewSession(goal)
	observability.SetStatus(observability.PhasePlanning, goal)
	l.save(session)

	digest := l.digest(goal)

	// Memory may already contain the answer; check before spending steps.
	snap := l.perceive(ctx, session, "user_query", goal, digest)
	if snap.OriginalGoalAchieved && snap.SolutionSummary != "" {
		l.finish(session, snap.SolutionSummary)
		return session
	}

	step := l.plan(ctx, session, PlanContext{
		PlanMode:          "initial",
		OriginalQuery:     goal,
		PlanVersion:       1,
		HistoricalContext: digest,
	})
	if step == nil {
		return session
	}
	l.runSteps(ctx, session, step, digest, l.Budgets.MaxSteps)
	return session
}

// ResumeWithGuidance re-enters planning from an awaiting-human pause,
// feeding the operator's guidance to the planner. The step budget is
// extended so the resumed session is not immediately re-escalated.
func (l *Loop) ResumeWithGuidance(ctx context.Context, session *Session, guidance string) error {
	if session.State != StateAwaitingHuman {
		return fmt.Errorf("session %s is %s, not awaiting human input", session.ID, session.State)
	}
	session.advance(StatePlanning)
	observability.SetStatus(observability.PhasePlanning, session.Goal)

	digest := l.digest(session.Goal)
	step := l.plan(ctx, session, PlanContext{
		PlanMode:          "mid_session",
		OriginalQuery:     session.Goal,
		PlanVersion:       len(session.PlanVersions) + 1,
		CurrentPlan:       l.currentPlanText(session),
		CompletedSteps:    l.completedSummaries(session),
		RecentFailures:    session.FailureNotes,
		HistoricalContext: digest,
		UserGuidance:      guidance,
	})
	if step == nil {
		return nil
	}
	l.runSteps(ctx, session, step, digest, l.Budgets.MaxSteps+l.Budgets.ResumeExtraSteps)
	return nil
}

// runSteps drives the execute/evaluate/replan cycle starting at step,
// until a terminal state or stepBudget successful steps.
func (l *Loop) runSteps(ctx context.Context, session *Session, step *Step, digest string, stepBudget int) {
	for step != nil {
		if session.StepsExecuted >= stepBudget {
			l.escalateMaxSteps(session, step, stepBudget)
			return
		}

		switch step.Kind {
		case StepCode:
			step = l.runCodeStep(ctx, session, step, digest, stepBudget)

		case StepConclude:
			session.advance(StateExecuting)
			session.advance(StateEvaluating)
			step.ExecutionResult = step.Conclusion
			step.Status = StatusCompleted
			l.finish(session, step.Conclusion)
			return

		case StepClarification:
			step.Status = StatusClarification
			step.HumanReason = "CLARIFICATION_NEEDED"
			if step.HumanMessage == "" {
				step.HumanMessage = "The goal is too ambiguous to act on. Please restate it with more detail."
			}
			l.escalate(session, step)
			return

		case StepHumanInLoop:
			step.Status = StatusAwaitingHuman
			l.escalate(session, step)
			return

		default:
			step.Status = StatusAwaitingHuman
			step.HumanReason = ReasonPlanFailure
			step.HumanMessage = fmt.Sprintf("Planner returned unknown step type %q.", step.Kind)
			l.escalate(session, step)
			return
		}
	}
}

// runCodeStep executes one CODE step in the sandbox and returns the next
// step to run, or nil when the session reached a terminal or paused state.
func (l *Loop) runCodeStep(ctx context.Context, session *Session, step *Step, digest string, stepBudget int) *Step {
	session.advance(StateExecuting)
	observability.SetStatus(observability.PhaseExecuting, session.Goal)
	l.Logger.LogStep(session.ID, step.Index, string(step.Kind), step.Description, string(StatusPending))

	res := l.Executor.Execute(ctx, step.Code, l.Registry)
	l.Logger.LogSandbox(session.ID, step.Index, string(res.Status), res.Output)
	if res.Status == sandbox.StatusPolicyViolation {
		l.Logger.LogPolicyCheck(session.ID, step.Index, res.Error)
	}
	for _, name := range res.ToolsUsed {
		l.Logger.LogToolCall(session.ID, step.Index, name)
	}
	session.RecordTools(res.ToolsUsed)

	if res.Failed() {
		step.Retries++
		step.ExecutionResult = res.Output
		session.NoteFailure(fmt.Sprintf("step %d (%s): %s", step.Index, step.Description, res.Output))
		if step.Retries >= l.Budgets.MaxRetries {
			// Convert the step in place rather than spawning a new one, so
			// the trace shows where the budget ran out.
			step.Kind = StepHumanInLoop
			step.Status = StatusAwaitingHuman
			step.HumanReason = ReasonMaxRetries
			step.HumanMessage = fmt.Sprintf(
				"Step %d failed %d times. Last error: %s", step.Index, step.Retries, res.Output)
			step.SuggestedPlan = []string{
				fmt.Sprintf("Step 0: Retry '%s' with a different tool", step.Description),
				"Step 1: Simplify the approach or provide missing inputs",
			}
			l.escalate(session, step)
			return nil
		}
		l.save(session)
		return step // retry the same step
	}

	step.ExecutionResult = res.Output
	session.StepsExecuted++
	session.advance(StateEvaluating)
	observability.SetStatus(observability.PhaseEvaluating, session.Goal)

	snap := l.perceive(ctx, session, "step_result", res.Output, digest)
	step.Evaluation = &snap
	step.Status = StatusCompleted
	l.Logger.LogStep(session.ID, step.Index, string(step.Kind), step.Description, string(step.Status))
	l.save(session)

	if snap.OriginalGoalAchieved {
		answer := snap.SolutionSummary
		if answer == "" {
			answer = res.Output
		}
		l.finish(session, answer)
		return nil
	}

	session.advance(StatePlanning)
	observability.SetStatus(observability.PhasePlanning, session.Goal)

	if snap.LocalGoalAchieved {
		plan := session.CurrentPlan()
		if plan != nil && step.Index+1 >= len(plan.PlanText) {
			// The plan is exhausted and nothing is left to do.
			l.finish(session, res.Output)
			return nil
		}
	} else {
		// An unhelpful result still costs a retry, so a step that keeps
		// "succeeding" uselessly cannot loop forever.
		step.Retries++
		session.NoteFailure(fmt.Sprintf("step %d (%s): result judged unhelpful: %s",
			step.Index, step.Description, snap.Reasoning))
	}

	next := l.plan(ctx, session, PlanContext{
		PlanMode:          "mid_session",
		OriginalQuery:     session.Goal,
		PlanVersion:       len(session.PlanVersions) + 1,
		CurrentPlan:       l.currentPlanText(session),
		CompletedSteps:    l.completedSummaries(session),
		CurrentStep:       fmt.Sprintf("step %d: %s -> %s", step.Index, step.Description, clipResult(res.Output)),
		RecentFailures:    session.FailureNotes,
		HistoricalContext: digest,
	})
	if next != nil && !snap.LocalGoalAchieved {
		next.Retries = step.Retries
	}
	return next
}

// plan asks the oracle for the next step, adopts it into the session as a
// new plan version, and returns it. A HITL proposal pauses the session
// and returns nil.
func (l *Loop) plan(ctx context.Context, session *Session, pc PlanContext) *Step {
	prompt := l.Prompts.BuildPlanPrompt(pc, l.Registry.Descriptions(), l.Registry.Perf.Summary(50))

	var prop decision.Proposal
	raw, err := l.Oracle.Propose(ctx, prompt)
	if err != nil {
		prop = decision.PlanFailure(fmt.Sprintf("oracle unavailable: %v", err))
	} else {
		prop = decision.Validate(raw)
	}
	l.Logger.LogOracle(session.ID, "plan", prompt, raw)

	step := stepFromProposal(prop)
	session.AddPlanVersion(prop.PlanText, step)
	l.Logger.LogPlan(session.ID, len(session.PlanVersions), prop.PlanText)

	if step.Kind == StepHumanInLoop {
		step.Status = StatusAwaitingHuman
		l.escalate(session, step)
		return nil
	}
	l.save(session)
	return step
}

/// perceive asks the oracle to judge a snapshot. It is total: an oracle
// failure degrades to a "not achieved" snapshot and the loop replans.
func (l *Loop) perceive(ctx context.Context, session *Session, snapshotType, content, digest string) EvaluationSnapshot {
	prompt := l.Prompts.BuildEvalPrompt(EvalContext{
		SnapshotType:      snapshotType,
		OriginalQuery:     session.Goal,
		Content:           content,
		CurrentPlan:       l.currentPlanText(session),
		HistoricalContext: digest,
	})
	raw, err := l.Oracle.Propose(ctx, prompt)
	l.Logger.LogOracle(session.ID, "perceive", prompt, raw)
	var snap EvaluationSnapshot
	if err != nil {
		snap = EvaluationSnapshot{Reasoning: fmt.Sprintf("oracle unavailable: %v", err)}
	} else {
		snap = ParseSnapshot(raw)
	}
	l.Logger.LogPerception(session.ID, snapshotType, snap.Reasoning, snap.LocalGoalAchieved, snap.OriginalGoalAchieved)
	return snap
}

func (l *Loop) escalate(session *Session, step *Step) {
	session.advance(StateAwaitingHuman)
	observability.SetStatus(observability.PhaseAwaiting, session.Goal)
	l.Logger.LogHITL(session.ID, step.HumanReason, step.HumanMessage)
	l.save(session)
}

// escalateMaxSteps synthesizes a HITL step when the step budget runs out
// before the pending step starts.
func (l *Loop) escalateMaxSteps(session *Session, pending *Step, stepBudget int) {
	h := &Step{
		Index:       pending.Index,
		Kind:        StepHumanInLoop,
		Description: "Step budget exhausted",
		Status:      StatusAwaitingHuman,
		HumanReason: ReasonMaxSteps,
		HumanMessage: fmt.Sprintf(
			"Executed %d steps (budget %d) without completing the goal. Next pending step: %s",
			session.StepsExecuted, stepBudget, pending.Description),
		SuggestedPlan: []string{
			"Step 0: Narrow the goal to its most important part",
			"Step 1: Resume with guidance on what to prioritize",
		},
	}
	if plan := session.CurrentPlan(); plan != nil {
		plan.Steps = append(plan.Steps, h)
	} else {
		session.AddPlanVersion([]string{"Step 0: " + h.Description}, h)
	}
	l.escalate(session, h)
}

func (l *Loop) finish(session *Session, answer string) {
	session.MarkComplete(answer)
	observability.SetStatus(observability.PhaseIdle, "")
	l.save(session)
	if l.History != nil {
		rec := store.Record{
			Timestamp: time.Now(),
			User:      session.Goal,
			Assistant: answer,
			Tool:      strings.Join(session.ToolsUsed, ","),
			Success:   true,
			Result:    answer,
		}
		if err := l.History.Append(rec); err != nil {
			l.Logger.Log(observability.Event{
				Type:      observability.EventTypeHeartbeat,
				SessionID: session.ID,
				Data:      map[string]any{"history_error": err.Error()},
			})
		}
	}
}

// digest scores history against the goal and compresses it. Errors fall
// back to the no-context sentinel rather than blocking the session.
func (l *Loop) digest(goal string) string {
	if l.History == nil || l.Scorer == nil {
		return memory.NoContextSentinel
	}
	records, err := l.History.All()
	if err != nil {
		return memory.NoContextSentinel
	}
	return l.Scorer.Digest(records, goal)
}

func (l *Loop) save(session *Session) {
	if err := session.Save(l.SessionDir); err != nil {
		l.Logger.Log(observability.Event{
			Type:      observability.EventTypeHeartbeat,
			SessionID: session.ID,
			Data:      map[string]any{"session_save_error": err.Error()},
		})
	}
}

func (l *Loop) currentPlanText(session *Session) []string {
	if plan := session.CurrentPlan(); plan != nil {
		return plan.PlanText
	}
	return nil
}

func (l *Loop) completedSummaries(session *Session) []string {
	var out []string
	for _, pv := range session.PlanVersions {
		for _, st := range pv.Steps {
			if st.Status == StatusCompleted {
				out = append(out, fmt.Sprintf("step %d: %s -> %s",
					st.Index, st.Description, clipResult(st.ExecutionResult)))
			}
		}
	}
	return out
}

func stepFromProposal(p decision.Proposal) *Step {
	return &Step{
		Index:         p.StepIndex,
		Kind:          kindFromProposal(p.Kind),
		Description:   p.Description,
		Code:          p.Code,
		Conclusion:    p.Conclusion,
		Status:        StatusPending,
		HumanReason:   p.HumanReason,
		HumanMessage:  p.HumanMessage,
		SuggestedPlan: p.SuggestedPlan,
	}
}

func kindFromProposal(kind string) StepKind {
	switch kind {
	case decision.KindCode:
		return StepCode
	case decision.KindConclude:
		return StepConclude
	case decision.KindNop:
		return StepClarification
	case decision.KindHumanInLoop:
		return StepHumanInLoop
	}
	return StepKind(kind)
}

func clipResult(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
