package agent

import (
	"path/filepath"
	"testing"
)

func TestSession_AdvanceValidPath(t *testing.T) {
	s := NewSession("test goal")
	if s.State != StatePlanning {
		t.Fatalf("New session should start planning, got %s", s.State)
	}

	s.advance(StateExecuting)
	s.advance(StateExecuting) // re-entry is a no-op
	s.advance(StateEvaluating)
	s.advance(StatePlanning)
	s.advance(StateAwaitingHuman)
	s.advance(StatePlanning)
	s.advance(StateComplete)

	if s.State != StateComplete {
		t.Errorf("Expected complete, got %s", s.State)
	}
}

func TestSession_AdvancePanicsOnIllegalTransition(t *testing.T) {
	s := NewSession("test goal")
	s.MarkComplete("answer")

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on transition out of complete")
		}
	}()
	s.advance(StateExecuting)
}

func TestSession_PlanVersionsAreAppendOnly(t *testing.T) {
	s := NewSession("goal")
	first := s.AddPlanVersion([]string{"Step 0: a"}, &Step{Index: 0, Kind: StepCode})
	s.AddPlanVersion([]string{"Step 0: b", "Step 1: c"}, &Step{Index: 1, Kind: StepCode})

	if len(s.PlanVersions) != 2 {
		t.Fatalf("Expected 2 plan versions, got %d", len(s.PlanVersions))
	}
	if s.PlanVersions[0].Steps[0] != first {
		t.Error("Earlier plan version was rewritten")
	}
	if s.CurrentPlan() != s.PlanVersions[1] {
		t.Error("CurrentPlan should be the newest version")
	}
}

func TestSession_NoteFailureKeepsLastThree(t *testing.T) {
	s := NewSession("goal")
	for _, n := range []string{"one", "two", "three", "four"} {
		s.NoteFailure(n)
	}
	if len(s.FailureNotes) != 3 {
		t.Fatalf("Expected 3 notes, got %d", len(s.FailureNotes))
	}
	if s.FailureNotes[0] != "two" || s.FailureNotes[2] != "four" {
		t.Errorf("Oldest note should be dropped: %v", s.FailureNotes)
	}
}

func TestSession_RecordToolsDeduplicates(t *testing.T) {
	s := NewSession("goal")
	s.RecordTools([]string{"search", "add"})
	s.RecordTools([]string{"add", "fetch_webpage"})

	if len(s.ToolsUsed) != 3 {
		t.Errorf("Expected 3 distinct tools, got %v", s.ToolsUsed)
	}
}

func TestSession_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	s := NewSession("find the answer")
	s.AddPlanVersion([]string{"Step 0: compute"}, &Step{
		Index:       0,
		Kind:        StepCode,
		Description: "compute",
		Status:      StatusCompleted,
		Evaluation:  &EvaluationSnapshot{LocalGoalAchieved: true, Reasoning: "ok"},
	})
	s.StepsExecuted = 1
	s.advance(StateExecuting)
	s.advance(StateAwaitingHuman)
	if err := s.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadSession(filepath.Join(dir, s.ID+".json"))
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if loaded.ID != s.ID || loaded.Goal != s.Goal {
		t.Errorf("Identity not preserved: %+v", loaded)
	}
	if loaded.State != StateAwaitingHuman || loaded.StepsExecuted != 1 {
		t.Errorf("Progress not preserved: state=%s steps=%d", loaded.State, loaded.StepsExecuted)
	}
	step := loaded.CurrentPlan().Steps[0]
	if step.Status != StatusCompleted || step.Evaluation == nil || !step.Evaluation.LocalGoalAchieved {
		t.Errorf("Step detail not preserved: %+v", step)
	}
}

func TestSession_SaveWithEmptyDirIsNoop(t *testing.T) {
	s := NewSession("goal")
	if err := s.Save(""); err != nil {
		t.Errorf("Save with no dir should be a no-op, got %v", err)
	}
}
