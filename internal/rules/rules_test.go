package rules

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zyahav/cloud-harness/internal/handoff"
	"github.com/zyahav/cloud-harness/internal/reconcile"
	"github.com/zyahav/cloud-harness/internal/state"
)

// fakeProbe scripts per-run answers keyed by run id.
type fakeProbe struct {
	exists   map[string]bool
	handoffs map[string]*handoff.Handoff
	clean    map[string]bool
}

func (p fakeProbe) WorktreeExists(run *state.Run) bool { return p.exists[run.ID] }

func (p fakeProbe) Handoff(run *state.Run) (*handoff.Handoff, error) {
	if h, ok := p.handoffs[run.ID]; ok {
		return h, nil
	}
	return nil, errors.New("no handoff")
}

func (p fakeProbe) Clean(run *state.Run) (bool, error) { return p.clean[run.ID], nil }

func plan(passes ...bool) *handoff.Handoff {
	h := &handoff.Handoff{Meta: handoff.Meta{Project: "p", Source: "test"}}
	for i, pass := range passes {
		h.Tasks = append(h.Tasks, handoff.Task{
			ID:                 "T-" + string(rune('1'+i)),
			Category:           "functional",
			Title:              "task " + string(rune('1'+i)),
			Description:        "d",
			AcceptanceCriteria: []string{"a"},
			Passes:             pass,
		})
	}
	return h
}

func view(st *state.State) *reconcile.View {
	return &reconcile.View{State: st, RefreshedAt: time.Now()}
}

func TestFinishedRunWithWorktreeWantsClean(t *testing.T) {
	st := &state.State{
		Projects:       []state.Project{{ID: "p1", Name: "proj"}},
		FocusProjectID: "p1",
		Runs: []state.Run{
			{ID: "r1", RunName: "done-run", ProjectID: "p1", State: state.RunFinished},
		},
	}
	probe := fakeProbe{exists: map[string]bool{"r1": true}}

	a := ComputeNextAction(view(st), probe)
	if a.Action != "clean done-run" {
		t.Errorf("action = %q, want clean done-run", a.Action)
	}
	if a.Why == "" || a.Done == "" {
		t.Error("expected rationale and done criterion")
	}
}

func TestRunningRunWithFailingTasksContinues(t *testing.T) {
	st := &state.State{
		Projects:       []state.Project{{ID: "p1"}},
		FocusProjectID: "p1",
		Runs: []state.Run{
			{ID: "r1", RunName: "feat-x", ProjectID: "p1", State: state.RunRunning},
		},
	}
	probe := fakeProbe{handoffs: map[string]*handoff.Handoff{"r1": plan(true, false)}}

	a := ComputeNextAction(view(st), probe)
	if a.Action != "run feat-x" {
		t.Errorf("action = %q, want run feat-x", a.Action)
	}
	if !strings.Contains(a.Why, "1 of 2") {
		t.Errorf("why = %q", a.Why)
	}
}

func TestAllPassingCleanWorktreeFinishes(t *testing.T) {
	st := &state.State{
		Projects:       []state.Project{{ID: "p1"}},
		FocusProjectID: "p1",
		Runs: []state.Run{
			{ID: "r1", RunName: "feat-x", ProjectID: "p1", State: state.RunRunning},
		},
	}
	probe := fakeProbe{
		handoffs: map[string]*handoff.Handoff{"r1": plan(true, true)},
		clean:    map[string]bool{"r1": true},
	}

	a := ComputeNextAction(view(st), probe)
	if a.Action != "finish feat-x" {
		t.Errorf("action = %q, want finish feat-x", a.Action)
	}
}

func TestDirtyWorktreeDoesNotFinish(t *testing.T) {
	st := &state.State{
		Projects:       []state.Project{{ID: "p1", Name: "proj"}},
		FocusProjectID: "p1",
		Runs: []state.Run{
			{ID: "r1", RunName: "feat-x", ProjectID: "p1", State: state.RunCreated, CreatedAt: time.Now()},
		},
	}
	probe := fakeProbe{
		handoffs: map[string]*handoff.Handoff{"r1": plan(true)},
		clean:    map[string]bool{"r1": false},
	}

	a := ComputeNextAction(view(st), probe)
	if strings.HasPrefix(a.Action, "finish") {
		t.Errorf("action = %q, must not finish on dirty tree", a.Action)
	}
}

func TestNoFocusProject(t *testing.T) {
	a := ComputeNextAction(view(&state.State{}), fakeProbe{})
	if a.Action != "focus set" {
		t.Errorf("action = %q, want focus set", a.Action)
	}
}

func TestFocusWithoutRunsStarts(t *testing.T) {
	st := &state.State{
		Projects:       []state.Project{{ID: "p1", Name: "proj"}},
		FocusProjectID: "p1",
	}
	a := ComputeNextAction(view(st), fakeProbe{})
	if a.Action != "start" {
		t.Errorf("action = %q, want start", a.Action)
	}
}

func TestFallsBackToFirstOpenTaskTitle(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	st := &state.State{
		Projects:       []state.Project{{ID: "p1", Name: "proj"}},
		FocusProjectID: "p1",
		Runs: []state.Run{
			{ID: "r1", RunName: "older", ProjectID: "p1", State: state.RunCreated, CreatedAt: old},
			{ID: "r2", RunName: "newer", ProjectID: "p1", State: state.RunCreated, CreatedAt: time.Now()},
		},
	}
	h := plan(true, false)
	h.Tasks[1].Title = "implement token refresh"
	probe := fakeProbe{
		handoffs: map[string]*handoff.Handoff{"r2": h},
		clean:    map[string]bool{"r1": false, "r2": false},
	}

	a := ComputeNextAction(view(st), probe)
	if a.Action != "implement token refresh" {
		t.Errorf("action = %q, want the first open task title", a.Action)
	}
	if !strings.Contains(a.Why, "newer") {
		t.Errorf("why = %q, should name the most recent active run", a.Why)
	}
}

func TestParkedRunsAreNotActive(t *testing.T) {
	st := &state.State{
		Projects:       []state.Project{{ID: "p1", Name: "proj"}},
		FocusProjectID: "p1",
		Runs: []state.Run{
			{ID: "r1", RunName: "parked-run", ProjectID: "p1", State: state.RunParked, CreatedAt: time.Now()},
		},
	}
	a := ComputeNextAction(view(st), fakeProbe{})
	if a.Action != "start" {
		t.Errorf("action = %q, want start when only parked runs remain", a.Action)
	}
}

func TestPriorityOrderCleanBeatsContinue(t *testing.T) {
	st := &state.State{
		Projects:       []state.Project{{ID: "p1"}},
		FocusProjectID: "p1",
		Runs: []state.Run{
			{ID: "r1", RunName: "stale", ProjectID: "p1", State: state.RunFinished},
			{ID: "r2", RunName: "active", ProjectID: "p1", State: state.RunRunning},
		},
	}
	probe := fakeProbe{
		exists:   map[string]bool{"r1": true},
		handoffs: map[string]*handoff.Handoff{"r2": plan(false)},
	}

	a := ComputeNextAction(view(st), probe)
	if a.Action != "clean stale" {
		t.Errorf("action = %q, cleanup outranks continuing", a.Action)
	}
}
