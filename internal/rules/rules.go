// Package rules chooses the single next action from a reconciled view.
//
// ComputeNextAction is pure: it inspects the view through a read-only probe
// and never mutates anything. First matching rule wins.
package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zyahav/cloud-harness/internal/git"
	"github.com/zyahav/cloud-harness/internal/handoff"
	"github.com/zyahav/cloud-harness/internal/reconcile"
	"github.com/zyahav/cloud-harness/internal/state"
)

// Action is the engine's output: one imperative action, a one-line
// rationale, and a one-line done criterion.
type Action struct {
	Action string `json:"action"`
	Why    string `json:"why"`
	Done   string `json:"done"`
}

// RunProbe answers read-only questions about a run's worktree. Injected so
// the engine itself stays a pure function of its inputs.
type RunProbe interface {
	WorktreeExists(run *state.Run) bool
	Handoff(run *state.Run) (*handoff.Handoff, error)
	Clean(run *state.Run) (bool, error)
}

// FSProbe is the real probe backed by the filesystem and git.
type FSProbe struct{}

func (FSProbe) WorktreeExists(run *state.Run) bool {
	info, err := os.Stat(run.WorktreePath)
	return err == nil && info.IsDir()
}

func (FSProbe) Handoff(run *state.Run) (*handoff.Handoff, error) {
	return handoff.Read(filepath.Join(run.WorktreePath, handoff.FileName))
}

func (FSProbe) Clean(run *state.Run) (bool, error) {
	status, err := git.NewGit(run.WorktreePath).Status()
	if err != nil {
		return false, err
	}
	return status.Clean, nil
}

// ComputeNextAction applies the priority rules to the view.
func ComputeNextAction(view *reconcile.View, probe RunProbe) Action {
	st := view.State

	// 1. A finished run still occupying a worktree wants cleanup.
	for i := range st.Runs {
		run := &st.Runs[i]
		if run.State == state.RunFinished && probe.WorktreeExists(run) {
			return Action{
				Action: fmt.Sprintf("clean %s", run.RunName),
				Why:    "the run is finished but its worktree is still on disk",
				Done:   "worktree removed and run gone from the registry",
			}
		}
	}

	// 2. A running run with failing tasks continues.
	for i := range st.Runs {
		run := &st.Runs[i]
		if run.State != state.RunRunning {
			continue
		}
		h, err := probe.Handoff(run)
		if err != nil {
			continue
		}
		if passing, total := handoff.CountPassing(h); passing < total {
			return Action{
				Action: fmt.Sprintf("run %s", run.RunName),
				Why:    fmt.Sprintf("%d of %d tasks still failing", total-passing, total),
				Done:   "every task in the handoff passes",
			}
		}
	}

	// 3. All tasks passing on a clean worktree means the run can finish.
	for i := range st.Runs {
		run := &st.Runs[i]
		if run.State != state.RunCreated && run.State != state.RunRunning {
			continue
		}
		h, err := probe.Handoff(run)
		if err != nil || !handoff.AllPassing(h) {
			continue
		}
		if clean, err := probe.Clean(run); err == nil && clean {
			return Action{
				Action: fmt.Sprintf("finish %s", run.RunName),
				Why:    "all tasks pass and the worktree is clean",
				Done:   "branch pushed and run marked finished",
			}
		}
	}

	// 4. Without a focus project nothing else is actionable.
	focus := st.FocusProject()
	if focus == nil {
		return Action{
			Action: "focus set",
			Why:    "no focus project is set",
			Done:   "a focus project is selected",
		}
	}

	// 5. A focus project without runs needs one.
	runs := st.RunsForProject(focus.ID)
	if len(runs) == 0 {
		return Action{
			Action: "start",
			Why:    fmt.Sprintf("project %s has no runs", focus.Name),
			Done:   "a new run exists with a prepared worktree",
		}
	}

	// 6. Surface the first open task of the most recent active run.
	var latest *state.Run
	for i := range st.Runs {
		run := &st.Runs[i]
		if run.ProjectID != focus.ID {
			continue
		}
		if run.State != state.RunCreated && run.State != state.RunRunning {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	if latest != nil {
		if h, err := probe.Handoff(latest); err == nil && len(h.Tasks) > 0 {
			task := h.Tasks[0]
			for _, candidate := range h.Tasks {
				if !candidate.Passes {
					task = candidate
					break
				}
			}
			return Action{
				Action: task.Title,
				Why:    fmt.Sprintf("first open task of run %s", latest.RunName),
				Done:   fmt.Sprintf("task %s passes", task.ID),
			}
		}
		return Action{
			Action: fmt.Sprintf("run %s", latest.RunName),
			Why:    "the active run's handoff is unreadable",
			Done:   "the handoff parses and reports task status",
		}
	}

	return Action{
		Action: "start",
		Why:    "no active run remains for the focus project",
		Done:   "a new run exists with a prepared worktree",
	}
}
