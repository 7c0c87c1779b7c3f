package doctor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zyahav/cloud-harness/internal/reconcile"
	"github.com/zyahav/cloud-harness/internal/state"
)

// WorktreeCheck verifies that live runs still have marked worktrees.
type WorktreeCheck struct {
	BaseCheck
}

// NewWorktreeCheck creates the run worktree/marker check.
func NewWorktreeCheck() *WorktreeCheck {
	return &WorktreeCheck{BaseCheck{
		CheckName:        "run-worktrees",
		CheckDescription: "Check registered runs have worktrees with markers",
	}}
}

func (c *WorktreeCheck) Run(ctx *CheckContext) *CheckResult {
	st, err := ctx.Store.Load()
	if err != nil {
		return &CheckResult{Name: c.Name(), Status: StatusWarning, Message: "registry unreadable, skipped"}
	}

	var details []string
	for _, run := range st.Runs {
		switch run.State {
		case state.RunCreated, state.RunRunning, state.RunFinished:
		default:
			continue
		}
		if info, err := os.Stat(run.WorktreePath); err != nil || !info.IsDir() {
			details = append(details, fmt.Sprintf("run %s: worktree %s missing", run.RunName, run.WorktreePath))
			continue
		}
		if _, err := os.Stat(filepath.Join(run.WorktreePath, reconcile.MarkerFile)); err != nil {
			details = append(details, fmt.Sprintf("run %s: marker missing in %s", run.RunName, run.WorktreePath))
		}
	}

	if len(details) > 0 {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: fmt.Sprintf("%d run(s) out of sync with disk", len(details)),
			Details: details,
			FixHint: "'ch status' lists these as drift; parking of runs whose worktrees are gone is not saved to the registry",
		}
	}
	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: fmt.Sprintf("%d run(s) consistent", len(st.Runs)),
	}
}
