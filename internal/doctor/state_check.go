package doctor

import (
	"errors"
	"fmt"
	"os"

	"github.com/zyahav/cloud-harness/internal/home"
	"github.com/zyahav/cloud-harness/internal/state"
)

// StateCheck validates that the registry loads.
type StateCheck struct {
	BaseCheck
}

// NewStateCheck creates the registry validity check.
func NewStateCheck() *StateCheck {
	return &StateCheck{BaseCheck{
		CheckName:        "state-valid",
		CheckDescription: "Check state.json loads and parses",
	}}
}

func (c *StateCheck) Run(ctx *CheckContext) *CheckResult {
	st, err := ctx.Store.Load()
	if err != nil {
		if errors.Is(err, state.ErrCorrupt) {
			return &CheckResult{
				Name:    c.Name(),
				Status:  StatusError,
				Message: "registry is corrupt",
				Details: []string{err.Error()},
				FixHint: "run 'ch doctor --repair-state' to back it up and start fresh",
			}
		}
		return &CheckResult{Name: c.Name(), Status: StatusError, Message: err.Error()}
	}
	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: fmt.Sprintf("%d project(s), %d run(s)", len(st.Projects), len(st.Runs)),
	}
}

// Fix backs up the corrupt registry via the store's repair path.
func (c *StateCheck) Fix(ctx *CheckContext) error {
	if _, err := ctx.Store.Load(); !errors.Is(err, state.ErrCorrupt) {
		return nil
	}
	_, _, err := ctx.Store.Repair()
	return err
}

// TempFileCheck reports a leftover state.json.tmp from a crashed write.
type TempFileCheck struct {
	BaseCheck
}

// NewTempFileCheck creates the stale temp file check.
func NewTempFileCheck() *TempFileCheck {
	return &TempFileCheck{BaseCheck{
		CheckName:        "stale-temp-file",
		CheckDescription: "Check for a leftover state.json.tmp",
	}}
}

func (c *TempFileCheck) Run(ctx *CheckContext) *CheckResult {
	tmp := home.StateTempPath(ctx.Root)
	if _, err := os.Stat(tmp); err == nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: "incomplete write left a temp file",
			Details: []string{tmp},
			FixHint: "any command cleans it on next load; or run 'ch doctor --fix'",
		}
	}
	return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "no stale temp file"}
}

// Fix deletes the stale temp file.
func (c *TempFileCheck) Fix(ctx *CheckContext) error {
	err := os.Remove(home.StateTempPath(ctx.Root))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
