package doctor

import (
	"fmt"
	"time"

	"github.com/zyahav/cloud-harness/internal/lease"
)

// LockCheck validates lock/heartbeat pairing and holder liveness.
type LockCheck struct {
	BaseCheck
}

// NewLockCheck creates the controller lock consistency check.
func NewLockCheck() *LockCheck {
	return &LockCheck{BaseCheck{
		CheckName:        "lock-consistency",
		CheckDescription: "Check controller lock and heartbeat agree",
	}}
}

func (c *LockCheck) Run(ctx *CheckContext) *CheckResult {
	lock, hb := lease.ReadCurrent(ctx.Root)
	if lock == nil {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "no controller lock"}
	}

	if hb == nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: fmt.Sprintf("lock held by pid %d but no heartbeat file", lock.PID),
			FixHint: "a mutating command will take over if the holder is dead; use --force if it is wedged",
		}
	}
	if hb.SessionID != lock.SessionID {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: "lock and heartbeat reference different sessions",
			Details: []string{
				"lock session " + lock.SessionID,
				"heartbeat session " + hb.SessionID,
			},
			FixHint: "take over explicitly with a mutating command and --force",
		}
	}
	if age := time.Since(hb.LastBeatAt); age > lease.StaleAfter {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: fmt.Sprintf("heartbeat is %s old (holder pid %d)", age.Round(time.Second), lock.PID),
		}
	}
	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: fmt.Sprintf("controller pid %d, heartbeat fresh", lock.PID),
	}
}
