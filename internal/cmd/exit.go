package cmd

import (
	"errors"
	"strings"

	"github.com/zyahav/cloud-harness/internal/docdrift"
	"github.com/zyahav/cloud-harness/internal/git"
	"github.com/zyahav/cloud-harness/internal/handoff"
	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/lifecycle"
	"github.com/zyahav/cloud-harness/internal/reconcile"
)

// Exit codes.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitValidation   = 2
	ExitLeaseDenied  = 3
	ExitDirtyTree    = 4
	ExitUnsafePath   = 5
	ExitDocDrift     = 6
	ExitPushRejected = 7
)

// exitCodeFor maps the error taxonomy to the documented exit codes.
func exitCodeFor(err error) int {
	var schemaErr *handoff.SchemaError
	switch {
	case errors.As(err, &schemaErr), errors.Is(err, lifecycle.ErrIncomplete):
		return ExitValidation
	case errors.Is(err, lease.ErrHeld), errors.Is(err, lease.ErrInconsistent):
		return ExitLeaseDenied
	case errors.Is(err, reconcile.ErrDirtyTree):
		return ExitDirtyTree
	case errors.Is(err, reconcile.ErrUnsafePath):
		return ExitUnsafePath
	case errors.Is(err, docdrift.ErrDrift):
		return ExitDocDrift
	case errors.Is(err, git.ErrPushRejected):
		return ExitPushRejected
	case strings.HasPrefix(err.Error(), "unknown command"):
		// Cobra's unknown-command error is a usage problem, not a failure.
		return ExitValidation
	}
	return ExitError
}

// remediationFor suggests the obvious next step for policy refusals.
func remediationFor(err error) string {
	switch {
	case errors.Is(err, reconcile.ErrDirtyTree):
		return "Commit or stash changes first."
	case errors.Is(err, lease.ErrHeld):
		return "Another process holds the controller lease; retry when it exits."
	case errors.Is(err, lease.ErrInconsistent):
		return "Inspect with 'ch doctor', then retry with --force to take over."
	case errors.Is(err, git.ErrPushRejected):
		return "Fetch and rebase the run branch, then finish again."
	case errors.Is(err, git.ErrAuth):
		return "Check your git credentials for the remote."
	case errors.Is(err, docdrift.ErrDrift):
		return "Document the listed items or record decisions, then finish again."
	}
	return ""
}
