package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/zyahav/cloud-harness/internal/events"
	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/lifecycle"
	"github.com/zyahav/cloud-harness/internal/reconcile"
	"github.com/zyahav/cloud-harness/internal/state"
	"github.com/zyahav/cloud-harness/internal/style"
)

// deps bundles the wiring every command needs.
type deps struct {
	root   string
	store  *state.Store
	log    *events.Log
	rec    *reconcile.Reconciler
	engine *lifecycle.Engine
}

func newDeps() *deps {
	root := harnessHome()
	store := state.NewStore(root)
	log := events.NewLog(root)
	rec := reconcile.New(store, log)
	return &deps{
		root:   root,
		store:  store,
		log:    log,
		rec:    rec,
		engine: lifecycle.New(store, rec, log),
	}
}

// isInteractive reports whether we can prompt the user.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirm asks a yes/no question on the terminal. Non-interactive contexts
// always answer no.
func confirm(question string) bool {
	if !isInteractive() {
		return false
	}
	fmt.Printf("%s [y/N] ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// withLease acquires the controller lease, runs fn, and releases on exit.
// The lease is also released on fatal error paths because Release runs
// deferred before the error propagates.
func (d *deps) withLease(force bool, fn func(l *lease.Lease) error) error {
	l, err := lease.Acquire(d.root, d.log, lease.Options{
		Force: force,
		ConfirmTakeover: func(holder *lease.LockInfo, lastBeat time.Time) bool {
			return confirm(fmt.Sprintf(
				"Controller pid %d has not heartbeat since %s. Take over?",
				holder.PID, lastBeat.Format(time.RFC3339)))
		},
	})
	if err != nil {
		return err
	}
	defer l.Release()

	// Draining observer captures is the controller's job on every save
	// cycle; do it up front so mutations see the full inbox.
	if st, loadErr := d.store.Load(); loadErr == nil {
		if drained, drainErr := d.store.Drain(st); drainErr == nil && drained > 0 {
			if d.store.Save(st) == nil {
				_ = d.store.ClearPending()
				d.log.Emit(events.StateUpdated, map[string]any{"drained_inbox": drained})
			}
		}
	}

	return fn(l)
}

// checkRunRepo verifies that a named run belongs to the repository the
// user pointed at. An empty repoPath skips the check.
func checkRunRepo(d *deps, runName, repoPath string) error {
	if repoPath == "" {
		return nil
	}
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return err
	}
	st, err := d.store.Load()
	if err != nil {
		return err
	}
	run := st.RunByName("", runName)
	if run == nil {
		return nil // the engine reports the missing run with its own error
	}
	project := st.ProjectByID(run.ProjectID)
	if project != nil && project.RepoPath != abs {
		return fmt.Errorf("run %s belongs to %s, not %s", runName, project.RepoPath, abs)
	}
	return nil
}

// warnDrift prints the view's drift records for read-only commands.
func warnDrift(view *reconcile.View) {
	for _, drift := range view.Drifts {
		fmt.Printf("%s %s\n", style.Warning.Render("⚠"), drift.String())
	}
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}
