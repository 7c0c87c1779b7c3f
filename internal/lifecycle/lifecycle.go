// Package lifecycle orchestrates run creation, execution, finishing, and
// teardown over the git driver and the handoff schema.
//
// Start, Finish and Clean follow Plan → Execute → Verify → Commit: the plan
// and its expected postconditions are logged, the registry is only written
// after every postcondition verifies, and a verify failure leaves the
// registry exactly as it was. Run emits no plan or verify events; it writes
// the running state before spawning the agent and the result after it exits.
package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zyahav/cloud-harness/internal/agent"
	"github.com/zyahav/cloud-harness/internal/events"
	"github.com/zyahav/cloud-harness/internal/git"
	"github.com/zyahav/cloud-harness/internal/handoff"
	"github.com/zyahav/cloud-harness/internal/reconcile"
	"github.com/zyahav/cloud-harness/internal/state"
)

// BranchPrefix is the conventional prefix for run branches.
const BranchPrefix = "run/"

// ErrConflict is the sentinel wrapped by ConflictError.
var ErrConflict = errors.New("name conflict")

// ConflictError reports a run, branch, or worktree name clash.
type ConflictError struct {
	Entity string
	Name   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Name)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ErrIncomplete means finish was asked to ship a plan with failing tasks.
var ErrIncomplete = errors.New("handoff has failing tasks")

// ErrNotFound means the named run is not in the registry.
var ErrNotFound = errors.New("run not found")

// Engine drives run lifecycle operations.
type Engine struct {
	store *state.Store
	rec   *reconcile.Reconciler
	log   *events.Log
}

// New creates an Engine.
func New(store *state.Store, rec *reconcile.Reconciler, log *events.Log) *Engine {
	return &Engine{store: store, rec: rec, log: log}
}

// StartOptions configures Start.
type StartOptions struct {
	RunName     string
	RepoPath    string
	HandoffPath string // optional; a starter plan is generated when empty
	Mode        string // greenfield or brownfield; informational in the starter plan
}

// Start creates the run's branch and worktree, drops the marker, installs
// the handoff, and registers the run.
func (e *Engine) Start(opts StartOptions) (*state.Run, error) {
	e.rec.Invalidate()

	st, err := e.store.Load()
	if err != nil {
		return nil, err
	}

	repoPath, err := filepath.Abs(opts.RepoPath)
	if err != nil {
		return nil, err
	}
	g := git.NewGit(repoPath)
	if !g.IsRepo() {
		return nil, fmt.Errorf("%s is not a git repository", repoPath)
	}

	project := st.ProjectByRepoPath(repoPath)
	if project == nil {
		// First run against this repo registers the project.
		st.Projects = append(st.Projects, state.Project{
			ID:            uuid.NewString(),
			Name:          filepath.Base(repoPath),
			RepoPath:      repoPath,
			Status:        state.ProjectActive,
			LastTouchedAt: time.Now().UTC(),
		})
		project = &st.Projects[len(st.Projects)-1]
		if st.FocusProjectID == "" {
			st.FocusProjectID = project.ID
		}
	}

	branch := BranchPrefix + opts.RunName
	worktreePath := filepath.Join(repoPath, reconcile.RunsDirName, opts.RunName)

	// Preconditions: clean tree, no name collisions.
	if err := reconcile.RequireClean(g); err != nil {
		return nil, err
	}
	if st.RunByName(project.ID, opts.RunName) != nil {
		return nil, &ConflictError{Entity: "run", Name: opts.RunName}
	}
	if g.BranchExists(branch) {
		return nil, &ConflictError{Entity: "branch", Name: branch}
	}
	if _, err := os.Stat(worktreePath); err == nil {
		return nil, &ConflictError{Entity: "worktree", Name: worktreePath}
	}

	e.log.Emit(events.CommandPlan, map[string]any{
		"command": "start",
		"run":     opts.RunName,
		"calls":   []string{"worktree add -b " + branch, "write marker", "install handoff"},
		"expect":  []string{"worktree exists", "marker exists", "branch checked out", "handoff parses"},
	})

	// Execute.
	e.log.Emit(events.CommandExecute, map[string]any{"command": "start", "run": opts.RunName})
	if err := ensureExcludes(repoPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(worktreePath), 0755); err != nil {
		return nil, err
	}
	if err := g.WorktreeAdd(worktreePath, branch, "HEAD"); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(worktreePath, reconcile.MarkerFile), nil, 0644); err != nil {
		return nil, err
	}
	handoffDst := filepath.Join(worktreePath, handoff.FileName)
	if err := e.installHandoff(opts, handoffDst); err != nil {
		return nil, err
	}

	// Verify every postcondition before touching the registry.
	if err := verifyStart(worktreePath, branch, handoffDst); err != nil {
		e.log.Emit(events.CommandVerifyFail, map[string]any{"command": "start", "run": opts.RunName, "error": err.Error()})
		return nil, err
	}
	e.log.Emit(events.CommandVerifyOK, map[string]any{"command": "start", "run": opts.RunName})

	// Commit.
	now := time.Now().UTC()
	run := state.Run{
		ID:           uuid.NewString(),
		RunName:      opts.RunName,
		ProjectID:    project.ID,
		WorktreePath: worktreePath,
		BranchName:   branch,
		State:        state.RunCreated,
		LastCommand:  "start",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	st.Runs = append(st.Runs, run)
	project.LastTouchedAt = now
	if err := e.saveAndLog(st); err != nil {
		return nil, err
	}
	return &run, nil
}

// ensureExcludes keeps harness-managed directories out of the project's
// git status via .git/info/exclude, so runs and decision stores never make
// the parent tree look dirty.
func ensureExcludes(repoPath string) error {
	excludePath := filepath.Join(repoPath, ".git", "info", "exclude")
	if err := os.MkdirAll(filepath.Dir(excludePath), 0755); err != nil {
		return err
	}
	existing, err := os.ReadFile(excludePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	content := string(existing)
	var missing string
	for _, entry := range []string{"/" + reconcile.RunsDirName + "/", "/.harness/"} {
		if !containsLine(content, entry) {
			missing += entry + "\n"
		}
	}
	if missing == "" {
		return nil
	}
	f, err := os.OpenFile(excludePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if len(content) > 0 && content[len(content)-1] != '\n' {
		missing = "\n" + missing
	}
	_, err = f.WriteString(missing)
	return err
}

func containsLine(content, line string) bool {
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

// installHandoff copies the provided plan into the worktree, or writes a
// starter plan when none was given. Either way the result must parse.
func (e *Engine) installHandoff(opts StartOptions, dst string) error {
	if opts.HandoffPath == "" {
		return handoff.Write(starterPlan(opts.RunName, opts.Mode), dst)
	}
	h, err := handoff.Read(opts.HandoffPath)
	if err != nil {
		return err
	}
	return handoff.Write(h, dst)
}

// starterPlan is the minimal plan for a run started without a handoff.
func starterPlan(runName, mode string) *handoff.Handoff {
	if mode == "" {
		mode = "greenfield"
	}
	return &handoff.Handoff{
		Meta: handoff.Meta{Project: runName, Phase: mode, Source: "harness"},
		Tasks: []handoff.Task{{
			ID:          "TASK-1",
			Category:    "functional",
			Title:       "Define the work for " + runName,
			Description: "Replace this starter plan with concrete tasks before the agent runs.",
			AcceptanceCriteria: []string{
				"the handoff describes the intended change",
			},
			Passes: false,
		}},
	}
}

func verifyStart(worktreePath, branch, handoffPath string) error {
	if info, err := os.Stat(worktreePath); err != nil || !info.IsDir() {
		return fmt.Errorf("worktree %s missing after add", worktreePath)
	}
	if _, err := os.Stat(filepath.Join(worktreePath, reconcile.MarkerFile)); err != nil {
		return fmt.Errorf("marker missing in %s", worktreePath)
	}
	current, err := git.NewGit(worktreePath).CurrentBranch()
	if err != nil {
		return err
	}
	if current != branch {
		return fmt.Errorf("worktree is on %q, expected %q", current, branch)
	}
	if _, err := handoff.Read(handoffPath); err != nil {
		return fmt.Errorf("installed handoff does not parse: %w", err)
	}
	return nil
}

// Run spawns the agent in the run's worktree and records the outcome. Exit
// zero moves the run to finished; anything else leaves it running with the
// result recorded.
func (e *Engine) Run(runName string, runner *agent.Runner) (int, error) {
	e.rec.Invalidate()

	st, err := e.store.Load()
	if err != nil {
		return -1, err
	}
	run := st.RunByName("", runName)
	if run == nil {
		return -1, fmt.Errorf("%w: %s", ErrNotFound, runName)
	}
	if _, err := os.Stat(run.WorktreePath); err != nil {
		return -1, fmt.Errorf("worktree for %s is missing; reconcile first", runName)
	}

	run.State = state.RunRunning
	run.LastCommand = "run"
	run.UpdatedAt = time.Now().UTC()
	if err := e.saveAndLog(st); err != nil {
		return -1, err
	}

	code, err := runner.Run(run.WorktreePath)
	if err != nil {
		return -1, err
	}

	// Reload before the post-run update; the agent may take a long time and
	// the registry is never written from a stale snapshot.
	st, err = e.store.Load()
	if err != nil {
		return code, err
	}
	run = st.RunByName("", runName)
	if run == nil {
		return code, fmt.Errorf("%w: %s vanished during run", ErrNotFound, runName)
	}
	run.LastResult = fmt.Sprintf("agent exited %d", code)
	run.UpdatedAt = time.Now().UTC()
	if code == 0 {
		run.State = state.RunFinished
	}
	if err := e.saveAndLog(st); err != nil {
		return code, err
	}
	return code, nil
}

// FinishOptions configures Finish.
type FinishOptions struct {
	RunName     string
	HandoffPath string // optional; defaults to the worktree's handoff
	Remote      string // defaults to origin
	// DocCheck is the doc-drift gate, wired by the command layer so the
	// engine stays free of prompt handling. A returned error aborts.
	DocCheck func() error
}

// Finish validates the completed plan, pushes the run branch, and marks the
// run finished.
func (e *Engine) Finish(opts FinishOptions) (string, error) {
	e.rec.Invalidate()

	st, err := e.store.Load()
	if err != nil {
		return "", err
	}
	run := st.RunByName("", opts.RunName)
	if run == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, opts.RunName)
	}
	project := st.ProjectByID(run.ProjectID)
	if project == nil {
		return "", fmt.Errorf("run %s references unknown project %s", run.RunName, run.ProjectID)
	}

	// Preconditions: both the project tree and the run's worktree clean,
	// and every task passing.
	if err := reconcile.RequireClean(git.NewGit(project.RepoPath)); err != nil {
		e.log.Emit(events.CommandVerifyFail, map[string]any{"command": "finish", "run": run.RunName, "error": err.Error()})
		return "", err
	}
	wg := git.NewGit(run.WorktreePath)
	if err := reconcile.RequireClean(wg); err != nil {
		e.log.Emit(events.CommandVerifyFail, map[string]any{"command": "finish", "run": run.RunName, "error": err.Error()})
		return "", err
	}

	handoffPath := opts.HandoffPath
	if handoffPath == "" {
		handoffPath = filepath.Join(run.WorktreePath, handoff.FileName)
	}
	h, err := handoff.Read(handoffPath)
	if err != nil {
		return "", err
	}
	if passing, total := handoff.CountPassing(h); passing != total {
		return "", fmt.Errorf("%w: %d of %d passing", ErrIncomplete, passing, total)
	}

	if opts.DocCheck != nil {
		if err := opts.DocCheck(); err != nil {
			return "", err
		}
	}

	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}

	e.log.Emit(events.CommandPlan, map[string]any{
		"command": "finish",
		"run":     run.RunName,
		"calls":   []string{fmt.Sprintf("push %s %s", remote, run.BranchName)},
		"expect":  []string{"remote branch at local head"},
	})
	e.log.Emit(events.CommandExecute, map[string]any{"command": "finish", "run": run.RunName})

	if err := wg.Push(remote, run.BranchName); err != nil {
		// Push rejection aborts without any registry change.
		e.log.Emit(events.CommandVerifyFail, map[string]any{"command": "finish", "run": run.RunName, "error": err.Error()})
		return "", err
	}

	// Verify: the remote tracking ref matches the local head.
	localHead, err := wg.Head()
	if err != nil {
		return "", err
	}
	remoteHead, err := wg.Rev("refs/remotes/" + remote + "/" + run.BranchName)
	if err != nil || remoteHead != localHead {
		detail := "remote ref unreadable"
		if err == nil {
			detail = fmt.Sprintf("remote at %.8s, local at %.8s", remoteHead, localHead)
		}
		e.log.Emit(events.CommandVerifyFail, map[string]any{"command": "finish", "run": run.RunName, "error": detail})
		return "", fmt.Errorf("push verification failed: %s", detail)
	}
	e.log.Emit(events.CommandVerifyOK, map[string]any{"command": "finish", "run": run.RunName})

	run.State = state.RunFinished
	run.LastCommand = "finish"
	run.LastResult = "pushed " + run.BranchName
	run.UpdatedAt = time.Now().UTC()
	if err := e.saveAndLog(st); err != nil {
		return "", err
	}

	hint := fmt.Sprintf("branch %s is on %s; open a pull request to merge it", run.BranchName, remote)
	return hint, nil
}

// Clean removes the run's worktree (and optionally its branch) and drops
// the run from the registry.
func (e *Engine) Clean(runName string, deleteBranch, force bool) error {
	e.rec.Invalidate()

	st, err := e.store.Load()
	if err != nil {
		return err
	}
	run := st.RunByName("", runName)
	if run == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, runName)
	}
	project := st.ProjectByID(run.ProjectID)
	if project == nil {
		return fmt.Errorf("run %s references unknown project %s", run.RunName, run.ProjectID)
	}

	if run.State != state.RunFinished && run.State != state.RunParked && !force {
		return fmt.Errorf("run %s is %s; finish it or pass --force", run.RunName, run.State)
	}

	worktreeGone := false
	if _, err := os.Stat(run.WorktreePath); os.IsNotExist(err) {
		// Parked runs may have lost their worktree already; nothing to gate.
		worktreeGone = true
	} else if err := reconcile.CheckPathSafety(st, run.WorktreePath); err != nil {
		return err
	}

	e.log.Emit(events.CommandPlan, map[string]any{
		"command": "clean",
		"run":     run.RunName,
		"calls":   []string{"worktree remove " + run.WorktreePath},
		"expect":  []string{"worktree directory gone"},
	})
	e.log.Emit(events.CommandExecute, map[string]any{"command": "clean", "run": run.RunName})

	g := git.NewGit(project.RepoPath)
	if !worktreeGone {
		if err := g.WorktreeRemove(run.WorktreePath, force); err != nil {
			return err
		}
	}
	if deleteBranch {
		// Fails soft: the branch may already be gone or merged elsewhere.
		_ = g.DeleteBranch(run.BranchName, true)
	}

	if _, err := os.Stat(run.WorktreePath); !os.IsNotExist(err) {
		e.log.Emit(events.CommandVerifyFail, map[string]any{"command": "clean", "run": run.RunName, "error": "worktree still present"})
		return fmt.Errorf("worktree %s still present after removal", run.WorktreePath)
	}
	e.log.Emit(events.CommandVerifyOK, map[string]any{"command": "clean", "run": run.RunName})

	st.RemoveRun(run.ID)
	return e.saveAndLog(st)
}

// saveAndLog persists the registry and records the update.
func (e *Engine) saveAndLog(st *state.State) error {
	if err := e.store.Save(st); err != nil {
		return err
	}
	e.log.Emit(events.StateUpdated, nil)
	return nil
}
