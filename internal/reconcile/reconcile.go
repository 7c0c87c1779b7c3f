// Package reconcile folds Git reality into the registry's view of the world.
//
// Git is the source of truth: where the registry and the filesystem
// disagree, the reconciler adopts reality (by parking runs) or surfaces the
// discrepancy as drift for the user to resolve. Results are cached briefly;
// every mutating command invalidates the cache before acting.
package reconcile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zyahav/cloud-harness/internal/events"
	"github.com/zyahav/cloud-harness/internal/git"
	"github.com/zyahav/cloud-harness/internal/state"
	"github.com/zyahav/cloud-harness/internal/util"
)

// MarkerFile is the per-worktree sigil gating destructive operations.
const MarkerFile = ".harness-worktree"

// CacheTTL is how long a reconciled view stays fresh.
const CacheTTL = 30 * time.Second

// RunsDirName is the harness-managed worktrees directory under a repo.
const RunsDirName = "runs"

// DriftKind classifies a discrepancy between registry and Git reality.
type DriftKind string

const (
	MissingWorktree DriftKind = "missing_worktree"
	MarkerMissing   DriftKind = "marker_missing"
	BranchChanged   DriftKind = "branch_changed"
	UnknownWorktree DriftKind = "unknown_worktree"
	DirtyTree       DriftKind = "dirty_tree"
)

// Drift is one observed discrepancy.
type Drift struct {
	Kind   DriftKind
	RunID  string
	Path   string
	Branch string
	Detail string
}

func (d Drift) String() string {
	switch d.Kind {
	case MissingWorktree:
		return fmt.Sprintf("worktree missing for run %s (parked)", d.RunID)
	case MarkerMissing:
		return fmt.Sprintf("marker file missing in %s", d.Path)
	case BranchChanged:
		return fmt.Sprintf("run %s worktree is on branch %q (registry says %q)", d.RunID, d.Branch, d.Detail)
	case UnknownWorktree:
		return fmt.Sprintf("untracked worktree %s (branch %s)", d.Path, d.Branch)
	case DirtyTree:
		return fmt.Sprintf("dirty tree at %s", d.Path)
	}
	return string(d.Kind)
}

// View is the reconciled snapshot handed to commands. Run state transitions
// (parking) live in the view; persisting them is the caller's decision.
type View struct {
	State       *state.State
	Drifts      []Drift
	RefreshedAt time.Time
}

// DriftsOfKind filters the view's drift records.
func (v *View) DriftsOfKind(kind DriftKind) []Drift {
	var out []Drift
	for _, d := range v.Drifts {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Policy errors.
var (
	// ErrDirtyTree refuses mutation of an unclean tree.
	ErrDirtyTree = errors.New("working tree is dirty")
	// ErrUnsafePath refuses a destructive operation on an unvetted path.
	ErrUnsafePath = errors.New("unsafe path")
)

// gitOpener is injectable for tests that need to fake git behavior.
type gitOpener func(dir string) *git.Git

// Reconciler builds and caches reconciled views.
type Reconciler struct {
	store   *state.Store
	log     *events.Log
	openGit gitOpener

	mu        sync.Mutex
	cached    *View
	cachedKey string
}

// New creates a Reconciler over a store.
func New(store *state.Store, log *events.Log) *Reconciler {
	return &Reconciler{store: store, log: log, openGit: git.NewGit}
}

// View returns a fresh-enough cached view, refreshing when the cache has
// expired or the project set changed.
func (r *Reconciler) View() (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	key := projectKey(st)
	if r.cached != nil && r.cachedKey == key && time.Since(r.cached.RefreshedAt) < CacheTTL {
		return r.cached, nil
	}

	view, err := r.build(st)
	if err != nil {
		return nil, err
	}
	r.cached = view
	r.cachedKey = key
	return view, nil
}

// Refresh discards the cache and rebuilds the view.
func (r *Reconciler) Refresh() (*View, error) {
	r.Invalidate()
	return r.View()
}

// Invalidate drops the cached view. Mutating commands call this before
// acting so they never plan against stale reality.
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

func projectKey(st *state.State) string {
	ids := make([]string, 0, len(st.Projects))
	for _, p := range st.Projects {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// build runs the reconciliation algorithm against Git.
func (r *Reconciler) build(st *state.State) (*View, error) {
	r.log.Emit(events.ReconcileStart, map[string]any{"projects": len(st.Projects)})

	view := &View{State: st, RefreshedAt: time.Now()}

	for pi := range st.Projects {
		project := &st.Projects[pi]
		g := r.openGit(project.RepoPath)

		worktrees, err := g.WorktreeList()
		if err != nil {
			// The repo itself is unreachable; every registered run under it
			// is treated as missing.
			worktrees = nil
		}

		byPath := make(map[string]git.Worktree, len(worktrees))
		for _, wt := range worktrees {
			byPath[canonicalOrRaw(wt.Path)] = wt
		}

		known := make(map[string]bool)
		for ri := range st.Runs {
			run := &st.Runs[ri]
			if run.ProjectID != project.ID {
				continue
			}
			wt, present := byPath[canonicalOrRaw(run.WorktreePath)]
			if !present {
				view.Drifts = append(view.Drifts, Drift{Kind: MissingWorktree, RunID: run.ID, Path: run.WorktreePath})
				if run.State != state.RunParked {
					run.State = state.RunParked
				}
				continue
			}
			known[canonicalOrRaw(wt.Path)] = true

			if _, err := os.Stat(filepath.Join(run.WorktreePath, MarkerFile)); err != nil {
				view.Drifts = append(view.Drifts, Drift{Kind: MarkerMissing, RunID: run.ID, Path: run.WorktreePath})
			}
			if wt.Branch != "" && wt.Branch != run.BranchName {
				// Never silently adopted: a manual checkout is reported as
				// drift and the run keeps its recorded branch. No prompt is
				// raised and mutating commands on the run are not refused.
				view.Drifts = append(view.Drifts, Drift{
					Kind: BranchChanged, RunID: run.ID, Path: run.WorktreePath,
					Branch: wt.Branch, Detail: run.BranchName,
				})
			}
		}

		repoCanon := canonicalOrRaw(project.RepoPath)
		for _, wt := range worktrees {
			path := canonicalOrRaw(wt.Path)
			if path == repoCanon || known[path] || wt.Bare {
				continue
			}
			// Only worktrees under the managed runs directory are ours to
			// wonder about; unrelated worktrees are the user's business.
			if !util.IsSubpath(filepath.Join(repoCanon, RunsDirName), path) {
				continue
			}
			view.Drifts = append(view.Drifts, Drift{Kind: UnknownWorktree, Path: wt.Path, Branch: wt.Branch})
		}
	}

	if focus := st.FocusProject(); focus != nil {
		g := r.openGit(focus.RepoPath)
		if status, err := g.Status(); err == nil && !status.Clean {
			view.Drifts = append(view.Drifts, Drift{Kind: DirtyTree, Path: focus.RepoPath})
		}
	}

	r.log.Emit(events.ReconcileResult, map[string]any{"drifts": len(view.Drifts)})
	return view, nil
}

func canonicalOrRaw(path string) string {
	if c, err := util.Canonicalize(path); err == nil {
		return c
	}
	return filepath.Clean(path)
}
