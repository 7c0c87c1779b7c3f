package reconcile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zyahav/cloud-harness/internal/git"
	"github.com/zyahav/cloud-harness/internal/state"
	"github.com/zyahav/cloud-harness/internal/util"
)

// UnsafePathError explains why a destructive path operation was refused.
type UnsafePathError struct {
	Path   string
	Reason string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("refusing to touch %s: %s", e.Path, e.Reason)
}

func (e *UnsafePathError) Unwrap() error { return ErrUnsafePath }

// CheckPathSafety gates every destructive path operation. The path must
// normalize, fall inside a registered project or its managed runs
// directory, and carry the worktree marker. Any failure refuses; nothing is
// ever deleted on the failure path.
func CheckPathSafety(st *state.State, path string) error {
	canon, err := util.Canonicalize(path)
	if err != nil {
		return &UnsafePathError{Path: path, Reason: fmt.Sprintf("cannot normalize: %v", err)}
	}

	allowed := false
	for _, p := range st.Projects {
		repo := canonicalOrRaw(p.RepoPath)
		if canon == repo {
			return &UnsafePathError{Path: path, Reason: "path is a project root, not a run worktree"}
		}
		if util.IsSubpath(repo, canon) || util.IsSubpath(filepath.Join(repo, RunsDirName), canon) {
			allowed = true
			break
		}
	}
	if !allowed {
		return &UnsafePathError{Path: path, Reason: "outside every registered project"}
	}

	if _, err := os.Stat(filepath.Join(canon, MarkerFile)); err != nil {
		return &UnsafePathError{Path: path, Reason: "missing " + MarkerFile + " marker"}
	}
	return nil
}

// DirtyError names the tree that blocked a mutation.
type DirtyError struct {
	Path string
}

func (e *DirtyError) Error() string {
	return fmt.Sprintf("working tree at %s is dirty; commit or stash changes first", e.Path)
}

func (e *DirtyError) Unwrap() error { return ErrDirtyTree }

// RequireClean refuses with a DirtyError when the tree at dir has
// uncommitted changes.
func RequireClean(g *git.Git) error {
	status, err := g.Status()
	if err != nil {
		return err
	}
	if !status.Clean {
		return &DirtyError{Path: g.Dir()}
	}
	return nil
}
