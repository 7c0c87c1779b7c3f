package docdrift

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ItemKind says which surface drifted.
type ItemKind string

const (
	KindFlag ItemKind = "flag"
	KindFile ItemKind = "file"
)

// Item is one drift candidate.
type Item struct {
	ID     string   `json:"id"`
	Kind   ItemKind `json:"kind"`
	Detail string   `json:"detail"`
}

// ErrDrift is the sentinel wrapped by DriftError.
var ErrDrift = errors.New("unresolved documentation drift")

// DriftError carries the unresolved items in strict mode.
type DriftError struct {
	Items []Item
}

func (e *DriftError) Error() string {
	ids := make([]string, len(e.Items))
	for i, item := range e.Items {
		ids[i] = item.ID
	}
	return fmt.Sprintf("%d undocumented change(s): %s", len(e.Items), strings.Join(ids, ", "))
}

func (e *DriftError) Unwrap() error { return ErrDrift }

// sourceExtensions are the file types counted as public source files.
var sourceExtensions = map[string]bool{
	".go": true, ".py": true, ".rs": true, ".ts": true, ".js": true, ".sh": true,
}

// Checker scans a project for undocumented surface.
type Checker struct {
	// Flags are the CLI flag strings declared in code (e.g. "--doc-strict").
	Flags []string
	// DocPaths are the tracked documentation files; every flag must appear
	// literally in each of them.
	DocPaths []string
	// GuidePath is the agent guide that must mention every public source
	// file in the project root. The whole file is searched, not one section.
	GuidePath string
	// RepoRoot is the project being checked.
	RepoRoot string
	// Store holds prior decisions.
	Store *Store
}

// Unresolved returns the drift candidates that no live decision covers,
// sorted by id. Internal decisions suppress forever; deferred ones until
// expiry; documented items re-surface only if the literal check still fails.
func (c *Checker) Unresolved(now time.Time) ([]Item, error) {
	candidates, err := c.scan()
	if err != nil {
		return nil, err
	}

	var unresolved []Item
	for _, item := range candidates {
		if rec := c.Store.Get(item.ID); rec != nil {
			switch rec.Decision {
			case DecisionInternal:
				continue
			case DecisionDeferred:
				if !rec.Expired(now) {
					continue
				}
			}
		}
		unresolved = append(unresolved, item)
	}
	sort.Slice(unresolved, func(i, j int) bool { return unresolved[i].ID < unresolved[j].ID })
	return unresolved, nil
}

// scan finds every flag or public file missing from the docs.
func (c *Checker) scan() ([]Item, error) {
	docs := make(map[string]string, len(c.DocPaths))
	for _, path := range c.DocPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				// A missing doc file means everything tracked against it
				// drifts; treat it as empty.
				docs[path] = ""
				continue
			}
			return nil, err
		}
		docs[path] = string(data)
	}

	var items []Item
	for _, flag := range c.Flags {
		for path, content := range docs {
			if !strings.Contains(content, flag) {
				items = append(items, Item{
					ID:     flag,
					Kind:   KindFlag,
					Detail: fmt.Sprintf("flag %s not mentioned in %s", flag, filepath.Base(path)),
				})
				break
			}
		}
	}

	guide := ""
	if c.GuidePath != "" {
		if data, err := os.ReadFile(c.GuidePath); err == nil {
			guide = string(data)
		}
	}
	files, err := c.publicFiles()
	if err != nil {
		return nil, err
	}
	for _, name := range files {
		if !strings.Contains(guide, name) {
			items = append(items, Item{
				ID:     name,
				Kind:   KindFile,
				Detail: fmt.Sprintf("file %s not mentioned in the agent guide", name),
			})
		}
	}
	return items, nil
}

// publicFiles lists source files in the project root, excluding anything
// prefixed with "_" or "test_".
func (c *Checker) publicFiles() ([]string, error) {
	entries, err := os.ReadDir(c.RepoRoot)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, "test_") || strings.HasPrefix(name, ".") {
			continue
		}
		if !sourceExtensions[filepath.Ext(name)] {
			continue
		}
		files = append(files, name)
	}
	return files, nil
}
