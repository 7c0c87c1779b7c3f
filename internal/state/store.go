package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zyahav/cloud-harness/internal/home"
)

// ErrCorrupt is the sentinel wrapped by CorruptError.
var ErrCorrupt = errors.New("state corrupt")

// CorruptError is returned when the registry file exists but cannot be
// parsed. Repair backs the file up and starts fresh.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("registry %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return ErrCorrupt }

// Store persists the registry at a home root with crash-safe writes.
//
// Readers take a snapshot via Load. Writers reload-modify-save while holding
// the controller lease; the store itself never retries or locks.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given home directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the home root this store persists under.
func (s *Store) Root() string { return s.root }

// Load reads the registry. A leftover temp file from a crashed write is
// deleted before reading. A missing registry loads as an empty State; a
// malformed one returns *CorruptError.
func (s *Store) Load() (*State, error) {
	if tmp := home.StateTempPath(s.root); fileExists(tmp) {
		if err := os.Remove(tmp); err != nil {
			return nil, fmt.Errorf("removing stale temp file: %w", err)
		}
	}

	path := home.StatePath(s.root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	return &st, nil
}

// Save atomically writes the registry: serialize, write temp, fsync, rename.
func (s *Store) Save(st *State) error {
	if err := home.EnsureDirs(s.root); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return AtomicWrite(home.StatePath(s.root), home.StateTempPath(s.root), data)
}

// Repair backs up a corrupt registry and returns an empty State. The backup
// keeps the raw bytes so nothing is lost to a bad write.
func (s *Store) Repair() (*State, string, error) {
	path := home.StatePath(s.root)
	backup := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(path, backup); err != nil {
		if os.IsNotExist(err) {
			return Empty(), "", nil
		}
		return nil, "", fmt.Errorf("backing up corrupt registry: %w", err)
	}
	return Empty(), backup, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
