// Package home resolves the harness home directory layout.
//
// The home path defaults to ~/.cloud-harness but every consumer receives it
// as an explicit value so tests can inject a temp root. Nothing in this
// package reads environment variables.
package home

import (
	"os"
	"path/filepath"

	"github.com/zyahav/cloud-harness/internal/util"
)

const (
	// DirName is the default home directory under the user's home.
	DirName = "~/.cloud-harness"

	locksDir      = "locks"
	stateFile     = "state.json"
	eventsFile    = "events.log"
	inboxFile     = "inbox.pending"
	configFile    = "config.toml"
	agentsFile    = "agents.yaml"
	lockFile      = "commander.lock"
	heartbeatFile = "commander.heartbeat"
)

// Default returns the default home root for the current user.
func Default() string {
	return util.ExpandHome(DirName)
}

// EnsureDirs creates the home root and locks directory if missing.
func EnsureDirs(root string) error {
	return os.MkdirAll(filepath.Join(root, locksDir), 0755)
}

// StatePath returns the registry file path.
func StatePath(root string) string { return filepath.Join(root, stateFile) }

// StateTempPath returns the transient registry temp file path.
func StateTempPath(root string) string { return filepath.Join(root, stateFile+".tmp") }

// EventsPath returns the append-only event log path.
func EventsPath(root string) string { return filepath.Join(root, eventsFile) }

// InboxPendingPath returns the observer inbox capture log path.
func InboxPendingPath(root string) string { return filepath.Join(root, inboxFile) }

// ConfigPath returns the harness config file path.
func ConfigPath(root string) string { return filepath.Join(root, configFile) }

// AgentsPath returns the agent profile file path.
func AgentsPath(root string) string { return filepath.Join(root, agentsFile) }

// LockPath returns the controller lock file path.
func LockPath(root string) string { return filepath.Join(root, locksDir, lockFile) }

// HeartbeatPath returns the controller heartbeat file path.
func HeartbeatPath(root string) string { return filepath.Join(root, locksDir, heartbeatFile) }
