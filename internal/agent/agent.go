// Package agent launches the external coding agent inside a prepared
// worktree and observes its completion.
//
// The agent binary and its SDK are external collaborators: this package is
// only constructed inside the run command, so every other command carries no
// dependency on agent tooling.
package agent

import (
	"fmt"
	"os"
	"os/exec"

	"gopkg.in/yaml.v3"
)

// Profile describes how to launch one agent.
type Profile struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// Profiles is the agents.yaml document: profile name → launch spec.
type Profiles map[string]Profile

// DefaultProfile is used when agents.yaml is absent or names no profile.
var DefaultProfile = Profile{Command: "claude", Args: []string{"--permission-mode", "acceptEdits"}}

// LoadProfiles reads agents.yaml at path. A missing file yields an empty
// set; Resolve then falls back to the built-in default.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Profiles{}, nil
		}
		return nil, err
	}
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return p, nil
}

// Resolve returns the named profile, or the default when absent.
func (p Profiles) Resolve(name string) Profile {
	if prof, ok := p[name]; ok && prof.Command != "" {
		return prof
	}
	return DefaultProfile
}

// Runner spawns an agent process. Constructed lazily by the run command.
type Runner struct {
	profile Profile
}

// NewRunner creates a Runner for a resolved profile.
func NewRunner(profile Profile) *Runner {
	return &Runner{profile: profile}
}

// Run spawns the agent with its working directory set to the worktree,
// inherits the terminal, waits for exit, and returns the exit code. The
// harness does not manage the agent's lifetime beyond spawn-and-wait.
func (r *Runner) Run(worktree string) (int, error) {
	path, err := exec.LookPath(r.profile.Command)
	if err != nil {
		return -1, fmt.Errorf("agent command %q not found: %w", r.profile.Command, err)
	}

	cmd := exec.Command(path, r.profile.Args...)
	cmd.Dir = worktree
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	for k, v := range r.profile.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}
