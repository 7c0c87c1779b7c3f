// Package cmd implements the ch command surface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/home"
)

// homeRoot is the harness home for this invocation. Defaults to
// ~/.cloud-harness; the hidden --home flag injects a different root for
// tests and scripted setups.
var homeRoot string

var rootCmd = &cobra.Command{
	Use:   "ch",
	Short: "Control plane for long-lived coding agents",
	Long: `ch supervises autonomous coding agents working in isolated git
worktrees. Each run gets its own branch and worktree; the registry at
~/.cloud-harness tracks projects, runs, and inbox items, and a single
controller lease keeps concurrent invocations from corrupting shared state.

Typical flow:
  ch start feat-x --repo-path ~/src/hub     # prepare branch + worktree
  ch run feat-x                             # launch the agent there
  ch finish feat-x                          # verify, doc-check, push
  ch clean feat-x --delete-branch           # tear down

Read-only commands (list, status, next) never take the lease; mutating
commands hold it for the duration of the operation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeRoot, "home", "", "override the harness home directory")
	_ = rootCmd.PersistentFlags().MarkHidden("home")
}

// harnessHome resolves the effective home root.
func harnessHome() string {
	if homeRoot != "" {
		return homeRoot
	}
	return home.Default()
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return 0
	}
	printError(cmd, err)
	return exitCodeFor(err)
}

func printError(cmd *cobra.Command, err error) {
	fmt.Fprintf(os.Stderr, "ch: %v\n", err)
	if hint := remediationFor(err); hint != "" {
		fmt.Fprintf(os.Stderr, "    %s\n", hint)
	}
}
