package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/style"
)

var (
	cleanDeleteBranch bool
	cleanForce        bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean <runName>",
	Short: "Remove a run's worktree and registry entry",
	Long: `Tear down a finished or parked run.

The worktree path must pass the safety gate (inside a registered project,
carrying the worktree marker) before anything is deleted; a path that
fails the gate is refused with exit 5 and nothing is touched. Active runs
are only cleaned with --force, which also discards uncommitted changes in
the worktree and, like --force elsewhere, takes over an inconsistent
controller lease. --delete-branch removes the local run branch too (soft:
an already-deleted branch is fine).`,
	Args: cobra.ExactArgs(1),
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanDeleteBranch, "delete-branch", false, "also delete the local run branch")
	cleanCmd.Flags().BoolVar(&cleanForce, "force", false, "clean an active run (discarding worktree changes) and take over an inconsistent lease")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	d := newDeps()
	return d.withLease(cleanForce, func(l *lease.Lease) error {
		if err := d.engine.Clean(args[0], cleanDeleteBranch, cleanForce); err != nil {
			return err
		}
		fmt.Printf("%s Run %s cleaned\n", style.Success.Render("✓"), style.Bold.Render(args[0]))
		return nil
	})
}
