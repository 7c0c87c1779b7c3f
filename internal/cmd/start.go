package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/lifecycle"
	"github.com/zyahav/cloud-harness/internal/style"
)

var (
	startRepoPath    string
	startHandoffPath string
	startMode        string
	startForce       bool
)

var startCmd = &cobra.Command{
	Use:   "start <runName>",
	Short: "Create an isolated run: branch, worktree, handoff",
	Long: `Create a new run against a clean repository.

start cuts a run/<runName> branch from the repo's HEAD, adds a worktree at
<repo>/runs/<runName>, drops the worktree marker, and installs the handoff
(copied from --handoff-path, or a starter plan if none is given). The repo
is registered as a project on first use.

The target repository must be clean, and the run name must not collide
with an existing run, branch, or worktree.

Examples:
  ch start feat-x --repo-path ~/src/hub
  ch start feat-x --repo-path ~/src/hub --handoff-path plan.json --mode brownfield`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startRepoPath, "repo-path", "", "path to the target git repository")
	startCmd.Flags().StringVar(&startHandoffPath, "handoff-path", "", "handoff file to install in the worktree")
	startCmd.Flags().StringVar(&startMode, "mode", "greenfield", "greenfield or brownfield")
	startCmd.Flags().BoolVar(&startForce, "force", false, "take over an inconsistent controller lease")
	_ = startCmd.MarkFlagRequired("repo-path")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	if startMode != "greenfield" && startMode != "brownfield" {
		return fmt.Errorf("unknown mode %q (want greenfield or brownfield)", startMode)
	}

	d := newDeps()
	return d.withLease(startForce, func(l *lease.Lease) error {
		run, err := d.engine.Start(lifecycle.StartOptions{
			RunName:     args[0],
			RepoPath:    startRepoPath,
			HandoffPath: startHandoffPath,
			Mode:        startMode,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s Run %s ready\n", style.Success.Render("✓"), style.Bold.Render(run.RunName))
		fmt.Printf("  worktree  %s\n", run.WorktreePath)
		fmt.Printf("  branch    %s\n", run.BranchName)
		return nil
	})
}
