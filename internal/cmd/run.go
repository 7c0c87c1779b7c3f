package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/agent"
	"github.com/zyahav/cloud-harness/internal/config"
	"github.com/zyahav/cloud-harness/internal/home"
	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/style"
)

var (
	runRepoPath string
	runProfile  string
	runForce    bool
)

var runCmd = &cobra.Command{
	Use:   "run <runName>",
	Short: "Launch the agent in a run's worktree",
	Long: `Spawn the configured agent with its working directory set to the
run's worktree, wait for it to exit, and record the result. Exit zero
moves the run to finished; a non-zero exit leaves it running with the
exit code recorded.

The agent profile comes from ~/.cloud-harness/agents.yaml (selected by
--profile or the [agent] section of config.toml); without one, the
built-in default profile is used. Agent tooling is only loaded here;
no other command touches it.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runRepoPath, "repo-path", "", "repository the run belongs to (checked against the first registered run with this name)")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "agent profile from agents.yaml")
	runCmd.Flags().BoolVar(&runForce, "force", false, "take over an inconsistent controller lease")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	d := newDeps()
	return d.withLease(runForce, func(l *lease.Lease) error {
		if err := checkRunRepo(d, args[0], runRepoPath); err != nil {
			return err
		}
		// The agent SDK surface is resolved lazily, inside the one command
		// that spawns it.
		cfg, err := config.Load(home.ConfigPath(d.root))
		if err != nil {
			return err
		}
		profiles, err := agent.LoadProfiles(home.AgentsPath(d.root))
		if err != nil {
			return err
		}
		name := runProfile
		if name == "" {
			name = cfg.Agent.Profile
		}
		runner := agent.NewRunner(profiles.Resolve(name))

		fmt.Printf("%s Launching agent for run %s\n", style.Dim.Render("◌"), style.Bold.Render(args[0]))
		code, err := d.engine.Run(args[0], runner)
		if err != nil {
			return err
		}
		if code == 0 {
			fmt.Printf("%s Agent finished cleanly\n", style.Success.Render("✓"))
		} else {
			fmt.Printf("%s Agent exited %d; run stays active\n", style.Warning.Render("⚠"), code)
		}
		return nil
	})
}
