package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/home"
	"github.com/zyahav/cloud-harness/internal/style"
)

var bootstrapApply bool

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Prepare the harness home directory",
	Long: `Show what bootstrap would create; --apply creates it.

Bootstrap lays out ~/.cloud-harness and its locks directory, and
writes commented starter config.toml and agents.yaml when they do not
exist. Existing files are never overwritten. No lease is needed: nothing
here touches the registry.`,
	RunE: runBootstrap,
}

const starterConfig = `# cloud-harness configuration

[push]
# remote = "origin"

[doc]
# strict = true makes every finish fail on unresolved doc drift
# strict = false

[agent]
# profile selects the default entry from agents.yaml
# profile = "default"
`

const starterAgents = `# Agent launch profiles for 'ch run'.
#
# default:
#   command: claude
#   args: ["--permission-mode", "acceptEdits"]
#   env:
#     AGENT_WORKSPACE: run
`

func init() {
	bootstrapCmd.Flags().BoolVar(&bootstrapApply, "apply", false, "create the home layout")
	rootCmd.AddCommand(bootstrapCmd)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	root := harnessHome()

	planned := []struct {
		path    string
		content string
	}{
		{home.ConfigPath(root), starterConfig},
		{home.AgentsPath(root), starterAgents},
	}

	if !bootstrapApply {
		fmt.Printf("Would create under %s:\n", style.Bold.Render(root))
		fmt.Println("  locks/")
		for _, f := range planned {
			marker := "create"
			if _, err := os.Stat(f.path); err == nil {
				marker = "keep existing"
			}
			fmt.Printf("  %s (%s)\n", f.path, style.Dim.Render(marker))
		}
		fmt.Println(style.Dim.Render("\nRun 'ch bootstrap --apply' to create."))
		return nil
	}

	if err := home.EnsureDirs(root); err != nil {
		return err
	}
	for _, f := range planned {
		if _, err := os.Stat(f.path); err == nil {
			continue
		}
		if err := os.WriteFile(f.path, []byte(f.content), 0644); err != nil {
			return err
		}
	}
	fmt.Printf("%s Harness home ready at %s\n", style.Success.Render("✓"), style.Bold.Render(root))
	return nil
}
