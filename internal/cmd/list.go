package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/state"
	"github.com/zyahav/cloud-harness/internal/style"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects and runs",
	Long: `List every registered project and its runs from the registry
snapshot. Read-only: no lease, no reconcile.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	d := newDeps()
	st, err := d.store.Load()
	if err != nil {
		return err
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	if len(st.Projects) == 0 {
		fmt.Println(style.Dim.Render("No projects registered. Run 'ch start <name> --repo-path <repo>' to begin."))
		return nil
	}

	for _, project := range st.Projects {
		focus := ""
		if project.ID == st.FocusProjectID {
			focus = style.Bold.Render(" (focus)")
		}
		fmt.Printf("%s%s  %s\n", style.Bold.Render(project.Name), focus, style.Dim.Render(project.RepoPath))

		runs := st.RunsForProject(project.ID)
		if len(runs) == 0 {
			fmt.Println(style.Dim.Render("  no runs"))
			continue
		}
		table := style.NewTable(
			style.Column{Name: "RUN", Width: 20},
			style.Column{Name: "STATE", Width: 10},
			style.Column{Name: "BRANCH", Width: 24},
			style.Column{Name: "AGE", Width: 5},
			style.Column{Name: "LAST", Width: 24, Style: style.Dim},
		)
		for _, run := range runs {
			table.AddRow(run.RunName, renderState(run.State), run.BranchName,
				formatAge(run.CreatedAt), run.LastResult)
		}
		fmt.Print(table.Render())
	}
	return nil
}

func renderState(s state.RunState) string {
	switch s {
	case state.RunFinished:
		return style.Success.Render(string(s))
	case state.RunParked, state.RunMissing:
		return style.Warning.Render(string(s))
	default:
		return string(s)
	}
}
