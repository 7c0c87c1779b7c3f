package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/rules"
	"github.com/zyahav/cloud-harness/internal/style"
)

var nextJSON bool

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Suggest the single next action",
	Long: `Compute the next action from the reconciled view: clean stale
runs first, then continue failing runs, then finish completed ones, then
set focus or start new work. Read-only.`,
	RunE: runNext,
}

func init() {
	nextCmd.Flags().BoolVar(&nextJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(nextCmd)
}

func runNext(cmd *cobra.Command, args []string) error {
	d := newDeps()
	view, err := d.rec.View()
	if err != nil {
		return err
	}

	action := rules.ComputeNextAction(view, rules.FSProbe{})

	if nextJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(action)
	}

	fmt.Printf("%s %s\n", style.Bold.Render("next:"), action.Action)
	fmt.Printf("%s  %s\n", style.Dim.Render("why:"), action.Why)
	fmt.Printf("%s %s\n", style.Dim.Render("done:"), action.Done)
	warnDrift(view)
	return nil
}
