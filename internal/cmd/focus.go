package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/style"
)

var focusForce bool

var focusCmd = &cobra.Command{
	Use:   "focus [set <id|name>]",
	Short: "Show or set the focus project",
	Long: `Without arguments, print the current focus project (read-only).
'focus set <id|name>' switches focus and takes the lease for the write.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runFocus,
}

func init() {
	focusCmd.Flags().BoolVar(&focusForce, "force", false, "take over an inconsistent controller lease")
	rootCmd.AddCommand(focusCmd)
}

func runFocus(cmd *cobra.Command, args []string) error {
	d := newDeps()

	if len(args) == 0 {
		st, err := d.store.Load()
		if err != nil {
			return err
		}
		if focus := st.FocusProject(); focus != nil {
			fmt.Printf("%s %s\n", style.Bold.Render(focus.Name), style.Dim.Render(focus.RepoPath))
		} else {
			fmt.Println(style.Dim.Render("no focus project set"))
		}
		return nil
	}

	if args[0] != "set" || len(args) != 2 {
		return fmt.Errorf("usage: ch focus set <id|name>")
	}
	target := args[1]

	return d.withLease(focusForce, func(l *lease.Lease) error {
		st, err := d.store.Load()
		if err != nil {
			return err
		}
		project := st.ProjectByID(target)
		if project == nil {
			project = st.ProjectByName(target)
		}
		if project == nil {
			return fmt.Errorf("no project with id or name %q", target)
		}

		st.FocusProjectID = project.ID
		project.LastTouchedAt = time.Now().UTC()
		if err := d.store.Save(st); err != nil {
			return err
		}
		d.rec.Invalidate()
		fmt.Printf("%s Focus set to %s\n", style.Success.Render("✓"), style.Bold.Render(project.Name))
		return nil
	})
}
