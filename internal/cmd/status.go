package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/style"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show reconciled state and controller status",
	Long: `Reconcile the registry against git reality and print the result.

Read-only: proceeds with a visible warning when trees are dirty or runs
have drifted, and never takes the lease. The reconciler's 30-second view
cache lives in process memory, so each status invocation builds a fresh
view.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	d := newDeps()
	view, err := d.rec.View()
	if err != nil {
		return err
	}

	if statusJSON {
		out := struct {
			Focus       string   `json:"focus_project,omitempty"`
			Projects    int      `json:"projects"`
			Runs        int      `json:"runs"`
			Drifts      []string `json:"drifts"`
			RefreshedAt string   `json:"refreshed_at"`
		}{
			Projects:    len(view.State.Projects),
			Runs:        len(view.State.Runs),
			RefreshedAt: view.RefreshedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if focus := view.State.FocusProject(); focus != nil {
			out.Focus = focus.Name
		}
		for _, drift := range view.Drifts {
			out.Drifts = append(out.Drifts, drift.String())
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println(style.Header.Render("cloud-harness status"))

	if focus := view.State.FocusProject(); focus != nil {
		fmt.Printf("focus: %s %s\n", style.Bold.Render(focus.Name), style.Dim.Render(focus.RepoPath))
	} else {
		fmt.Println(style.Dim.Render("focus: none (use 'ch focus set <project>')"))
	}

	if lock, hb := lease.ReadCurrent(d.root); lock != nil {
		beat := "no heartbeat"
		if hb != nil {
			beat = "heartbeat " + formatAge(hb.LastBeatAt) + " ago"
		}
		fmt.Printf("controller: pid %d, %s\n", lock.PID, beat)
	} else {
		fmt.Println(style.Dim.Render("controller: none"))
	}

	fmt.Printf("projects: %d   runs: %d\n", len(view.State.Projects), len(view.State.Runs))
	if len(view.Drifts) > 0 {
		fmt.Println()
		warnDrift(view)
	}
	return nil
}
