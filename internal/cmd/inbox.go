package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/state"
	"github.com/zyahav/cloud-harness/internal/style"
)

var (
	inboxList    bool
	inboxPromote string
	inboxDismiss string
	inboxForce   bool
)

var inboxCmd = &cobra.Command{
	Use:   "inbox [\"<text>\"]",
	Short: "Capture, list, and triage inbox items",
	Long: `Capture a thought without breaking flow, or triage what's there.

Capture is lease-free and safe from observer mode: items go to an
append-only pending log next to the registry, and the controller folds
them in on its next write. Promotion (to a task on the focus project) and
dismissal are mutations and take the lease.

Examples:
  ch inbox "investigate flaky auth test"
  ch inbox --list
  ch inbox --promote 4f8a...
  ch inbox --dismiss 4f8a...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInbox,
}

func init() {
	inboxCmd.Flags().BoolVar(&inboxList, "list", false, "list inbox items")
	inboxCmd.Flags().StringVar(&inboxPromote, "promote", "", "promote an item to a task")
	inboxCmd.Flags().StringVar(&inboxDismiss, "dismiss", "", "dismiss an item")
	inboxCmd.Flags().BoolVar(&inboxForce, "force", false, "take over an inconsistent controller lease")
	rootCmd.AddCommand(inboxCmd)
}

func runInbox(cmd *cobra.Command, args []string) error {
	d := newDeps()

	switch {
	case inboxPromote != "":
		return promoteItem(d, inboxPromote)
	case inboxDismiss != "":
		return dismissItem(d, inboxDismiss)
	case inboxList:
		return listInbox(d)
	case len(args) == 1:
		return captureItem(d, args[0])
	}
	return fmt.Errorf("nothing to do: pass text to capture, or --list/--promote/--dismiss")
}

// captureItem appends to the pending log. No lease: this is the one write
// an observer may perform.
func captureItem(d *deps, text string) error {
	item := state.InboxItem{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := state.AppendPending(d.root, item); err != nil {
		return err
	}
	fmt.Printf("%s Captured %s\n", style.Success.Render("✓"), style.Dim.Render(item.ID))
	return nil
}

func listInbox(d *deps) error {
	st, err := d.store.Load()
	if err != nil {
		return err
	}
	pending, err := d.store.LoadPending()
	if err != nil {
		return err
	}

	if len(st.Inbox) == 0 && len(pending) == 0 {
		fmt.Println(style.Dim.Render("inbox is empty"))
		return nil
	}
	table := style.NewTable(
		style.Column{Name: "ID", Width: 36, Style: style.Dim},
		style.Column{Name: "AGE", Width: 5},
		style.Column{Name: "STATUS", Width: 10},
		style.Column{Name: "TEXT", Width: 48},
	)
	for _, item := range st.Inbox {
		status := string(item.TriageStatus)
		if status == "" {
			status = "open"
		}
		table.AddRow(item.ID, formatAge(item.CreatedAt), status, item.Text)
	}
	for _, item := range pending {
		table.AddRow(item.ID, formatAge(item.CreatedAt), "pending", item.Text)
	}
	fmt.Print(table.Render())
	return nil
}

// taskFromInbox builds a full Task from a captured thought. The captured
// text is all we have, so it seeds title, description, and a single
// acceptance criterion; only Passes may change afterwards.
func taskFromInbox(item *state.InboxItem, projectID string) state.Task {
	return state.Task{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Title:       item.Text,
		Category:    "functional",
		Description: "Captured from the inbox: " + item.Text,
		AcceptanceCriteria: []string{
			"the captured concern is addressed or explicitly dismissed",
		},
		CreatedAt: time.Now().UTC(),
	}
}

func promoteItem(d *deps, id string) error {
	return d.withLease(inboxForce, func(l *lease.Lease) error {
		st, err := d.store.Load()
		if err != nil {
			return err
		}
		if _, err := d.store.Drain(st); err != nil {
			return err
		}
		item := st.InboxItemByID(id)
		if item == nil {
			return fmt.Errorf("no inbox item %q", id)
		}
		if item.TriageStatus != state.TriageNone {
			return fmt.Errorf("item %s is already %s", id, item.TriageStatus)
		}
		focus := st.FocusProject()
		if focus == nil {
			return fmt.Errorf("no focus project; run 'ch focus set' first")
		}

		item.TriageStatus = state.TriagePromoted
		st.Tasks = append(st.Tasks, taskFromInbox(item, focus.ID))
		if err := d.store.Save(st); err != nil {
			return err
		}
		_ = d.store.ClearPending()
		fmt.Printf("%s Promoted to a task on %s\n", style.Success.Render("✓"), style.Bold.Render(focus.Name))
		return nil
	})
}

func dismissItem(d *deps, id string) error {
	return d.withLease(inboxForce, func(l *lease.Lease) error {
		st, err := d.store.Load()
		if err != nil {
			return err
		}
		if _, err := d.store.Drain(st); err != nil {
			return err
		}
		item := st.InboxItemByID(id)
		if item == nil {
			return fmt.Errorf("no inbox item %q", id)
		}

		// Dismissed items stay in the registry for log visibility.
		item.TriageStatus = state.TriageDismissed
		if err := d.store.Save(st); err != nil {
			return err
		}
		_ = d.store.ClearPending()
		fmt.Printf("%s Dismissed %s\n", style.Success.Render("✓"), style.Dim.Render(id))
		return nil
	})
}
