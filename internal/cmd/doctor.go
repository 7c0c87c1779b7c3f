package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/doctor"
	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/style"
)

var (
	doctorFix         bool
	doctorRepairState bool
	doctorVerbose     bool
	doctorForce       bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on the harness home",
	Long: `Run diagnostic checks on the harness home and registry.

Checks:
  home-layout       Home directory exists (fixable)
  state-valid       state.json loads and parses (fixable via --repair-state)
  stale-temp-file   Leftover state.json.tmp from a crashed write (fixable)
  lock-consistency  Controller lock and heartbeat agree
  run-worktrees     Registered runs still have marked worktrees
  events-log        Event log is appendable

Plain doctor is read-only. --fix attempts automatic repairs;
--repair-state backs up a corrupt registry and starts fresh. Both take
the controller lease.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "attempt automatic fixes")
	doctorCmd.Flags().BoolVar(&doctorRepairState, "repair-state", false, "back up a corrupt registry and start fresh")
	doctorCmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "show detailed output")
	doctorCmd.Flags().BoolVar(&doctorForce, "force", false, "take over an inconsistent controller lease")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	d := newDeps()
	ctx := &doctor.CheckContext{Root: d.root, Store: d.store, Verbose: doctorVerbose}

	doc := doctor.NewDoctor()
	doc.Register(doctor.NewHomeCheck())
	// The temp file check runs before state-valid, whose Load removes the
	// temp file.
	doc.Register(doctor.NewTempFileCheck())
	doc.Register(doctor.NewStateCheck())
	doc.Register(doctor.NewLockCheck())
	doc.Register(doctor.NewWorktreeCheck())
	doc.Register(doctor.NewEventsCheck())

	if doctorRepairState {
		return d.withLease(doctorForce, func(l *lease.Lease) error {
			_, backup, err := d.store.Repair()
			if err != nil {
				return err
			}
			if backup != "" {
				fmt.Printf("%s Corrupt registry backed up to %s\n", style.Success.Render("✓"), backup)
			} else {
				fmt.Println(style.Dim.Render("registry was already absent; starting fresh"))
			}
			report := doc.Run(ctx, os.Stdout)
			if report.HasErrors() {
				return fmt.Errorf("doctor found %d error(s)", report.Errors)
			}
			return nil
		})
	}

	if doctorFix {
		return d.withLease(doctorForce, func(l *lease.Lease) error {
			report := doc.Fix(ctx, os.Stdout)
			if report.HasErrors() {
				return fmt.Errorf("doctor found %d error(s)", report.Errors)
			}
			return nil
		})
	}

	report := doc.Run(ctx, os.Stdout)
	if report.HasErrors() {
		return fmt.Errorf("doctor found %d error(s)", report.Errors)
	}
	return nil
}
