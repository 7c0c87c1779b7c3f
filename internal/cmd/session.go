package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/events"
	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/reconcile"
	"github.com/zyahav/cloud-harness/internal/style"
)

var sessionForce bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run the interactive cockpit",
	Long: `Hold the controller lease in a long-lived interactive session.

The cockpit shows the reconciled view of every project and run,
refreshing on the reconcile cadence. While the session is open a
background task heartbeats every 60 seconds so other processes can tell
the controller is alive. Quitting stops the heartbeat, releases the
lease, and records SESSION_ENDED.

Keys: r refresh now, q quit.`,
	RunE: runSession,
}

func init() {
	sessionCmd.Flags().BoolVar(&sessionForce, "force", false, "take over an inconsistent controller lease")
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	d := newDeps()
	return d.withLease(sessionForce, func(l *lease.Lease) error {
		log := l.Log()
		log.Emit(events.SessionStarted, nil)
		heartbeat := l.StartHeartbeat()
		defer func() {
			// Cancel order matters: stop the beat before the lease goes.
			heartbeat.Stop()
			log.Emit(events.SessionEnded, nil)
		}()

		model := newCockpit(d)
		_, err := tea.NewProgram(model).Run()
		return err
	})
}

type viewMsg struct {
	view *reconcile.View
	err  error
}

type refreshTickMsg struct{}

type cockpit struct {
	d       *deps
	spin    spinner.Model
	view    *reconcile.View
	err     error
	loading bool
}

func newCockpit(d *deps) *cockpit {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = style.Dim
	return &cockpit{d: d, spin: s, loading: true}
}

func (c *cockpit) Init() tea.Cmd {
	return tea.Batch(c.spin.Tick, c.refresh())
}

func (c *cockpit) refresh() tea.Cmd {
	return func() tea.Msg {
		view, err := c.d.rec.Refresh()
		return viewMsg{view: view, err: err}
	}
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(reconcile.CacheTTL, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

func (c *cockpit) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return c, tea.Quit
		case "r":
			c.loading = true
			return c, c.refresh()
		}
	case viewMsg:
		c.loading = false
		c.view = msg.view
		c.err = msg.err
		return c, scheduleRefresh()
	case refreshTickMsg:
		c.loading = true
		return c, c.refresh()
	case spinner.TickMsg:
		var cmd tea.Cmd
		c.spin, cmd = c.spin.Update(msg)
		return c, cmd
	}
	return c, nil
}

func (c *cockpit) View() string {
	out := style.Header.Render("cloud-harness session") + "\n\n"

	if c.loading {
		out += c.spin.View() + " reconciling...\n\n"
	}
	if c.err != nil {
		out += style.Error.Render("reconcile failed: "+c.err.Error()) + "\n\n"
	}
	if c.view == nil {
		return out + style.Dim.Render("q to quit")
	}

	st := c.view.State
	if focus := st.FocusProject(); focus != nil {
		out += fmt.Sprintf("focus: %s\n\n", style.Bold.Render(focus.Name))
	} else {
		out += style.Dim.Render("focus: none") + "\n\n"
	}

	if len(st.Runs) == 0 {
		out += style.Dim.Render("no runs") + "\n"
	} else {
		table := style.NewTable(
			style.Column{Name: "RUN", Width: 20},
			style.Column{Name: "STATE", Width: 10},
			style.Column{Name: "BRANCH", Width: 24},
			style.Column{Name: "AGE", Width: 5},
		)
		for _, run := range st.Runs {
			table.AddRow(run.RunName, renderState(run.State), run.BranchName, formatAge(run.CreatedAt))
		}
		out += table.Render()
	}

	if len(c.view.Drifts) > 0 {
		out += "\n"
		for _, drift := range c.view.Drifts {
			out += style.Warning.Render("⚠ ") + drift.String() + "\n"
		}
	}

	out += "\n" + style.Dim.Render("r refresh · q quit")
	return out
}
