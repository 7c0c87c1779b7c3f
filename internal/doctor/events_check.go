package doctor

import (
	"fmt"
	"os"

	"github.com/zyahav/cloud-harness/internal/events"
	"github.com/zyahav/cloud-harness/internal/home"
)

// EventsCheck verifies the event log is writable where it exists.
type EventsCheck struct {
	BaseCheck
}

// NewEventsCheck creates the event log check.
func NewEventsCheck() *EventsCheck {
	return &EventsCheck{BaseCheck{
		CheckName:        "events-log",
		CheckDescription: "Check the event log is appendable",
	}}
}

func (c *EventsCheck) Run(ctx *CheckContext) *CheckResult {
	path := home.EventsPath(ctx.Root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "no event log yet"}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: "event log is not appendable",
			Details: []string{err.Error()},
		}
	}
	f.Close()

	evts, err := events.Read(ctx.Root)
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: "event log unreadable",
			Details: []string{err.Error()},
		}
	}
	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: fmt.Sprintf("%d event(s) recorded", len(evts)),
	}
}

// HomeCheck verifies the home directory layout exists and is writable.
type HomeCheck struct {
	BaseCheck
}

// NewHomeCheck creates the home layout check.
func NewHomeCheck() *HomeCheck {
	return &HomeCheck{BaseCheck{
		CheckName:        "home-layout",
		CheckDescription: "Check the harness home directories exist",
	}}
}

func (c *HomeCheck) Run(ctx *CheckContext) *CheckResult {
	if _, err := os.Stat(ctx.Root); os.IsNotExist(err) {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: "home directory does not exist yet",
			Details: []string{ctx.Root},
			FixHint: "run 'ch bootstrap --apply' or any mutating command",
		}
	}
	return &CheckResult{Name: c.Name(), Status: StatusOK, Message: ctx.Root}
}

// Fix creates the home layout.
func (c *HomeCheck) Fix(ctx *CheckContext) error {
	return home.EnsureDirs(ctx.Root)
}
