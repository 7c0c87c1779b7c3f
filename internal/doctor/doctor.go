// Package doctor runs health checks on the harness home and registry.
package doctor

import (
	"fmt"
	"io"

	"github.com/zyahav/cloud-harness/internal/state"
	"github.com/zyahav/cloud-harness/internal/style"
)

// Status is a check outcome.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
)

// CheckContext carries the environment checks run against.
type CheckContext struct {
	Root    string
	Store   *state.Store
	Verbose bool
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name    string
	Status  Status
	Message string
	Details []string
	FixHint string
}

// Check is a single diagnostic.
type Check interface {
	Name() string
	Description() string
	Run(ctx *CheckContext) *CheckResult
}

// Fixable is a check that can repair what it finds.
type Fixable interface {
	Check
	Fix(ctx *CheckContext) error
}

// BaseCheck supplies Name/Description for embedders.
type BaseCheck struct {
	CheckName        string
	CheckDescription string
}

func (c *BaseCheck) Name() string        { return c.CheckName }
func (c *BaseCheck) Description() string { return c.CheckDescription }

// Doctor runs registered checks in order.
type Doctor struct {
	checks []Check
}

// NewDoctor creates an empty Doctor.
func NewDoctor() *Doctor {
	return &Doctor{}
}

// Register adds a check.
func (d *Doctor) Register(c Check) {
	d.checks = append(d.checks, c)
}

// Report summarizes a doctor pass.
type Report struct {
	Results  []*CheckResult
	Errors   int
	Warnings int
}

// HasErrors reports whether any check errored.
func (r *Report) HasErrors() bool { return r.Errors > 0 }

// Run executes all checks, streaming results to w.
func (d *Doctor) Run(ctx *CheckContext, w io.Writer) *Report {
	return d.run(ctx, w, false)
}

// Fix executes all checks and attempts repairs on fixable failures.
func (d *Doctor) Fix(ctx *CheckContext, w io.Writer) *Report {
	return d.run(ctx, w, true)
}

func (d *Doctor) run(ctx *CheckContext, w io.Writer, fix bool) *Report {
	report := &Report{}
	for _, check := range d.checks {
		result := check.Run(ctx)

		if result.Status != StatusOK && fix {
			if fixable, ok := check.(Fixable); ok {
				if err := fixable.Fix(ctx); err != nil {
					result.Details = append(result.Details, fmt.Sprintf("fix failed: %v", err))
				} else {
					// Re-run to report the post-fix truth.
					result = check.Run(ctx)
					result.Message += " (fixed)"
				}
			}
		}

		report.Results = append(report.Results, result)
		switch result.Status {
		case StatusWarning:
			report.Warnings++
		case StatusError:
			report.Errors++
		}
		printResult(w, result, ctx.Verbose)
	}

	fmt.Fprintf(w, "\n%d check(s), %d warning(s), %d error(s)\n",
		len(report.Results), report.Warnings, report.Errors)
	return report
}

func printResult(w io.Writer, r *CheckResult, verbose bool) {
	var mark string
	switch r.Status {
	case StatusOK:
		mark = style.Success.Render("✓")
	case StatusWarning:
		mark = style.Warning.Render("⚠")
	default:
		mark = style.Error.Render("✗")
	}
	fmt.Fprintf(w, "  %s %-28s %s\n", mark, r.Name, r.Message)
	if verbose || r.Status != StatusOK {
		for _, d := range r.Details {
			fmt.Fprintf(w, "      %s\n", style.Dim.Render(d))
		}
		if r.FixHint != "" && r.Status != StatusOK {
			fmt.Fprintf(w, "      %s\n", style.Dim.Render(r.FixHint))
		}
	}
}
