// Package style provides consistent terminal styling using Lipgloss.
package style

import "github.com/charmbracelet/lipgloss"

var (
	// Bold is for emphasis and headers.
	Bold = lipgloss.NewStyle().Bold(true)

	// Dim is for secondary information.
	Dim = lipgloss.NewStyle().Faint(true)

	// Success renders positive outcomes (green).
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	// Warning renders cautions (yellow).
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	// Error renders failures (red).
	Error = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

	// Header renders section titles in the cockpit and status output.
	Header = lipgloss.NewStyle().Bold(true).Underline(true)
)
