package style

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines a table column with a header and fixed width.
type Column struct {
	Name  string
	Width int
	Style lipgloss.Style
}

// Table renders fixed-width columnar output for list-style commands.
type Table struct {
	columns []Column
	rows    [][]string
	indent  string
}

// NewTable creates a table with the given columns.
func NewTable(columns ...Column) *Table {
	return &Table{columns: columns, indent: "  "}
}

// AddRow appends a row. Short rows are padded with empty cells.
func (t *Table) AddRow(values ...string) *Table {
	for len(values) < len(t.columns) {
		values = append(values, "")
	}
	t.rows = append(t.rows, values)
	return t
}

// Render returns the formatted table.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(t.indent)
	total := -1
	for i, col := range t.columns {
		sb.WriteString(pad(Bold.Render(col.Name), col.Name, col.Width))
		if i < len(t.columns)-1 {
			sb.WriteString(" ")
		}
		total += col.Width + 1
	}
	sb.WriteString("\n")
	sb.WriteString(t.indent)
	sb.WriteString(Dim.Render(strings.Repeat("─", total)))
	sb.WriteString("\n")

	for _, row := range t.rows {
		sb.WriteString(t.indent)
		for i, col := range t.columns {
			val := row[i]
			plain := stripAnsi(val)
			if len(plain) > col.Width && col.Width > 3 {
				val = plain[:col.Width-3] + "..."
				plain = val
			}
			if col.Style.Value() != "" {
				val = col.Style.Render(val)
			}
			sb.WriteString(pad(val, plain, col.Width))
			if i < len(t.columns)-1 {
				sb.WriteString(" ")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// pad left-aligns styled text to width using the plain text for measurement.
func pad(styled, plain string, width int) string {
	if len(plain) >= width {
		return styled
	}
	return styled + strings.Repeat(" ", width-len(plain))
}

// ansiRegex matches CSI escape sequences: ESC [ <params> <final byte>
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func stripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
