// Package handoff implements the task-plan contract between the harness and
// the agent.
//
// Two input forms are accepted: the modern form (object with meta and tasks)
// and the legacy form (bare task array). Output is always modern. The agent
// is only permitted to flip a task's passes flag; everything else is frozen
// at handoff creation.
package handoff

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zyahav/cloud-harness/internal/state"
)

// FileName is the handoff's name inside a run worktree.
const FileName = "handoff.json"

// Meta describes the plan's provenance.
type Meta struct {
	Project string `json:"project"`
	Phase   string `json:"phase"`
	Source  string `json:"source"`
	Lock    bool   `json:"lock"`
}

// Task is one unit of work in the plan.
type Task struct {
	ID                 string   `json:"id"`
	Category           string   `json:"category"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Passes             bool     `json:"passes"`
	FilesExpected      []string `json:"files_expected,omitempty"`
	Steps              []string `json:"steps,omitempty"`
}

// Handoff is the root plan document.
type Handoff struct {
	Meta  Meta   `json:"meta"`
	Tasks []Task `json:"tasks"`
}

// SchemaError names the field or task that failed validation.
type SchemaError struct {
	Field string
	Msg   string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "handoff: " + e.Msg
	}
	return fmt.Sprintf("handoff: %s: %s", e.Field, e.Msg)
}

func schemaErrf(field, format string, args ...any) *SchemaError {
	return &SchemaError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// categories is the closed set of valid task categories.
var categories = map[string]bool{
	"security":       true,
	"oidc":           true,
	"roles":          true,
	"infrastructure": true,
	"cli":            true,
	"testing":        true,
	"docs":           true,
	"functional":     true,
	"style":          true,
	"api":            true,
	"database":       true,
	"auth":           true,
	"ui":             true,
}

// ValidCategory reports whether c is in the closed category set.
func ValidCategory(c string) bool { return categories[c] }

// Parse validates and decodes a handoff document. Legacy bare-array input is
// upgraded to modern form with synthesized meta.
func Parse(data []byte) (*Handoff, error) {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, schemaErrf("", "not valid JSON: %v", err)
	}

	var (
		h        Handoff
		rawTasks []json.RawMessage
	)
	switch probe.(type) {
	case map[string]any:
		var root struct {
			Meta  *Meta             `json:"meta"`
			Tasks []json.RawMessage `json:"tasks"`
		}
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, schemaErrf("", "malformed document: %v", err)
		}
		if root.Meta == nil {
			return nil, schemaErrf("meta", "missing")
		}
		h.Meta = *root.Meta
		rawTasks = root.Tasks
	case []any:
		// Legacy form: a bare array of tasks.
		if err := json.Unmarshal(data, &rawTasks); err != nil {
			return nil, schemaErrf("", "malformed legacy array: %v", err)
		}
		h.Meta = Meta{Project: "Unknown", Phase: "", Source: "legacy", Lock: false}
	default:
		return nil, schemaErrf("", "root must be an object or an array")
	}

	if len(rawTasks) == 0 {
		return nil, schemaErrf("tasks", "must be a non-empty list")
	}

	for i, raw := range rawTasks {
		task, err := parseTask(raw, i)
		if err != nil {
			return nil, err
		}
		h.Tasks = append(h.Tasks, *task)
	}
	return &h, nil
}

// parseTask validates one task. idx is the 0-based position, used both for
// error messages and for TASK-<n> id synthesis (1-based).
func parseTask(raw json.RawMessage, idx int) (*Task, error) {
	label := fmt.Sprintf("tasks[%d]", idx)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, schemaErrf(label, "must be an object: %v", err)
	}

	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, schemaErrf(label, "invalid field types: %v", err)
	}

	if task.ID == "" {
		task.ID = fmt.Sprintf("TASK-%d", idx+1)
	}
	if !ValidCategory(task.Category) {
		return nil, schemaErrf(label+".category", "unknown category %q", task.Category)
	}
	if task.Title == "" {
		return nil, schemaErrf(label+".title", "missing")
	}
	if task.Description == "" {
		return nil, schemaErrf(label+".description", "missing")
	}
	if len(task.AcceptanceCriteria) == 0 {
		return nil, schemaErrf(label+".acceptance_criteria", "must be a non-empty list")
	}
	for j, c := range task.AcceptanceCriteria {
		if c == "" {
			return nil, schemaErrf(fmt.Sprintf("%s.acceptance_criteria[%d]", label, j), "empty string")
		}
	}

	// passes must be present and a literal JSON boolean.
	rawPasses, ok := fields["passes"]
	if !ok {
		return nil, schemaErrf(label+".passes", "missing")
	}
	var passes bool
	if err := json.Unmarshal(rawPasses, &passes); err != nil {
		return nil, schemaErrf(label+".passes", "must be a boolean")
	}

	return &task, nil
}

// CountPassing returns (passing, total) over the plan's tasks.
func CountPassing(h *Handoff) (passing, total int) {
	for _, t := range h.Tasks {
		if t.Passes {
			passing++
		}
	}
	return passing, len(h.Tasks)
}

// AllPassing reports whether every task passes.
func AllPassing(h *Handoff) bool {
	passing, total := CountPassing(h)
	return passing == total
}

// MarkPass flips a task's passes flag to true. The transition is monotonic:
// there is no way to un-pass a task through this package.
func MarkPass(h *Handoff, taskID string) error {
	for i := range h.Tasks {
		if h.Tasks[i].ID == taskID {
			h.Tasks[i].Passes = true
			return nil
		}
	}
	return schemaErrf("tasks", "no task with id %q", taskID)
}

// Marshal serializes the plan in modern form.
func Marshal(h *Handoff) ([]byte, error) {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write persists the plan to path. Even though handoffs live inside
// worktrees rather than the registry, writes go through the same atomic
// temp+rename protocol to avoid torn files.
func Write(h *Handoff, path string) error {
	data, err := Marshal(h)
	if err != nil {
		return err
	}
	return state.AtomicWrite(path, "", data)
}

// Read loads and parses the plan at path.
func Read(path string) (*Handoff, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
