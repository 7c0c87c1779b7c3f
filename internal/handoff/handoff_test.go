package handoff

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const modernDoc = `{
  "meta": {"project": "hub", "phase": "2", "source": "planner", "lock": true},
  "tasks": [
    {
      "id": "HUB-001",
      "category": "auth",
      "title": "Wire OIDC callback",
      "description": "Handle the provider redirect.",
      "acceptance_criteria": ["callback exchanges code", "session cookie set"],
      "passes": false
    },
    {
      "category": "testing",
      "title": "Cover token refresh",
      "description": "Add refresh-path tests.",
      "acceptance_criteria": ["expiry triggers refresh"],
      "passes": true,
      "files_expected": ["auth/refresh_test.go"]
    }
  ]
}`

const legacyDoc = `[
  {
    "id": "HUB-001",
    "category": "cli",
    "title": "Add list flag",
    "description": "Support --json on list.",
    "acceptance_criteria": ["list --json emits valid JSON"],
    "passes": false
  }
]`

func TestParseModern(t *testing.T) {
	h, err := Parse([]byte(modernDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if h.Meta.Project != "hub" || !h.Meta.Lock {
		t.Errorf("meta = %+v", h.Meta)
	}
	if len(h.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(h.Tasks))
	}
	if h.Tasks[0].ID != "HUB-001" {
		t.Errorf("task 0 id = %q", h.Tasks[0].ID)
	}
	// Missing id is synthesized from the 1-based position.
	if h.Tasks[1].ID != "TASK-2" {
		t.Errorf("task 1 id = %q, want TASK-2", h.Tasks[1].ID)
	}
}

func TestParseLegacyArray(t *testing.T) {
	h, err := Parse([]byte(legacyDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if h.Meta.Project != "Unknown" || h.Meta.Source != "legacy" || h.Meta.Lock {
		t.Errorf("synthesized meta = %+v", h.Meta)
	}
	if len(h.Tasks) != 1 || h.Tasks[0].Category != "cli" {
		t.Errorf("tasks = %+v", h.Tasks)
	}
}

func TestLegacyRoundTripsToModern(t *testing.T) {
	h, err := Parse([]byte(legacyDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := Marshal(h)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), `"meta"`) {
		t.Error("marshaled legacy doc should carry modern meta")
	}
	again, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if again.Meta.Source != "legacy" || len(again.Tasks) != 1 {
		t.Errorf("round-trip = %+v", again)
	}
}

func TestParseIdempotent(t *testing.T) {
	h1, err := Parse([]byte(modernDoc))
	if err != nil {
		t.Fatal(err)
	}
	out1, err := Marshal(h1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Parse(out1)
	if err != nil {
		t.Fatal(err)
	}
	out2, err := Marshal(h2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out1, out2) {
		t.Errorf("write(parse(x)) not stable:\n%s\nvs\n%s", out1, out2)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name  string
		doc   string
		field string
	}{
		{"not json", `{`, ""},
		{"scalar root", `42`, ""},
		{"missing meta", `{"tasks": []}`, "meta"},
		{"empty tasks", `{"meta": {"project": "p", "phase": "", "source": "s", "lock": false}, "tasks": []}`, "tasks"},
		{"bad category", `[{"category": "nonsense", "title": "t", "description": "d", "acceptance_criteria": ["a"], "passes": false}]`, "tasks[0].category"},
		{"missing title", `[{"category": "cli", "description": "d", "acceptance_criteria": ["a"], "passes": false}]`, "tasks[0].title"},
		{"empty criteria", `[{"category": "cli", "title": "t", "description": "d", "acceptance_criteria": [], "passes": false}]`, "tasks[0].acceptance_criteria"},
		{"missing passes", `[{"category": "cli", "title": "t", "description": "d", "acceptance_criteria": ["a"]}]`, "tasks[0].passes"},
		{"string passes", `[{"category": "cli", "title": "t", "description": "d", "acceptance_criteria": ["a"], "passes": "true"}]`, "tasks[0]"},
		{"numeric steps", `[{"category": "cli", "title": "t", "description": "d", "acceptance_criteria": ["a"], "passes": false, "steps": [1, 2]}]`, "tasks[0]"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.doc))
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if c.field != "" && !strings.HasPrefix(schemaErr.Field, c.field) {
				t.Errorf("field = %q, want prefix %q", schemaErr.Field, c.field)
			}
		})
	}
}

func TestCountPassing(t *testing.T) {
	h, err := Parse([]byte(modernDoc))
	if err != nil {
		t.Fatal(err)
	}
	passing, total := CountPassing(h)
	if passing != 1 || total != 2 {
		t.Errorf("CountPassing = (%d, %d), want (1, 2)", passing, total)
	}
	if AllPassing(h) {
		t.Error("AllPassing should be false")
	}
}

func TestMarkPassMonotonic(t *testing.T) {
	h, err := Parse([]byte(modernDoc))
	if err != nil {
		t.Fatal(err)
	}

	if err := MarkPass(h, "HUB-001"); err != nil {
		t.Fatalf("MarkPass: %v", err)
	}
	if !h.Tasks[0].Passes {
		t.Error("task not marked passing")
	}

	// Marking again is a no-op, never a reversal.
	if err := MarkPass(h, "HUB-001"); err != nil {
		t.Fatalf("second MarkPass: %v", err)
	}
	if !h.Tasks[0].Passes {
		t.Error("passes flipped backwards")
	}
	if !AllPassing(h) {
		t.Error("expected all passing")
	}

	if err := MarkPass(h, "HUB-999"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestWriteAndRead(t *testing.T) {
	h, err := Parse([]byte(modernDoc))
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "handoff.json")
	if err := Write(h, path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Tasks) != 2 || got.Meta.Project != "hub" {
		t.Errorf("read back = %+v", got)
	}
}
