package cmd

import (
	"testing"
	"time"

	"github.com/zyahav/cloud-harness/internal/handoff"
	"github.com/zyahav/cloud-harness/internal/state"
)

func resetInboxFlags(t *testing.T) {
	t.Cleanup(func() {
		inboxList = false
		inboxPromote = ""
		inboxDismiss = ""
		inboxForce = false
	})
}

// seedFocusedProject writes a registry with a focus project and one open
// inbox item, returning the store and the item id.
func seedFocusedProject(t *testing.T, root string) (*state.Store, string) {
	t.Helper()
	store := state.NewStore(root)
	st := &state.State{
		Projects: []state.Project{
			{ID: "p1", Name: "hub", RepoPath: "/r/hub", Status: state.ProjectActive, LastTouchedAt: time.Now()},
		},
		Inbox: []state.InboxItem{
			{ID: "item-1", Text: "investigate flaky auth test", CreatedAt: time.Now().UTC()},
		},
		FocusProjectID: "p1",
	}
	if err := store.Save(st); err != nil {
		t.Fatal(err)
	}
	return store, "item-1"
}

func TestPromoteCreatesConformantTask(t *testing.T) {
	resetInboxFlags(t)
	root := t.TempDir()
	store, itemID := seedFocusedProject(t, root)

	if err := execCLI(t, root, "inbox", "--promote", itemID); err != nil {
		t.Fatalf("inbox --promote: %v", err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := st.InboxItemByID(itemID); got == nil || got.TriageStatus != state.TriagePromoted {
		t.Errorf("inbox item = %+v, want promoted", got)
	}
	if len(st.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(st.Tasks))
	}

	// The promoted task must satisfy the same shape a handoff task does:
	// everything but passes is frozen at creation, so it all has to be there.
	task := st.Tasks[0]
	if task.ID == "" || task.ProjectID != "p1" {
		t.Errorf("task identity = %+v", task)
	}
	if !handoff.ValidCategory(task.Category) {
		t.Errorf("category %q not in the closed set", task.Category)
	}
	if task.Title == "" || task.Description == "" {
		t.Errorf("title/description missing: %+v", task)
	}
	if len(task.AcceptanceCriteria) == 0 {
		t.Error("acceptance_criteria must be non-empty")
	}
	for i, c := range task.AcceptanceCriteria {
		if c == "" {
			t.Errorf("acceptance_criteria[%d] is empty", i)
		}
	}
	if task.Passes {
		t.Error("promoted task must start with passes=false")
	}
}

func TestPromoteTwiceRefused(t *testing.T) {
	resetInboxFlags(t)
	root := t.TempDir()
	store, itemID := seedFocusedProject(t, root)

	if err := execCLI(t, root, "inbox", "--promote", itemID); err != nil {
		t.Fatalf("first promote: %v", err)
	}
	if err := execCLI(t, root, "inbox", "--promote", itemID); err == nil {
		t.Fatal("expected refusal for already-promoted item")
	}

	st, _ := store.Load()
	if len(st.Tasks) != 1 {
		t.Errorf("tasks = %d, second promote must not add another", len(st.Tasks))
	}
}

func TestPromoteWithoutFocusRefused(t *testing.T) {
	resetInboxFlags(t)
	root := t.TempDir()
	store := state.NewStore(root)
	st := state.Empty()
	st.Inbox = append(st.Inbox, state.InboxItem{ID: "item-1", Text: "orphan thought", CreatedAt: time.Now()})
	if err := store.Save(st); err != nil {
		t.Fatal(err)
	}

	if err := execCLI(t, root, "inbox", "--promote", "item-1"); err == nil {
		t.Fatal("expected refusal without a focus project")
	}
	after, _ := store.Load()
	if len(after.Tasks) != 0 {
		t.Error("task created despite missing focus project")
	}
}

func TestDismissKeepsItemVisible(t *testing.T) {
	resetInboxFlags(t)
	root := t.TempDir()
	store, itemID := seedFocusedProject(t, root)

	if err := execCLI(t, root, "inbox", "--dismiss", itemID); err != nil {
		t.Fatalf("inbox --dismiss: %v", err)
	}

	st, _ := store.Load()
	got := st.InboxItemByID(itemID)
	if got == nil {
		t.Fatal("dismissed item removed from the registry")
	}
	if got.TriageStatus != state.TriageDismissed {
		t.Errorf("triage = %q, want dismissed", got.TriageStatus)
	}
	if len(st.Tasks) != 0 {
		t.Error("dismiss must not create a task")
	}
}
