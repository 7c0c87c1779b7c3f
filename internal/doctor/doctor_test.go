package doctor

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/zyahav/cloud-harness/internal/home"
	"github.com/zyahav/cloud-harness/internal/state"
)

func newCtx(t *testing.T) *CheckContext {
	t.Helper()
	root := t.TempDir()
	return &CheckContext{Root: root, Store: state.NewStore(root)}
}

func standardDoctor() *Doctor {
	d := NewDoctor()
	d.Register(NewHomeCheck())
	d.Register(NewStateCheck())
	d.Register(NewTempFileCheck())
	d.Register(NewLockCheck())
	d.Register(NewWorktreeCheck())
	d.Register(NewEventsCheck())
	return d
}

func TestHealthyHome(t *testing.T) {
	ctx := newCtx(t)
	if err := ctx.Store.Save(state.Empty()); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	report := standardDoctor().Run(ctx, &out)
	if report.HasErrors() {
		t.Errorf("errors on healthy home:\n%s", out.String())
	}
}

func TestCorruptStateDetectedAndFixed(t *testing.T) {
	ctx := newCtx(t)
	if err := os.WriteFile(home.StatePath(ctx.Root), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	report := standardDoctor().Run(ctx, &out)
	if !report.HasErrors() {
		t.Fatal("corrupt registry not reported")
	}

	out.Reset()
	report = standardDoctor().Fix(ctx, &out)
	if report.HasErrors() {
		t.Errorf("errors after fix:\n%s", out.String())
	}
	if _, err := ctx.Store.Load(); err != nil {
		t.Errorf("registry still broken after fix: %v", err)
	}
}

func TestStaleTempFileWarning(t *testing.T) {
	ctx := newCtx(t)
	if err := ctx.Store.Save(state.Empty()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(home.StateTempPath(ctx.Root), []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}

	result := NewTempFileCheck().Run(ctx)
	if result.Status != StatusWarning {
		t.Errorf("status = %v, want warning", result.Status)
	}

	if err := NewTempFileCheck().Fix(ctx); err != nil {
		t.Fatal(err)
	}
	if result := NewTempFileCheck().Run(ctx); result.Status != StatusOK {
		t.Errorf("status after fix = %v", result.Status)
	}
}

func TestLockCheckMismatch(t *testing.T) {
	ctx := newCtx(t)
	if err := home.EnsureDirs(ctx.Root); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(home.LockPath(ctx.Root),
		[]byte(`{"pid": 1, "session_id": "a"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(home.HeartbeatPath(ctx.Root),
		[]byte(`{"session_id": "b", "last_beat_at": "2026-01-01T00:00:00Z"}`), 0644); err != nil {
		t.Fatal(err)
	}

	result := NewLockCheck().Run(ctx)
	if result.Status != StatusError {
		t.Errorf("status = %v, want error for session mismatch", result.Status)
	}
	if !strings.Contains(result.Message, "different sessions") {
		t.Errorf("message = %q", result.Message)
	}
}

func TestWorktreeCheckMissingWorktree(t *testing.T) {
	ctx := newCtx(t)
	st := state.Empty()
	st.Runs = append(st.Runs, state.Run{
		ID: "r1", RunName: "ghost", State: state.RunCreated,
		WorktreePath: "/nonexistent/runs/ghost",
	})
	if err := ctx.Store.Save(st); err != nil {
		t.Fatal(err)
	}

	result := NewWorktreeCheck().Run(ctx)
	if result.Status != StatusWarning {
		t.Errorf("status = %v, want warning", result.Status)
	}
	if len(result.Details) != 1 || !strings.Contains(result.Details[0], "ghost") {
		t.Errorf("details = %v", result.Details)
	}
}

func TestParkedRunsSkippedByWorktreeCheck(t *testing.T) {
	ctx := newCtx(t)
	st := state.Empty()
	st.Runs = append(st.Runs, state.Run{
		ID: "r1", RunName: "parked", State: state.RunParked,
		WorktreePath: "/nonexistent",
	})
	if err := ctx.Store.Save(st); err != nil {
		t.Fatal(err)
	}

	if result := NewWorktreeCheck().Run(ctx); result.Status != StatusOK {
		t.Errorf("parked run should not warn, got %v: %v", result.Status, result.Details)
	}
}
