package lease

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/zyahav/cloud-harness/internal/events"
	"github.com/zyahav/cloud-harness/internal/home"
	"github.com/zyahav/cloud-harness/internal/state"
)

func testLog(t *testing.T, root string) *events.Log {
	t.Helper()
	return events.NewLog(root)
}

func TestAcquireRelease(t *testing.T) {
	root := t.TempDir()
	log := testLog(t, root)

	l, err := Acquire(root, log, Options{})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if l.SessionID == "" {
		t.Error("expected session id")
	}

	lock, hb := ReadCurrent(root)
	if lock == nil || hb == nil {
		t.Fatal("expected lock and heartbeat files")
	}
	if lock.PID != os.Getpid() {
		t.Errorf("lock pid = %d, want %d", lock.PID, os.Getpid())
	}
	if lock.SessionID != hb.SessionID {
		t.Errorf("session mismatch: lock %s, heartbeat %s", lock.SessionID, hb.SessionID)
	}

	l.Release()
	if lock, _ := ReadCurrent(root); lock != nil {
		t.Error("lock file still present after Release")
	}
}

func TestSecondAcquireDenied(t *testing.T) {
	root := t.TempDir()
	log := testLog(t, root)

	l, err := Acquire(root, log, Options{})
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer l.Release()

	_, err = Acquire(root, log, Options{})
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("second Acquire = %v, want HeldError", err)
	}
	if held.Lock.PID != os.Getpid() {
		t.Errorf("holder pid = %d", held.Lock.PID)
	}
	if !errors.Is(err, ErrHeld) {
		t.Error("HeldError should wrap ErrHeld")
	}
}

func TestDeadPIDTakeover(t *testing.T) {
	root := t.TempDir()
	log := testLog(t, root)
	if err := home.EnsureDirs(root); err != nil {
		t.Fatal(err)
	}

	// Plant a lock held by a PID that cannot exist.
	dead := &LockInfo{PID: 4194305, SessionID: "dead-session"}
	if err := writeLock(home.LockPath(root), dead); err != nil {
		t.Fatal(err)
	}

	l, err := Acquire(root, log, Options{})
	if err != nil {
		t.Fatalf("Acquire over dead pid: %v", err)
	}
	defer l.Release()

	if l.SessionID == "dead-session" {
		t.Error("expected a fresh session id")
	}

	evts, err := events.Read(root)
	if err != nil {
		t.Fatal(err)
	}
	var sawTakeover bool
	for _, e := range evts {
		if e.Kind == events.LockStaleTakeover {
			sawTakeover = true
			if e.Fields["reason"] != ReasonPIDDead {
				t.Errorf("takeover reason = %v, want %s", e.Fields["reason"], ReasonPIDDead)
			}
		}
	}
	if !sawTakeover {
		t.Error("expected LOCK_STALE_TAKEOVER event")
	}
}

func TestInconsistentPairNeedsForce(t *testing.T) {
	root := t.TempDir()
	log := testLog(t, root)
	if err := home.EnsureDirs(root); err != nil {
		t.Fatal(err)
	}

	// Live PID, but heartbeat references a different session.
	start, _ := processStartTime(os.Getpid())
	live := &LockInfo{PID: os.Getpid(), StartTime: start, SessionID: "session-a"}
	if err := writeLock(home.LockPath(root), live); err != nil {
		t.Fatal(err)
	}
	if err := writeHeartbeat(home.HeartbeatPath(root), &Heartbeat{
		SessionID:  "session-b",
		LastBeatAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	_, err := Acquire(root, log, Options{})
	if !errors.Is(err, ErrInconsistent) {
		t.Fatalf("Acquire = %v, want ErrInconsistent", err)
	}

	l, err := Acquire(root, log, Options{Force: true})
	if err != nil {
		t.Fatalf("forced Acquire: %v", err)
	}
	l.Release()
}

func TestHeartbeatStalenessBoundary(t *testing.T) {
	root := t.TempDir()
	log := testLog(t, root)
	if err := home.EnsureDirs(root); err != nil {
		t.Fatal(err)
	}

	start, _ := processStartTime(os.Getpid())
	live := &LockInfo{PID: os.Getpid(), StartTime: start, SessionID: "session-a"}
	if err := writeLock(home.LockPath(root), live); err != nil {
		t.Fatal(err)
	}

	// Clearly stale heartbeat: takeover path consults the confirm callback.
	if err := writeHeartbeat(home.HeartbeatPath(root), &Heartbeat{
		SessionID:  "session-a",
		LastBeatAt: time.Now().Add(-StaleAfter - time.Second),
	}); err != nil {
		t.Fatal(err)
	}

	confirmed := false
	l, err := Acquire(root, log, Options{
		ConfirmTakeover: func(holder *LockInfo, lastBeat time.Time) bool {
			confirmed = true
			return true
		},
	})
	if err != nil {
		t.Fatalf("Acquire with confirm: %v", err)
	}
	if !confirmed {
		t.Error("confirm callback not consulted")
	}
	l.Release()

	// Fresh heartbeat (age < StaleAfter): denied, callback not consulted.
	if err := writeLock(home.LockPath(root), live); err != nil {
		t.Fatal(err)
	}
	if err := writeHeartbeat(home.HeartbeatPath(root), &Heartbeat{
		SessionID:  "session-a",
		LastBeatAt: time.Now().Add(-StaleAfter + time.Second),
	}); err != nil {
		t.Fatal(err)
	}

	_, err = Acquire(root, log, Options{
		ConfirmTakeover: func(holder *LockInfo, lastBeat time.Time) bool {
			t.Error("confirm consulted for fresh heartbeat")
			return true
		},
	})
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("Acquire = %v, want HeldError", err)
	}
}

func TestStaleHeartbeatWithoutConfirmIsDenied(t *testing.T) {
	root := t.TempDir()
	log := testLog(t, root)
	if err := home.EnsureDirs(root); err != nil {
		t.Fatal(err)
	}

	start, _ := processStartTime(os.Getpid())
	live := &LockInfo{PID: os.Getpid(), StartTime: start, SessionID: "session-a"}
	if err := writeLock(home.LockPath(root), live); err != nil {
		t.Fatal(err)
	}
	if err := writeHeartbeat(home.HeartbeatPath(root), &Heartbeat{
		SessionID:  "session-a",
		LastBeatAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	// Non-interactive: no confirm callback means no takeover.
	_, err := Acquire(root, log, Options{})
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("Acquire = %v, want HeldError", err)
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	root := t.TempDir()
	log := testLog(t, root)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*Lease
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := Acquire(root, log, Options{})
			if err == nil {
				mu.Lock()
				winners = append(winners, l)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("winners = %d, want exactly 1", len(winners))
	}
	winners[0].Release()
}

func TestBeatRefreshesHeartbeat(t *testing.T) {
	root := t.TempDir()
	log := testLog(t, root)

	l, err := Acquire(root, log, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	_, before := ReadCurrent(root)
	time.Sleep(10 * time.Millisecond)
	if err := l.Beat(); err != nil {
		t.Fatalf("Beat: %v", err)
	}
	_, after := ReadCurrent(root)
	if !after.LastBeatAt.After(before.LastBeatAt) {
		t.Errorf("heartbeat not advanced: %v -> %v", before.LastBeatAt, after.LastBeatAt)
	}
}

func TestHeartbeatLoop(t *testing.T) {
	root := t.TempDir()
	log := testLog(t, root)

	l, err := Acquire(root, log, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	_, before := ReadCurrent(root)
	loop := l.startHeartbeat(20 * time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	loop.Stop()

	_, after := ReadCurrent(root)
	if !after.LastBeatAt.After(before.LastBeatAt) {
		t.Error("loop never beat")
	}

	// Stop is idempotent and the loop stays stopped.
	loop.Stop()
	_, frozen := ReadCurrent(root)
	time.Sleep(60 * time.Millisecond)
	_, still := ReadCurrent(root)
	if !still.LastBeatAt.Equal(frozen.LastBeatAt) {
		t.Error("loop beat after Stop")
	}
}

func TestTakeoverOverwritesAtomically(t *testing.T) {
	root := t.TempDir()
	log := testLog(t, root)
	if err := home.EnsureDirs(root); err != nil {
		t.Fatal(err)
	}

	dead := &LockInfo{PID: 4194305, SessionID: "dead"}
	if err := writeLock(home.LockPath(root), dead); err != nil {
		t.Fatal(err)
	}

	l, err := Acquire(root, log, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	// The overwrite must not leave a temp file or a missing lock.
	if _, err := os.Stat(home.LockPath(root)); err != nil {
		t.Errorf("lock file missing after takeover: %v", err)
	}
	if _, err := os.Stat(home.LockPath(root) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind by takeover")
	}
}

func TestAtomicWritePrimitiveUsedForLock(t *testing.T) {
	// readLock must parse a lock file written through the shared atomic
	// primitive that writeLock uses.
	root := t.TempDir()
	if err := home.EnsureDirs(root); err != nil {
		t.Fatal(err)
	}
	path := home.LockPath(root)
	if err := state.AtomicWrite(path, "", []byte(`{"pid": 1, "session_id": "x"}`)); err != nil {
		t.Fatal(err)
	}
	lock, err := readLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if lock.PID != 1 || lock.SessionID != "x" {
		t.Errorf("lock = %+v", lock)
	}
}
