// Package lease implements the controller lease: the process-wide
// single-writer lock with PID liveness and heartbeat freshness.
//
// The lock file records who the controller is; the heartbeat file proves the
// long-lived session is still breathing. The two are paired by session id,
// and an inconsistent pair is never taken over without an explicit force.
package lease

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/zyahav/cloud-harness/internal/events"
	"github.com/zyahav/cloud-harness/internal/home"
	"github.com/zyahav/cloud-harness/internal/state"
)

const (
	// HeartbeatInterval is how often the interactive session beats.
	HeartbeatInterval = 60 * time.Second
	// StaleAfter is the heartbeat age beyond which the holder is presumed
	// wedged. Exactly StaleAfter is still fresh; staleness is strict.
	StaleAfter = 5 * time.Minute
)

// LockInfo is the contents of the controller lock file.
type LockInfo struct {
	PID       int    `json:"pid"`
	StartTime string `json:"start_time"`
	SessionID string `json:"session_id"`
}

// Heartbeat is the contents of the heartbeat file.
type Heartbeat struct {
	SessionID  string    `json:"session_id"`
	LastBeatAt time.Time `json:"last_beat_at"`
}

// ErrHeld is the sentinel wrapped by HeldError.
var ErrHeld = errors.New("lease held")

// HeldError reports who currently holds the lease.
type HeldError struct {
	Lock *LockInfo
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("controller lease held by pid %d (session %s)", e.Lock.PID, e.Lock.SessionID)
}

func (e *HeldError) Unwrap() error { return ErrHeld }

// ErrInconsistent means the lock and heartbeat files disagree on session id.
// Taking over requires an explicit force.
var ErrInconsistent = errors.New("lock and heartbeat are inconsistent; use --force to take over")

// Takeover reasons recorded in LOCK_STALE_TAKEOVER events.
const (
	ReasonPIDDead          = "PID_DEAD"
	ReasonHeartbeatTimeout = "HEARTBEAT_TIMEOUT"
	ReasonForced           = "FORCED"
)

// Options configures acquisition.
type Options struct {
	// Force takes over an inconsistent lock/heartbeat pair.
	Force bool
	// ConfirmTakeover is consulted before taking over a live holder whose
	// heartbeat has gone stale. Nil means never confirm (scripts refuse).
	ConfirmTakeover func(holder *LockInfo, lastBeat time.Time) bool
}

// Lease is a held controller lease. Release it on exit.
type Lease struct {
	SessionID string
	root      string
	log       *events.Log
}

// Acquire attempts to become the controller for the given home root.
// Returns *HeldError when another live controller exists (observer mode).
func Acquire(root string, log *events.Log, opts Options) (*Lease, error) {
	if err := home.EnsureDirs(root); err != nil {
		return nil, err
	}

	// Serialize the read-judge-overwrite window against concurrent
	// acquirers on this host. The flock guards acquisition only; the lock
	// file itself is what makes a controller.
	guard := flock.New(home.LockPath(root) + ".flock")
	if err := guard.Lock(); err != nil {
		return nil, fmt.Errorf("locking acquisition guard: %w", err)
	}
	defer guard.Unlock()

	info := LockInfo{
		PID:       os.Getpid(),
		SessionID: uuid.NewString(),
	}
	if start, err := processStartTime(info.PID); err == nil {
		info.StartTime = start
	}

	lockPath := home.LockPath(root)
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err == nil {
		f.Close()
		return finishAcquire(root, log, info, "", nil)
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("creating lock file: %w", err)
	}

	existing, readErr := readLock(lockPath)
	if readErr != nil {
		// Unreadable lock file has no provable holder. Overwrite in place;
		// delete-then-create would open a race window.
		return finishAcquire(root, log, info, ReasonForced, nil)
	}

	// Liveness: a dead PID (or a recycled one with a different start time)
	// cannot be holding anything.
	if !isProcessAlive(existing.PID) {
		return finishAcquire(root, log, info, ReasonPIDDead, existing)
	}
	if existing.StartTime != "" {
		if current, err := processStartTime(existing.PID); err == nil && current != existing.StartTime {
			return finishAcquire(root, log, info, ReasonPIDDead, existing)
		}
	}

	hb, hbErr := readHeartbeat(home.HeartbeatPath(root))
	if hbErr != nil || hb.SessionID != existing.SessionID {
		if opts.Force {
			return finishAcquire(root, log, info, ReasonForced, existing)
		}
		log.Emit(events.LockDenied, map[string]any{"holder_pid": existing.PID, "inconsistent": true})
		return nil, ErrInconsistent
	}

	if age := time.Since(hb.LastBeatAt); age > StaleAfter {
		if opts.ConfirmTakeover != nil && opts.ConfirmTakeover(existing, hb.LastBeatAt) {
			return finishAcquire(root, log, info, ReasonHeartbeatTimeout, existing)
		}
		log.Emit(events.LockDenied, map[string]any{"holder_pid": existing.PID, "stale_heartbeat": true})
		return nil, &HeldError{Lock: existing}
	}

	log.Emit(events.LockDenied, map[string]any{"holder_pid": existing.PID})
	return nil, &HeldError{Lock: existing}
}

// finishAcquire writes lock and heartbeat for the new holder. For takeovers
// the lock file is atomically overwritten, never deleted first.
func finishAcquire(root string, log *events.Log, info LockInfo, reason string, previous *LockInfo) (*Lease, error) {
	if err := writeLock(home.LockPath(root), &info); err != nil {
		return nil, err
	}
	if err := writeHeartbeat(home.HeartbeatPath(root), &Heartbeat{
		SessionID:  info.SessionID,
		LastBeatAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	l := &Lease{SessionID: info.SessionID, root: root, log: log.WithSession(info.SessionID)}
	if reason != "" {
		fields := map[string]any{"reason": reason}
		if previous != nil {
			fields["previous_pid"] = previous.PID
			fields["previous_session"] = previous.SessionID
		}
		l.log.Emit(events.LockStaleTakeover, fields)
	}
	l.log.Emit(events.LockAcquired, map[string]any{"pid": info.PID})
	return l, nil
}

// Beat refreshes the heartbeat. Only the long-lived interactive session
// calls this; short-lived commands hold the lease too briefly to go stale.
func (l *Lease) Beat() error {
	return writeHeartbeat(home.HeartbeatPath(l.root), &Heartbeat{
		SessionID:  l.SessionID,
		LastBeatAt: time.Now().UTC(),
	})
}

// Release deletes the lock and heartbeat files. Safe to call more than once.
func (l *Lease) Release() {
	os.Remove(home.LockPath(l.root))
	os.Remove(home.HeartbeatPath(l.root))
	l.log.Emit(events.LockReleased, nil)
}

// Log returns the session-stamped event log for this lease.
func (l *Lease) Log() *events.Log { return l.log }

// ReadCurrent returns the current lock and heartbeat, or nils when absent.
// Observers use this to report who the controller is.
func ReadCurrent(root string) (*LockInfo, *Heartbeat) {
	lock, err := readLock(home.LockPath(root))
	if err != nil {
		return nil, nil
	}
	hb, err := readHeartbeat(home.HeartbeatPath(root))
	if err != nil {
		return lock, nil
	}
	return lock, hb
}

func readLock(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty lock file")
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func writeLock(path string, info *LockInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return state.AtomicWrite(path, "", append(data, '\n'))
}

func readHeartbeat(path string) (*Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, err
	}
	return &hb, nil
}

func writeHeartbeat(path string, hb *Heartbeat) error {
	data, err := json.Marshal(hb)
	if err != nil {
		return err
	}
	return state.AtomicWrite(path, "", append(data, '\n'))
}
