//go:build !windows

package lease

import "syscall"

// isProcessAlive checks for process existence with kill(pid, 0).
// EPERM means the process exists but belongs to someone else; that still
// counts as alive.
func isProcessAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
