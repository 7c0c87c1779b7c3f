//go:build windows

package lease

import "os"

// isProcessAlive checks for process existence. On Windows, FindProcess
// fails for PIDs that no longer exist.
func isProcessAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}
