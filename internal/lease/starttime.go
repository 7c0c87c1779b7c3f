package lease

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// processStartTimeFunc is overridden in tests. Tests that mutate it must not
// use t.Parallel().
var processStartTimeFunc = psStartTime

// processStartTime returns an opaque start-time string for a PID, used to
// detect PID recycling: same PID, different start time means the original
// lock holder is gone.
func processStartTime(pid int) (string, error) {
	return processStartTimeFunc(pid)
}

// psStartTime reads the start time via ps(1). On systems without ps the
// call fails and callers degrade to PID-only liveness.
func psStartTime(pid int) (string, error) {
	cmd := exec.Command("ps", "-o", "lstart=", "-p", strconv.Itoa(pid))
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
