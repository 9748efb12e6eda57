package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLockHeld indicates another guard already owns this session.
var ErrLockHeld = errors.New("another guard is running for this session")

// lockPath returns the PID lock file for a session, under the process-wide
// temp directory.
func lockPath(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	slug := hex.EncodeToString(sum[:])[:12]
	return filepath.Join(os.TempDir(), "cozempic_guard_"+slug+".pid")
}

// AcquireLock records this process's PID for the session. If a live guard
// already holds the lock, ErrLockHeld is returned; a stale lock from a dead
// process is replaced.
func AcquireLock(sessionID string) (release func(), err error) {
	path := lockPath(sessionID)

	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && pid > 0 {
			if processAlive(pid) {
				return nil, fmt.Errorf("%w (pid %d, lock %s)", ErrLockHeld, pid, path)
			}
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return func() { _ = os.Remove(path) }, nil
}

// processAlive probes a PID with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
