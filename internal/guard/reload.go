package guard

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// FindHostPID walks up the process tree (at most ten levels) looking for the
// host agent: a process whose command name contains claude or node. When no
// such ancestor is found it returns the parent PID instead, or 0 when the
// parent is init.
func FindHostPID() int {
	pid := os.Getpid()
	for range [10]int{} {
		out, err := exec.Command("ps", "-o", "ppid=,comm=", "-p", strconv.Itoa(pid)).Output()
		if err != nil {
			break
		}
		parts := strings.SplitN(strings.TrimSpace(string(out)), " ", 2)
		if len(parts) < 2 {
			break
		}
		ppid, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			break
		}
		comm := strings.ToLower(strings.TrimSpace(parts[1]))
		if strings.Contains(comm, "claude") || strings.Contains(comm, "node") {
			return pid
		}
		if ppid <= 1 {
			break
		}
		pid = ppid
	}
	if ppid := os.Getppid(); ppid > 1 {
		return ppid
	}
	return 0
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// resumeCommand builds the platform command that opens a terminal running
// claude --resume in the project directory.
func resumeCommand(projectDir, sessionID string) (string, error) {
	resume := "claude --resume"
	if sessionID != "" {
		resume = "claude --resume " + shellQuote(sessionID)
	}
	inner := "cd " + shellQuote(projectDir) + " && " + resume

	switch runtime.GOOS {
	case "darwin":
		return `osascript -e 'tell application "Terminal" to do script "` +
			strings.ReplaceAll(inner, `"`, `\"`) + `"'`, nil
	case "linux":
		return "if command -v gnome-terminal >/dev/null 2>&1; then " +
			"gnome-terminal -- bash -c " + shellQuote(inner+"; exec bash") + "; " +
			"elif command -v xterm >/dev/null 2>&1; then " +
			"xterm -e " + shellQuote(inner) + " & " +
			"else echo 'no terminal emulator found' >&2; fi", nil
	default:
		return "", fmt.Errorf("auto-resume not supported on %s", runtime.GOOS)
	}
}

// SpawnReloadWatcher starts a detached shell that waits for the host agent
// process to exit, then opens a new terminal resuming the session.
func SpawnReloadWatcher(hostPID int, projectDir, sessionID string) error {
	resume, err := resumeCommand(projectDir, sessionID)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(
		"while kill -0 %d 2>/dev/null; do sleep 1; done; sleep 1; %s",
		hostPID, resume)

	cmd := exec.Command("bash", "-c", script)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning reload watcher: %w", err)
	}
	// Detach: the watcher outlives the guard.
	return cmd.Process.Release()
}

// KillHost asks the host agent process to exit so the reload watcher can
// respawn it against the pruned transcript.
func KillHost(hostPID int) error {
	proc, err := os.FindProcess(hostPID)
	if err != nil {
		return err
	}
	return proc.Signal(os.Interrupt)
}
