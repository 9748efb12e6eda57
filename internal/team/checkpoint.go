package team

import (
	"os"
	"path/filepath"
	"time"

	"github.com/junaidtitan/cozempic/internal/record"
	"github.com/junaidtitan/cozempic/internal/session"
)

// CheckpointPath returns where the checkpoint for a session lives: next to
// the transcript, in its project directory.
func CheckpointPath(sessionPath string) string {
	return filepath.Join(filepath.Dir(sessionPath), CheckpointFileName)
}

// WriteCheckpoint renders the state and writes it atomically into the
// session's project directory, beside the transcript. Extra notes (a skipped reload, a tripped
// breaker) are appended as plain lines. Returns the path written.
func WriteCheckpoint(state *State, sessionPath string, now time.Time, notes ...string) (string, error) {
	path := CheckpointPath(sessionPath)
	content := state.Checkpoint(now)
	for _, n := range notes {
		content += "note: " + n + "\n"
	}
	if err := session.WriteTextAtomic(path, []byte(content)); err != nil {
		return "", err
	}
	return path, nil
}

// ReadCheckpoint returns the current checkpoint contents, if any.
func ReadCheckpoint(sessionPath string) (string, bool) {
	data, err := os.ReadFile(CheckpointPath(sessionPath))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// ExtractAndMerge runs a full extraction pass over a transcript and merges
// the on-disk team config for whatever team name was found.
func ExtractAndMerge(seq record.Sequence, teamsDir string) (*State, error) {
	state := Extract(seq)
	cfg, err := LoadDiskConfig(teamsDir, state.TeamName)
	if err != nil {
		return state, err
	}
	MergeDiskConfig(state, cfg)
	return state, nil
}
