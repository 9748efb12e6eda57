// Package session locates Claude Code session transcripts on disk and
// performs the destructive-write discipline around them: timestamped backup
// first, then an atomic temp-file/fsync/rename replacement.
package session

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// EnvSessionID names the session id for the current shell, written by the
// optional shell hook.
const EnvSessionID = "COZEMPIC_SESSION_ID"

// ErrNotFound indicates the session argument matched nothing on disk.
var ErrNotFound = errors.New("session not found")

// ErrAmbiguous indicates a UUID prefix matched more than one session.
var ErrAmbiguous = errors.New("session prefix is ambiguous")

// Session describes one transcript file.
type Session struct {
	Path    string
	Project string
	ID      string
	Size    int64
	ModTime time.Time
	Lines   int
}

// ProjectsDir returns the host agent's per-project transcript root.
func ProjectsDir(claudeDir string) string {
	return filepath.Join(claudeDir, "projects")
}

// List enumerates transcripts across projects, skipping backups. An empty
// projectFilter matches everything; otherwise a case-insensitive substring
// match on the project directory name applies.
func List(claudeDir, projectFilter string) ([]Session, error) {
	root := ProjectsDir(claudeDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading projects dir: %w", err)
	}

	var sessions []Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if projectFilter != "" && !strings.Contains(strings.ToLower(e.Name()), strings.ToLower(projectFilter)) {
			continue
		}
		projDir := filepath.Join(root, e.Name())
		files, err := filepath.Glob(filepath.Join(projDir, "*.jsonl"))
		if err != nil {
			continue
		}
		sort.Strings(files)
		for _, f := range files {
			if strings.Contains(filepath.Base(f), ".bak") {
				continue
			}
			info, err := os.Stat(f)
			if err != nil {
				continue
			}
			sessions = append(sessions, Session{
				Path:    f,
				Project: e.Name(),
				ID:      strings.TrimSuffix(filepath.Base(f), ".jsonl"),
				Size:    info.Size(),
				ModTime: info.ModTime(),
				Lines:   countLines(f),
			})
		}
	}
	return sessions, nil
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		n++
	}
	return n
}

// SlugFromCwd converts a working directory to the host agent's project slug:
// the path with separators replaced by dashes.
func SlugFromCwd(cwd string) string {
	return strings.ReplaceAll(cwd, string(filepath.Separator), "-")
}

// PathFromSlug is the inverse heuristic: -Users-foo-proj -> /Users/foo/proj.
// Lossy for directory names containing dashes, so callers should verify the
// result exists before relying on it.
func PathFromSlug(slug string) string {
	return strings.ReplaceAll(slug, "-", string(filepath.Separator))
}

// FindCurrent auto-detects the session for the current shell. Priority:
// the shell-hook environment variable, then a project-slug match against
// cwd, then the most recently modified session anywhere.
func FindCurrent(claudeDir, cwd string) (*Session, error) {
	sessions, err := List(claudeDir, "")
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}

	if id := os.Getenv(EnvSessionID); id != "" {
		for i := range sessions {
			if sessions[i].ID == id {
				return &sessions[i], nil
			}
		}
	}

	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	slug := SlugFromCwd(cwd)
	var matching []*Session
	for i := range sessions {
		if strings.Contains(sessions[i].Project, slug) {
			matching = append(matching, &sessions[i])
		}
	}
	if len(matching) > 0 {
		best := matching[0]
		for _, s := range matching[1:] {
			if s.ModTime.After(best.ModTime) {
				best = s
			}
		}
		return best, nil
	}

	best := &sessions[0]
	for i := range sessions {
		if sessions[i].ModTime.After(best.ModTime) {
			best = &sessions[i]
		}
	}
	return best, nil
}

// Resolve maps a session argument to a transcript. Accepts a full UUID, a
// unique UUID prefix, a file path, or the literal "current".
func Resolve(claudeDir, arg string) (*Session, error) {
	if arg == "current" {
		return FindCurrent(claudeDir, "")
	}

	if strings.HasSuffix(arg, ".jsonl") {
		if info, err := os.Stat(arg); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(arg)
			if err != nil {
				abs = arg
			}
			return &Session{
				Path:    abs,
				Project: filepath.Base(filepath.Dir(abs)),
				ID:      strings.TrimSuffix(filepath.Base(abs), ".jsonl"),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}, nil
		}
	}

	sessions, err := List(claudeDir, "")
	if err != nil {
		return nil, err
	}
	var matches []*Session
	for i := range sessions {
		if sessions[i].ID == arg {
			return &sessions[i], nil
		}
		if strings.HasPrefix(sessions[i].ID, arg) {
			matches = append(matches, &sessions[i])
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, arg)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %s matches %d sessions", ErrAmbiguous, arg, len(matches))
	}
}
