package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSession(t *testing.T, claudeDir, project, id, content string) string {
	t.Helper()
	dir := filepath.Join(claudeDir, "projects", project)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, id+".jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestList(t *testing.T) {
	claudeDir := t.TempDir()
	writeSession(t, claudeDir, "-home-dev-alpha", "aaaa1111-0000-0000-0000-000000000001", "{}\n{}\n")
	writeSession(t, claudeDir, "-home-dev-beta", "bbbb2222-0000-0000-0000-000000000002", "{}\n")
	// Backups are skipped.
	bak := filepath.Join(claudeDir, "projects", "-home-dev-alpha", "x.20260101_000000.jsonl.bak")
	require.NoError(t, os.WriteFile(bak, []byte("{}\n"), 0o600))

	sessions, err := List(claudeDir, "")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 2, sessions[0].Lines)

	filtered, err := List(claudeDir, "beta")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "-home-dev-beta", filtered[0].Project)
}

func TestList_MissingRoot(t *testing.T) {
	sessions, err := List(filepath.Join(t.TempDir(), "nope"), "")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestResolve(t *testing.T) {
	claudeDir := t.TempDir()
	path := writeSession(t, claudeDir, "-home-dev-alpha", "aaaa1111-0000-0000-0000-000000000001", "{}\n")
	writeSession(t, claudeDir, "-home-dev-alpha", "aaab3333-0000-0000-0000-000000000003", "{}\n")

	t.Run("full uuid", func(t *testing.T) {
		s, err := Resolve(claudeDir, "aaaa1111-0000-0000-0000-000000000001")
		require.NoError(t, err)
		assert.Equal(t, path, s.Path)
	})

	t.Run("unique prefix", func(t *testing.T) {
		s, err := Resolve(claudeDir, "aaaa")
		require.NoError(t, err)
		assert.Equal(t, path, s.Path)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := Resolve(claudeDir, "aaa")
		assert.ErrorIs(t, err, ErrAmbiguous)
	})

	t.Run("file path", func(t *testing.T) {
		s, err := Resolve(claudeDir, path)
		require.NoError(t, err)
		assert.Equal(t, path, s.Path)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := Resolve(claudeDir, "zzzz")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFindCurrent_EnvVariableWins(t *testing.T) {
	claudeDir := t.TempDir()
	writeSession(t, claudeDir, "-home-dev-alpha", "aaaa1111-0000-0000-0000-000000000001", "{}\n")
	target := writeSession(t, claudeDir, "-home-dev-beta", "bbbb2222-0000-0000-0000-000000000002", "{}\n")

	t.Setenv(EnvSessionID, "bbbb2222-0000-0000-0000-000000000002")
	s, err := FindCurrent(claudeDir, "/somewhere/else")
	require.NoError(t, err)
	assert.Equal(t, target, s.Path)
}

func TestFindCurrent_MostRecentFallback(t *testing.T) {
	claudeDir := t.TempDir()
	old := writeSession(t, claudeDir, "-p-one", "aaaa1111-0000-0000-0000-000000000001", "{}\n")
	recent := writeSession(t, claudeDir, "-p-two", "bbbb2222-0000-0000-0000-000000000002", "{}\n")
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	t.Setenv(EnvSessionID, "")
	s, err := FindCurrent(claudeDir, "/no/matching/project")
	require.NoError(t, err)
	assert.Equal(t, recent, s.Path)
}

func TestSlugRoundTrip(t *testing.T) {
	assert.Equal(t, "-home-dev-proj", SlugFromCwd("/home/dev/proj"))
	assert.Equal(t, "/home/dev/proj", PathFromSlug("-home-dev-proj"))
}
