package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junaidtitan/cozempic/internal/record"
)

func TestBackup_ByteIdenticalCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess.jsonl")
	content := `{"type":"user","uuid":"u1","message":{"content":"hi"}}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	backup, err := Backup(path, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sess.20260806_120000.jsonl.bak"), backup)

	got, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestSave_BackupMatchesPreTreatmentFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess.jsonl")
	original := strings.Join([]string{
		`{"type":"user","uuid":"u1","message":{"content":"one"}}`,
		`{"type":"user","uuid":"u2","message":{"content":"two"}}`,
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	seq, _, err := record.ReadFile(path)
	require.NoError(t, err)
	pruned := seq[:1]

	backup, err := Save(path, pruned, true, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, backup)

	backupContent, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, original, string(backupContent), "backup must equal the pre-treatment file byte for byte")

	newContent, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"user","uuid":"u1","message":{"content":"one"}}`+"\n", string(newContent))
}

func TestWriteAtomic_ReplacesInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	seq := record.Sequence{record.ParseLine([]byte(`{"type":"user","uuid":"u1"}`))}
	require.NoError(t, WriteAtomic(path, seq))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"user","uuid":"u1"}`+"\n", string(got))

	// No temp litter left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteTextAtomic_CreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "checkpoint.txt")
	require.NoError(t, WriteTextAtomic(path, []byte("team state\n")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "team state\n", string(got))
}

func TestReadWrite_NoStrategiesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess.jsonl")
	original := strings.Join([]string{
		`{"type":"user","uuid":"u1","oddly":   "spaced"}`,
		`broken line {`,
		`{"type":"summary","uuid":"s1","summary":"x"}`,
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	seq, warnings, err := record.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	require.NoError(t, WriteAtomic(path, seq))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(got))
}
