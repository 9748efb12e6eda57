package session

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/junaidtitan/cozempic/internal/record"
)

// backupTimestamp is the layout for backup file names.
const backupTimestamp = "20060102_150405"

// Backup copies the transcript to a timestamped .bak sibling and returns its
// path. Backups are never pruned here; an external janitor may remove them.
func Backup(path string, now time.Time) (string, error) {
	base := strings.TrimSuffix(path, ".jsonl")
	backupPath := fmt.Sprintf("%s.%s.jsonl.bak", base, now.Format(backupTimestamp))

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening transcript for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating backup: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", fmt.Errorf("copying backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("closing backup: %w", err)
	}
	return backupPath, nil
}

// WriteAtomic replaces the transcript with the given sequence: write to a
// sibling temp file, fsync, rename over the original. On rename failure the
// temp file is kept, its path reported, and the original left untouched.
func WriteAtomic(path string, seq record.Sequence) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := record.Write(tmp, seq); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename failed, rewritten transcript kept at %s: %w", tmpPath, err)
	}
	return nil
}

// Save backs up the transcript (unless withBackup is false) and atomically
// replaces it with seq. Returns the backup path, "" when no backup was made.
func Save(path string, seq record.Sequence, withBackup bool, now time.Time) (string, error) {
	backupPath := ""
	if withBackup {
		var err error
		backupPath, err = Backup(path, now)
		if err != nil {
			return "", err
		}
	}
	if err := WriteAtomic(path, seq); err != nil {
		return backupPath, err
	}
	return backupPath, nil
}

// WriteTextAtomic writes arbitrary text (the team checkpoint, the recap
// note) with the same temp/fsync/rename discipline.
func WriteTextAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
