package guard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junaidtitan/cozempic/internal/logging"
	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/team"
)

// bloatedTranscript writes a transcript dominated by a contiguous progress
// run, so a gentle prune shrinks it dramatically.
func bloatedTranscript(t *testing.T, path string, ticks int) {
	t.Helper()
	var b strings.Builder
	b.WriteString(`{"type":"user","uuid":"u1","sessionId":"sess-guard","message":{"content":"start"}}` + "\n")
	filler := strings.Repeat("t", 400)
	for i := 0; i < ticks; i++ {
		fmt.Fprintf(&b, `{"type":"progress","uuid":"p%d","message":{"content":%q}}`+"\n", i, filler)
	}
	b.WriteString(`{"type":"user","uuid":"u2","message":{"content":"end"}}` + "\n")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
}

func testGuard(t *testing.T, cfg Config) (*Guard, *session.Session) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sess-guard.jsonl")
	bloatedTranscript(t, path, 500)
	info, err := os.Stat(path)
	require.NoError(t, err)

	sess := &session.Session{
		Path:    path,
		Project: "-tmp-guarded",
		ID:      "sess-guard-" + t.Name(),
		Size:    info.Size(),
	}

	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.HardPrescription == "" {
		cfg.HardPrescription = "standard"
	}
	if cfg.BreakerMax == 0 {
		cfg.BreakerMax = 3
	}
	if cfg.BreakerWindow == 0 {
		cfg.BreakerWindow = 5 * time.Minute
	}

	g, err := New(sess, cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(g.breaker.Reset)
	return g, sess
}

func TestTick_IdleWritesCheckpoint(t *testing.T) {
	g, sess := testGuard(t, Config{
		HardBytes: 100 * 1024 * 1024,
		SoftBytes: 50 * 1024 * 1024,
	})

	require.NoError(t, g.tick())

	_, ok := team.ReadCheckpoint(sess.Path)
	assert.True(t, ok, "idle tick must write a checkpoint")

	// Well under every threshold: no prune, no backup.
	entries, err := filepath.Glob(filepath.Join(filepath.Dir(sess.Path), "*.bak"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTick_SoftFired(t *testing.T) {
	g, sess := testGuard(t, Config{
		HardBytes: 100 * 1024 * 1024,
		SoftBytes: 10 * 1024, // below the fixture size
	})

	before, _ := os.Stat(sess.Path)
	require.NoError(t, g.tick())
	after, err := os.Stat(sess.Path)
	require.NoError(t, err)

	assert.Less(t, after.Size(), before.Size(), "soft cycle must shrink the transcript")
	assert.Equal(t, 1, g.softCycles)
	assert.Zero(t, g.hardCycles)
	assert.Equal(t, 0, g.breaker.Count(), "soft cycles do not touch the breaker")

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(sess.Path), "*.bak"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestTick_HardFired(t *testing.T) {
	g, sess := testGuard(t, Config{
		HardBytes: 10 * 1024,
		SoftBytes: 5 * 1024,
		Reload:    false,
	})

	before, _ := os.Stat(sess.Path)
	require.NoError(t, g.tick())
	after, err := os.Stat(sess.Path)
	require.NoError(t, err)

	assert.Less(t, after.Size(), before.Size())
	assert.Less(t, after.Size(), int64(10*1024), "post-prune size falls below hard")
	assert.Equal(t, 1, g.hardCycles)
	assert.Equal(t, 1, g.breaker.Count(), "hard cycles increment the breaker")

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(sess.Path), "*.bak"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
	_, ok := team.ReadCheckpoint(sess.Path)
	assert.True(t, ok)
}

func TestHardFired_BreakerObserveOnly(t *testing.T) {
	g, sess := testGuard(t, Config{
		HardBytes: 10 * 1024,
		SoftBytes: 5 * 1024,
	})
	for i := 0; i < 3; i++ {
		g.breaker.Record("standard", 90, 80)
	}

	before, _ := os.Stat(sess.Path)
	g.hardFired("poll", "standard")
	after, err := os.Stat(sess.Path)
	require.NoError(t, err)

	assert.Equal(t, before.Size(), after.Size(), "tripped breaker must not prune")
	assert.Zero(t, g.hardCycles)
	assert.True(t, g.trippedLogged)

	content, ok := team.ReadCheckpoint(sess.Path)
	require.True(t, ok)
	assert.Contains(t, content, "breaker tripped")
}

func TestRun_RefusesWhenBreakerTripped(t *testing.T) {
	g, _ := testGuard(t, Config{
		HardBytes: 10 * 1024,
		SoftBytes: 5 * 1024,
	})
	for i := 0; i < 3; i++ {
		g.breaker.Record("standard", 90, 80)
	}

	err := g.Run(context.Background())
	assert.ErrorIs(t, err, ErrBreakerTripped)
}

func TestTick_SessionVanished(t *testing.T) {
	g, sess := testGuard(t, Config{
		HardBytes: 10 * 1024 * 1024,
		SoftBytes: 5 * 1024 * 1024,
	})
	require.NoError(t, os.Remove(sess.Path))
	assert.ErrorIs(t, g.tick(), ErrSessionVanished)
}

func TestReactiveRecover_EscalatesThroughLadder(t *testing.T) {
	g, _ := testGuard(t, Config{
		HardBytes: 10 * 1024,
		SoftBytes: 5 * 1024,
	})

	// First reactive recovery runs gentle.
	assert.Equal(t, "gentle", g.breaker.NextPrescription())
	g.reactiveRecover()
	assert.Equal(t, 1, g.hardCycles)
	assert.Equal(t, "standard", g.breaker.NextPrescription())
}

func TestReactiveRecover_FastPathBelowHard(t *testing.T) {
	g, _ := testGuard(t, Config{
		HardBytes: 100 * 1024 * 1024,
		SoftBytes: 50 * 1024 * 1024,
	})
	g.reactiveRecover()
	assert.Zero(t, g.hardCycles, "below hard: reactive recovery is a no-op")
}

func TestWatcher_PollDetectsGrowth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	w := &Watcher{
		path:     path,
		events:   make(chan GrowthEvent, 16),
		stop:     make(chan struct{}),
		lastSize: fileSize(path),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.watchPoll(ctx)
	defer w.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(strings.Repeat(`{"type":"progress"}`+"\n", 100))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case ev := <-w.Events():
		assert.Greater(t, ev.Size, int64(2))
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never reported growth")
	}
}

func TestWatcher_ShrinkResetsBaselineSilently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 1000)), 0o600))

	w := &Watcher{
		path:     path,
		events:   make(chan GrowthEvent, 16),
		stop:     make(chan struct{}),
		lastSize: fileSize(path),
	}

	// Our own prune shrinks the file; the watcher re-baselines quietly.
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	w.emitIfGrown()
	select {
	case <-w.Events():
		t.Fatal("shrink must not produce a growth event")
	default:
	}
	assert.Equal(t, int64(1), w.lastSize)
}
