// Package guard is the long-lived sentinel: it checkpoints team state every
// tick, prunes at size/token thresholds with team protection, reacts to
// sudden growth within a fraction of a second, and refuses to loop forever
// through a circuit breaker.
package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/junaidtitan/cozempic/internal/logging"
	"github.com/junaidtitan/cozempic/internal/record"
	"github.com/junaidtitan/cozempic/internal/session"
	"github.com/junaidtitan/cozempic/internal/strategy"
	"github.com/junaidtitan/cozempic/internal/team"
	"github.com/junaidtitan/cozempic/internal/tokens"
)

// ErrBreakerTripped means the guard refuses to start or act because too many
// recoveries happened inside the breaker window.
var ErrBreakerTripped = errors.New("circuit breaker tripped")

// ErrSessionVanished means the transcript disappeared underneath the guard.
var ErrSessionVanished = errors.New("session file disappeared")

// Config holds the guard's resolved settings (flags over file over defaults).
type Config struct {
	HardBytes        int64
	SoftBytes        int64
	TokenThreshold   int
	Interval         time.Duration
	HardPrescription string
	Reload           bool
	Reactive         bool
	BreakerMax       int
	BreakerWindow    time.Duration
	MetricsAddr      string
	TeamsDir         string
	Strategy         *strategy.Config
}

// Guard watches one session.
type Guard struct {
	cfg     Config
	sess    *session.Session
	log     *logging.Logger
	breaker *Breaker
	metrics *Metrics

	// mu serializes every mutation of the session file and the checkpoint.
	mu sync.Mutex

	// checkpointWanted is the reactive thread's request for the poll thread
	// to write a checkpoint on its next tick.
	checkpointWanted atomic.Bool

	softCycles    int
	hardCycles    int
	trippedLogged bool

	now func() time.Time
}

// New builds a guard. The prescription name must exist in the registry.
func New(sess *session.Session, cfg Config, log *logging.Logger) (*Guard, error) {
	if _, ok := strategy.Prescription(cfg.HardPrescription); !ok {
		return nil, fmt.Errorf("unknown prescription %q", cfg.HardPrescription)
	}
	if cfg.Strategy == nil {
		cfg.Strategy = strategy.DefaultConfig()
	}
	g := &Guard{
		cfg:     cfg,
		sess:    sess,
		log:     log.Named("guard"),
		breaker: NewBreaker(sess.ID, cfg.BreakerMax, cfg.BreakerWindow),
		now:     time.Now,
	}
	if cfg.MetricsAddr != "" {
		g.metrics = NewMetrics()
	}
	return g, nil
}

// Run drives the guard until the context is canceled (signal) or the
// session vanishes. A tripped breaker at startup refuses to run at all.
func (g *Guard) Run(ctx context.Context) error {
	if g.breaker.Tripped() {
		return fmt.Errorf("%w: %d recoveries in the last %s",
			ErrBreakerTripped, g.breaker.Count(), g.cfg.BreakerWindow)
	}

	release, err := AcquireLock(g.sess.ID)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if g.metrics != nil {
		go func() {
			if err := g.metrics.Serve(ctx, g.cfg.MetricsAddr); err != nil {
				g.log.Warn("metrics server failed", zap.Error(err))
			}
		}()
	}

	if g.cfg.Reactive {
		w := NewWatcher(g.sess.Path)
		go w.Start(ctx)
		go g.reactiveLoop(ctx, w)
		defer w.Stop()
	}

	g.log.Info("guarding session",
		zap.String("session", g.sess.ID),
		zap.Int64("hard_bytes", g.cfg.HardBytes),
		zap.Int64("soft_bytes", g.cfg.SoftBytes),
		zap.Duration("interval", g.cfg.Interval),
		zap.String("prescription", g.cfg.HardPrescription),
		zap.Bool("reactive", g.cfg.Reactive),
		zap.Bool("reload", g.cfg.Reload),
	)

	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.finalCheckpoint("guard shutting down")
			g.log.Info("guard stopped",
				zap.Int("soft_cycles", g.softCycles),
				zap.Int("hard_cycles", g.hardCycles))
			return nil
		case <-ticker.C:
			if err := g.tick(); err != nil {
				if errors.Is(err, ErrSessionVanished) {
					g.log.Warn("session file disappeared, stopping guard")
					return err
				}
				g.log.Error("tick failed", zap.Error(err))
			}
		}
	}
}

// tick is one IDLE cycle: observe, checkpoint, then fire thresholds.
func (g *Guard) tick() error {
	info, err := os.Stat(g.sess.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrSessionVanished
		}
		return fmt.Errorf("stat session: %w", err)
	}
	size := info.Size()
	g.metrics.SetSessionBytes(size)

	g.writeCheckpoint()
	g.checkpointWanted.Store(false)

	tokensOver := false
	if g.cfg.TokenThreshold > 0 {
		if est, ok := tokens.QuickEstimate(g.sess.Path); ok && est >= g.cfg.TokenThreshold {
			tokensOver = true
		}
	}

	switch {
	case size >= g.cfg.HardBytes || tokensOver:
		g.hardFired("poll", g.cfg.HardPrescription)
	case size >= g.cfg.SoftBytes:
		g.softFired()
	}
	return nil
}

// softFired applies the gentle prescription with team protection. No reload.
func (g *Guard) softFired() {
	g.log.Info("soft threshold crossed, gentle prune")
	saved, _, err := g.prune("gentle")
	if err != nil {
		g.log.Error("soft prune failed", zap.Error(err))
		return
	}
	g.softCycles++
	g.metrics.ObservePrune("gentle", "soft", saved)
	g.log.Info("soft prune complete", zap.Int64("bytes_saved", saved))
}

// hardFired applies the hard prescription with team protection, increments
// the breaker, and optionally kills and resumes the host agent. In the
// tripped state it only observes.
func (g *Guard) hardFired(trigger, rx string) {
	if g.breaker.Tripped() {
		if !g.trippedLogged {
			g.trippedLogged = true
			g.metrics.ObserveBreakerTrip()
			g.log.Error("breaker tripped: refusing further prunes, observe-only from here",
				zap.Int("recoveries", g.breaker.Count()),
				zap.Duration("window", g.cfg.BreakerWindow))
			g.finalCheckpoint("breaker tripped; automatic pruning halted")
		}
		return
	}

	before := fileSizeMB(g.sess.Path)
	g.log.Warn("hard threshold crossed", zap.String("trigger", trigger), zap.String("prescription", rx))

	saved, _, err := g.prune(rx)
	if err != nil {
		g.log.Error("hard prune failed", zap.Error(err))
		return
	}
	g.hardCycles++
	after := fileSizeMB(g.sess.Path)
	g.breaker.Record(rx, before, after)
	g.metrics.ObservePrune(rx, trigger, saved)
	g.log.Info("hard prune complete",
		zap.Float64("before_mb", before),
		zap.Float64("after_mb", after),
		zap.Int64("bytes_saved", saved))

	stillOver := int64(after*1024*1024) >= g.cfg.HardBytes
	if stillOver {
		g.log.Warn("post-prune size still above hard threshold, skipping reload")
		g.noteCheckpoint("post-prune size still above hard threshold; reload skipped")
		return
	}
	if g.cfg.Reload {
		g.reload()
	}
}

// prune executes one team-protected prescription pass under the session
// lock: backup, rewrite, checkpoint.
func (g *Guard) prune(rx string) (int64, *team.State, error) {
	names, ok := strategy.Prescription(rx)
	if !ok {
		return 0, nil, fmt.Errorf("unknown prescription %q", rx)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	seq, warnings, err := record.ReadFile(g.sess.Path)
	if err != nil {
		return 0, nil, err
	}
	for _, w := range warnings {
		g.log.Warn("parse warning", zap.Int("line", w.Line), zap.String("err", w.Err))
	}

	state, err := team.ExtractAndMerge(seq, g.cfg.TeamsDir)
	if err != nil {
		g.log.Warn("team config merge failed", zap.Error(err))
	}

	before := seq.TotalBytes()
	out, _, err := team.Prune(seq, names, g.cfg.Strategy, state)
	if err != nil {
		return 0, nil, err
	}
	saved := before - out.TotalBytes()

	backup, err := session.Save(g.sess.Path, out, true, g.now())
	if err != nil {
		return 0, nil, err
	}
	g.log.Info("transcript rewritten", zap.String("backup", backup))

	if _, err := team.WriteCheckpoint(state, g.sess.Path, g.now()); err != nil {
		g.log.Warn("checkpoint write failed", zap.Error(err))
	} else {
		g.metrics.ObserveCheckpoint()
	}
	return saved, state, nil
}

// writeCheckpoint is the per-tick read-only extraction plus atomic write.
func (g *Guard) writeCheckpoint(notes ...string) {
	seq, _, err := record.ReadFile(g.sess.Path)
	if err != nil {
		g.log.Warn("checkpoint read failed", zap.Error(err))
		return
	}
	state, err := team.ExtractAndMerge(seq, g.cfg.TeamsDir)
	if err != nil {
		g.log.Warn("team config merge failed", zap.Error(err))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := team.WriteCheckpoint(state, g.sess.Path, g.now(), notes...); err != nil {
		g.log.Warn("checkpoint write failed", zap.Error(err))
		return
	}
	g.metrics.ObserveCheckpoint()
}

func (g *Guard) noteCheckpoint(note string) {
	g.writeCheckpoint(note)
}

func (g *Guard) finalCheckpoint(note string) {
	if _, err := os.Stat(g.sess.Path); err != nil {
		return
	}
	g.writeCheckpoint(note)
}

// reload kills the host agent and spawns a detached watcher that reopens it
// against the pruned transcript.
func (g *Guard) reload() {
	hostPID := FindHostPID()
	if hostPID == 0 {
		g.log.Warn("could not find host agent process; pruned but not reloading",
			zap.String("hint", "restart manually: claude --resume "+g.sess.ID))
		return
	}
	projectDir := session.PathFromSlug(g.sess.Project)
	if err := SpawnReloadWatcher(hostPID, projectDir, g.sess.ID); err != nil {
		g.log.Warn("reload watcher failed", zap.Error(err))
		return
	}
	if err := KillHost(hostPID); err != nil {
		g.log.Warn("could not signal host agent", zap.Int("pid", hostPID), zap.Error(err))
		return
	}
	g.log.Info("reload triggered", zap.Int("host_pid", hostPID))
}

// reactiveLoop handles sub-second growth events from the watcher. Small
// files take the fast path out immediately; a jump past the hard threshold
// runs an escalated recovery under the shared lock.
func (g *Guard) reactiveLoop(ctx context.Context, w *Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			// Fast path: well below soft, nothing to do.
			if ev.Size < g.cfg.SoftBytes {
				continue
			}
			if ev.Size < g.cfg.HardBytes {
				// Worth a checkpoint on the next poll tick, nothing more.
				g.checkpointWanted.Store(true)
				continue
			}
			g.reactiveRecover()
		}
	}
}

// reactiveRecover is HARD_FIRED from the watcher thread, with the breaker's
// escalating prescription ladder. The checkpoint after a reactive prune is
// written here (under the lock), not deferred to the poll thread.
func (g *Guard) reactiveRecover() {
	// Re-check under no lock: the poll thread may have pruned already.
	size := int64(fileSizeMB(g.sess.Path) * 1024 * 1024)
	if size < g.cfg.HardBytes {
		return
	}
	rx := g.breaker.NextPrescription()
	g.log.Warn("reactive overflow recovery", zap.String("prescription", rx), zap.Int64("size", size))
	g.hardFired("reactive", rx)
}

func fileSizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / 1024 / 1024
}
