package guard

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fallbackPollInterval is the stat cadence when native change notification
// is unavailable.
const fallbackPollInterval = 200 * time.Millisecond

// GrowthEvent reports that the watched file grew.
type GrowthEvent struct {
	Size int64
}

// Watcher observes a transcript for size growth, preferring native change
// notification with a stat-poll fallback.
type Watcher struct {
	path     string
	events   chan GrowthEvent
	stop     chan struct{}
	lastSize int64
	notify   *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given file. fsnotify failure is not
// fatal; the watcher degrades to polling.
func NewWatcher(path string) *Watcher {
	w := &Watcher{
		path:     path,
		events:   make(chan GrowthEvent, 16),
		stop:     make(chan struct{}),
		lastSize: fileSize(path),
	}
	if nw, err := fsnotify.NewWatcher(); err == nil {
		if err := nw.Add(path); err == nil {
			w.notify = nw
		} else {
			_ = nw.Close()
		}
	}
	return w
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Start begins watching. Run it in its own goroutine; events arrive on
// Events() until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) {
	if w.notify != nil {
		w.watchNotify(ctx)
		return
	}
	w.watchPoll(ctx)
}

// Stop terminates the watcher.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	if w.notify != nil {
		_ = w.notify.Close()
	}
}

// Events is the growth event channel.
func (w *Watcher) Events() <-chan GrowthEvent {
	return w.events
}

func (w *Watcher) emitIfGrown() {
	size := fileSize(w.path)
	if size <= w.lastSize {
		// Shrinks (our own prune) reset the baseline without an event.
		w.lastSize = size
		return
	}
	w.lastSize = size
	select {
	case w.events <- GrowthEvent{Size: size}:
	default:
		// A pending event already covers this growth.
	}
}

func (w *Watcher) watchNotify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.notify.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.emitIfGrown()
			}
			// The atomic-rename rewrite replaces the inode; re-add the path
			// so subsequent appends keep being observed.
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				_ = w.notify.Add(w.path)
				w.lastSize = fileSize(w.path)
			}
		case _, ok := <-w.notify.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) watchPoll(ctx context.Context) {
	ticker := time.NewTicker(fallbackPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.emitIfGrown()
		}
	}
}
