package taskstore

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oompa-dev/oompa/internal/core"
)

// Backpressure parameters for workers that cannot plan their own tasks.
const (
	waitPollInterval = 5 * time.Second
	waitMax          = 60 * time.Second
)

// WaitNonEmpty blocks until pending/ holds at least one task, the timeout
// elapses, or ctx is cancelled. A filesystem watch on pending/ wakes the
// wait early; the 5s poll covers platforms where the watch is unreliable.
// Past the 60s cap the caller proceeds anyway, so the return value only
// reports whether tasks were seen.
func (s *Store) WaitNonEmpty(ctx context.Context) bool {
	if s.hasPending() {
		return true
	}

	var wake <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(s.stateDir(core.TaskPending)); err == nil {
			wake = watcher.Events
		}
	}

	deadline := time.NewTimer(waitMax)
	defer deadline.Stop()
	poll := time.NewTicker(waitPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.hasPending()
		case <-deadline.C:
			return s.hasPending()
		case <-poll.C:
			if s.hasPending() {
				return true
			}
		case ev := <-wake:
			if ev.Op.Has(fsnotify.Create) && s.hasPending() {
				return true
			}
		}
	}
}

func (s *Store) hasPending() bool {
	ids, err := s.IDs(core.TaskPending)
	return err == nil && len(ids) > 0
}
