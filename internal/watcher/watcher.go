// Package watcher reloads the local hoard when its document is rewritten
// by another process.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader re-reads the watched document. It reports whether anything
// changed.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// DefaultDebounce collapses the burst of events an atomic rename produces.
const DefaultDebounce = 200 * time.Millisecond

// Watch watches dir for changes to the file named doc and calls
// r.Reload after each burst of changes, until ctx is cancelled.
//
// The directory is watched rather than the file because atomic writes
// replace the file's inode, which drops a per-file watch.
func Watch(ctx context.Context, dir, doc string, r Reloader, debounce time.Duration, logger *slog.Logger) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("dir", dir), slog.String("document", doc))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			changed, err := r.Reload(ctx)
			if err != nil {
				logger.Warn("watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			if changed {
				logger.Debug("watcher: reloaded", slog.String("document", doc))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != doc {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
