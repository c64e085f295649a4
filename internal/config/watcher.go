package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events an editor save produces.
const DefaultWatchDebounce = 300 * time.Millisecond

// Watch reloads r whenever its config or .env file changes, until ctx is
// done. It watches the parent directories so files created or replaced by
// rename are seen too. Reload errors are logged and the previous config
// stays in effect.
func (r *Reloader) Watch(ctx context.Context, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	targets := map[string]bool{}
	for _, p := range []string{r.configPath, r.dotenvPath} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		targets[abs] = true
		if err := w.Add(filepath.Dir(abs)); err != nil {
			slog.Debug("config watch skipped", "dir", filepath.Dir(abs), "error", err)
		}
	}
	if len(w.WatchList()) == 0 {
		w.Close()
		return fmt.Errorf("config watcher: nothing to watch")
	}

	go r.watchLoop(ctx, w, targets, debounce)
	return nil
}

func (r *Reloader) watchLoop(ctx context.Context, w *fsnotify.Watcher, targets map[string]bool, debounce time.Duration) {
	defer w.Close()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !targets[filepath.Clean(ev.Name)] || ev.Op == fsnotify.Chmod {
				continue
			}
			slog.Debug("config file changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher", "error", err)
		case <-timer.C:
			if err := r.Reload(); err != nil {
				slog.Warn("config auto-reload failed", "error", err)
			}
		}
	}
}
