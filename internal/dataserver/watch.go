package dataserver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last change before reloading.
const DefaultDebounce = 500 * time.Millisecond

// Reloader re-reads a catalog. *curriculum.Loader implements it.
type Reloader interface {
	Root() string
	Reload() error
}

// Watch reloads the catalog whenever a file under its root changes, until ctx
// is done. Bursts of events within debounce collapse into a single reload.
func Watch(ctx context.Context, r Reloader, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := addTree(watcher, r.Root()); err != nil {
		return err
	}
	slog.Info("watching catalog", "root", r.Root())

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		if err := r.Reload(); err != nil {
			slog.Error("catalog reload failed", "root", r.Root(), "error", err)
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if err := addTree(watcher, event.Name); err != nil {
					slog.Warn("failed to watch new path", "path", event.Name, "error", err)
				}
			}
			slog.Debug("catalog change detected", "path", event.Name, "op", event.Op.String())

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("catalog watcher error", "error", err)
		}
	}
}

// addTree watches root and every directory below it. A plain file is ignored
// since its directory is already watched.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}
