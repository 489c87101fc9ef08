package authz

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/plantops/pkg/observability"
)

// AreaWatcher serves an area map loaded from a file and reloads it when the
// file changes. A file that fails to load leaves the previous map in place.
type AreaWatcher struct {
	path     string
	current  atomic.Pointer[AreaMap]
	logger   *observability.Logger
	onReload func(*AreaMap)
}

// NewAreaWatcher loads path once; the initial load must succeed
func NewAreaWatcher(path string, logger *observability.Logger) (*AreaWatcher, error) {
	m, err := LoadAreaMap(path)
	if err != nil {
		return nil, err
	}
	w := &AreaWatcher{path: filepath.Clean(path), logger: logger}
	w.current.Store(m)
	return w, nil
}

// OnReload registers a callback run after every successful reload.
// Must be called before Run.
func (w *AreaWatcher) OnReload(fn func(*AreaMap)) {
	w.onReload = fn
}

// Current returns the active map
func (w *AreaWatcher) Current() *AreaMap {
	return w.current.Load()
}

// AreaFor resolves a controller against the active map
func (w *AreaWatcher) AreaFor(controller string) string {
	return w.Current().AreaFor(controller)
}

// Reload re-reads the file and swaps the map in on success
func (w *AreaWatcher) Reload() error {
	m, err := LoadAreaMap(w.path)
	if err != nil {
		return err
	}
	w.current.Store(m)
	if w.onReload != nil {
		w.onReload(m)
	}
	return nil
}

// Run watches the file's directory until ctx is done. Watching the directory
// keeps working when editors replace the file by rename.
func (w *AreaWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.logger.WithField("path", w.path).Info("Watching area map for changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.WithError(err).WithField("path", w.path).Error("Area map reload failed, keeping previous map")
				continue
			}
			w.logger.WithFields(map[string]interface{}{
				"path":    w.path,
				"aliases": w.Current().Len(),
			}).Info("Area map reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Area map watcher error")
		}
	}
}
