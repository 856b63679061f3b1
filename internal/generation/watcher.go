package generation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow coalesces ingestion write bursts into one rebuild.
const DefaultDebounceWindow = 2 * time.Second

// Watcher triggers generation rebuilds when the chunk store file changes.
// Ingestion writes arrive in bursts, so triggers are debounced: the rebuild
// fires once the store has been quiet for the debounce window.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	manager   *Manager
	storePath string
	debounce  time.Duration

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// NewWatcher creates a rebuild watcher for the chunk store at storePath.
func NewWatcher(manager *Manager, storePath string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		manager:   manager,
		storePath: storePath,
		debounce:  debounce,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start watches the store directory and schedules rebuilds. Blocks until the
// context is cancelled or Stop is called. SQLite in WAL mode writes to
// sidecar files, so the whole directory is watched and events are filtered
// by base name prefix.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.storePath)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watch store directory: %w", err)
	}

	base := filepath.Base(w.storePath)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-timerCh:
			timerCh = nil
			w.rebuild(ctx)
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if !w.isStoreEvent(event, base) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerCh = timer.C
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("store watcher error", slog.String("error", err.Error()))
		}
	}
}

// isStoreEvent reports whether an event touches the store or its WAL sidecars.
func (w *Watcher) isStoreEvent(event fsnotify.Event, base string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	return name == base || name == base+"-wal" || name == base+"-shm"
}

// rebuild runs one rebuild attempt. Failures are logged and retried on the
// next trigger; the previous generation keeps serving throughout.
func (w *Watcher) rebuild(ctx context.Context) {
	slog.Debug("store changed, rebuilding generation",
		slog.String("path", w.storePath))

	if err := w.manager.Rebuild(ctx); err != nil {
		slog.Warn("triggered rebuild failed, will retry on next change",
			slog.String("error", err.Error()))
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	return w.fsWatcher.Close()
}
