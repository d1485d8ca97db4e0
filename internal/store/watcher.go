package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a [Store] when its state file is changed by another
// process, such as a second daemon instance or a manual edit.
//
// The parent directory is watched rather than the file itself because atomic
// saves replace the file and would drop a direct watch.
type Watcher struct {
	store    *Store
	path     string
	debounce time.Duration
	logger   *slog.Logger

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	wg        sync.WaitGroup

	timerMu sync.Mutex
	timer   *time.Timer

	stopOnce sync.Once
}

// NewWatcher creates a watcher for the file at path. It does nothing until
// [Watcher.Start] is called.
func NewWatcher(store *Store, path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		store:     store,
		path:      filepath.Clean(path),
		debounce:  DefaultDebounce,
		logger:    logger,
		fsWatcher: fsWatcher,
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. The returned error reports a directory that could
// not be watched.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.run()

	w.logger.Debug("watching state file", "path", w.path)
	return nil
}

// Stop ends watching and waits for the event loop to exit. Safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsWatcher.Close()
		w.wg.Wait()

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
	})
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	// atomic saves surface as Create or Rename on the target
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.store.Reload(ctx); err != nil {
		w.logger.Warn("failed to reload state", "path", w.path, "error", err)
	}
}
