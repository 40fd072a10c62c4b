package script

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ha1tch/sq3"
	"github.com/ha1tch/sq3/pkg/log"
)

// Watcher monitors a script directory and reapplies scripts to the
// database as their files change. Events are debounced so a burst of
// writes to one file triggers a single reapply.
type Watcher struct {
	mu sync.RWMutex

	root   string
	db     *sq3.Database
	logger *log.Logger
	loader *Loader

	fsWatcher *fsnotify.Watcher

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	debounceDelay time.Duration
	pendingEvents map[string]fsnotify.Op
	eventTimer    *time.Timer

	// Hashes of scripts already applied, keyed by path. Unchanged
	// contents are skipped on reload.
	applied map[string]string

	onApply func(s *Script, event string)
	onError func(err error)
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for batching file events.
// Default is 100ms.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithOnApply sets a callback invoked after a script is applied.
func WithOnApply(fn func(s *Script, event string)) WatcherOption {
	return func(w *Watcher) {
		w.onApply = fn
	}
}

// WithOnError sets a callback for load and apply failures.
func WithOnError(fn func(err error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher creates a watcher over root applying to db. A nil logger
// uses log.Default().
func NewWatcher(root string, db *sq3.Database, logger *log.Logger, opts ...WatcherOption) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:          root,
		db:            db,
		logger:        logger,
		loader:        NewLoader(logger),
		fsWatcher:     fsw,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		debounceDelay: 100 * time.Millisecond,
		pendingEvents: make(map[string]fsnotify.Op),
		applied:       make(map[string]string),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}

	w.logger.System().Info("script watcher started",
		"root", w.root,
	)

	go w.processEvents()

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.logger.System().Info("script watcher stopped")

	return w.fsWatcher.Close()
}

// IsRunning returns whether the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// addWatchesRecursive adds watches for a directory and all subdirectories.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && path != root {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			w.logger.System().Warn("failed to watch directory",
				"path", path,
				"error", err.Error(),
			)
			return nil
		}

		w.logger.System().Debug("watching directory",
			"path", path,
		)

		return nil
	})
}

// processEvents handles fsnotify events.
func (w *Watcher) processEvents() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			if w.eventTimer != nil {
				w.eventTimer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.System().Error("watcher error", err)
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// handleEvent accumulates a single fsnotify event with debouncing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(strings.ToLower(event.Name), ".sql") {
		// New directories need a watch of their own.
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.fsWatcher.Add(event.Name)
				w.logger.System().Debug("added watch for new directory",
					"path", event.Name,
				)
			}
		}
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Last operation wins for the same file.
	w.pendingEvents[event.Name] = event.Op

	if w.eventTimer != nil {
		w.eventTimer.Stop()
	}
	w.eventTimer = time.AfterFunc(w.debounceDelay, w.processPendingEvents)
}

// processPendingEvents drains the accumulated batch.
func (w *Watcher) processPendingEvents() {
	w.mu.Lock()
	events := w.pendingEvents
	w.pendingEvents = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	for path, op := range events {
		w.processFileEvent(path, op)
	}
}

// processFileEvent handles a single file change.
func (w *Watcher) processFileEvent(path string, op fsnotify.Op) {
	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		w.handleFileRemoved(path)
		return
	}
	if op.Has(fsnotify.Create) || op.Has(fsnotify.Write) {
		w.handleFileChanged(path)
	}
}

// handleFileChanged reapplies a new or modified script file.
func (w *Watcher) handleFileChanged(path string) {
	s, err := w.loader.loadFile(w.root, path)
	if err != nil {
		w.logger.System().Error("failed to reload script", err,
			"path", path,
		)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.RLock()
	prevHash, seen := w.applied[path]
	w.mu.RUnlock()

	eventType := "created"
	if seen {
		if prevHash == s.SourceHash {
			w.logger.System().Debug("script unchanged, skipping",
				"script", s.Name,
				"path", path,
			)
			return
		}
		eventType = "modified"
	}

	if err := Apply(w.db, s); err != nil {
		w.logger.Execution().Error("failed to apply script", err,
			"script", s.Name,
			"path", path,
		)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	w.applied[path] = s.SourceHash
	w.mu.Unlock()

	w.logger.Execution().Info("script applied",
		"script", s.Name,
		"event", eventType,
		"path", path,
	)

	if w.onApply != nil {
		w.onApply(s, eventType)
	}
}

// handleFileRemoved forgets a deleted script file. Already applied
// effects stay in the database; removal only clears the hash so a
// recreated file reapplies.
func (w *Watcher) handleFileRemoved(path string) {
	w.mu.Lock()
	_, seen := w.applied[path]
	delete(w.applied, path)
	w.mu.Unlock()

	if !seen {
		return
	}

	w.logger.System().Info("script removed",
		"path", path,
	)

	if w.onApply != nil {
		w.onApply(&Script{Path: path}, "removed")
	}
}

// MarkApplied records a script as already applied so the watcher skips
// it until its contents change. ApplyAll callers use this to seed the
// watcher after an initial load.
func (w *Watcher) MarkApplied(s *Script) {
	w.mu.Lock()
	w.applied[s.Path] = s.SourceHash
	w.mu.Unlock()
}
