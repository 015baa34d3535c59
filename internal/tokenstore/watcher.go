package tokenstore

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cleat/pkg/logging"
)

// DefaultDebounceInterval is the time to wait after the last change before
// firing the callback, so a burst of writes triggers one notification.
const DefaultDebounceInterval = 500 * time.Millisecond

// DefaultPollInterval is the fallback polling interval when fsnotify is not
// available.
const DefaultPollInterval = 2 * time.Second

// WatcherConfig configures a token directory watcher.
type WatcherConfig struct {
	// Dir is the token directory to watch.
	Dir string

	// PollInterval is the fallback polling interval when fsnotify is not
	// available.
	PollInterval time.Duration

	// OnChange is called (debounced) when token files change.
	OnChange func()
}

// Watcher reports changes to a token directory: logins, refreshes, and
// logouts performed by this or any other process. It uses fsnotify with a
// polling fallback for filesystems where inotify is unreliable.
type Watcher struct {
	mu sync.Mutex

	config WatcherConfig

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	// lastModTimes tracks modification times for the polling fallback.
	lastModTimes map[string]time.Time

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the given token directory.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Watcher{
		config:       config,
		lastModTimes: make(map[string]time.Time),
	}
}

// Start begins watching. It prefers fsnotify and falls back to polling.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.running = true

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("TokenStore", "fsnotify not available, falling back to polling: %v", err)
		go w.pollForChanges()
		return nil
	}

	w.fsWatcher = watcher

	if err := w.fsWatcher.Add(w.config.Dir); err != nil {
		logging.Warn("TokenStore", "Failed to watch %s, falling back to polling: %v", w.config.Dir, err)
		w.fsWatcher.Close()
		w.fsWatcher = nil
		go w.pollForChanges()
		return nil
	}

	// Capture channels before releasing the lock so Stop cannot race the
	// event loop.
	eventsCh := w.fsWatcher.Events
	errorsCh := w.fsWatcher.Errors
	go w.processEvents(eventsCh, errorsCh)

	logging.Debug("TokenStore", "Watching %s for token changes", w.config.Dir)
	return nil
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("TokenStore", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Ext(event.Name) != ".json" {
		return
	}

	// Writes cover logins and refreshes; removes cover logouts.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
		return
	}

	logging.Debug("TokenStore", "Token file changed: %s", event.Name)
	w.notifyDebounced()
}

// notifyDebounced fires OnChange after the debounce interval, restarting the
// timer on every change so rapid bursts collapse into one notification.
func (w *Watcher) notifyDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(DefaultDebounceInterval, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

// pollForChanges is the fallback when fsnotify is unavailable.
func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.snapshotModTimes()

	for {
		select {
		case <-w.stopCh:
			return

		case <-ticker.C:
			if w.checkForChanges() {
				logging.Debug("TokenStore", "Token changes detected via polling")
				w.notifyDebounced()
			}
		}
	}
}

// snapshotModTimes records the current modification times of all token files.
func (w *Watcher) snapshotModTimes() {
	w.lastModTimes = make(map[string]time.Time)
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if info, err := entry.Info(); err == nil {
			w.lastModTimes[entry.Name()] = info.ModTime()
		}
	}
}

// checkForChanges compares the directory against the last snapshot. Any
// added, removed, or rewritten token file counts as a change.
func (w *Watcher) checkForChanges() bool {
	current := make(map[string]time.Time)
	entries, err := os.ReadDir(w.config.Dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			if info, err := entry.Info(); err == nil {
				current[entry.Name()] = info.ModTime()
			}
		}
	}

	changed := len(current) != len(w.lastModTimes)
	if !changed {
		for name, modTime := range current {
			last, ok := w.lastModTimes[name]
			if !ok || modTime.After(last) {
				changed = true
				break
			}
		}
	}

	w.lastModTimes = current
	return changed
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("TokenStore", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	return nil
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
