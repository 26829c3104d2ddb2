package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the parent directory of a config file for changes and
// invokes onChange, debounced, whenever it sees an event that plausibly
// touches the config file — including the atomic symlink swaps Kubernetes
// uses to update ConfigMap/Secret mounts (a `..data` directory pointing at
// a new timestamped snapshot).
type Watcher struct {
	configPath string
	configName string
	onChange   func() bool
	debounce   time.Duration
	log        *slog.Logger

	fsw *fsnotify.Watcher

	mu        sync.Mutex
	timer     *time.Timer
	lastFired time.Time
	pending   bool

	done chan struct{}
}

// NewWatcher constructs a Watcher for configPath with the given debounce
// window in seconds. It does not start watching; call Start.
func NewWatcher(configPath string, onChange func() bool, debounceSeconds float64, log *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		configPath: abs,
		configName: filepath.Base(abs),
		onChange:   onChange,
		debounce:   time.Duration(debounceSeconds * float64(time.Second)),
		log:        log,
	}, nil
}

// Start begins watching the config file's parent directory.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(w.configPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return err
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	go w.loop()

	w.log.Info("config watcher started", "path", w.configPath, "debounce", w.debounce)
	return nil
}

// Stop tears down the watcher and cancels any pending debounce timer.
func (w *Watcher) Stop() {
	if w.fsw == nil {
		return
	}
	close(w.done)
	w.fsw.Close()
	w.fsw = nil

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = false
	w.mu.Unlock()

	w.log.Info("config watcher stopped")
}

// IsRunning reports whether the watcher has an active fsnotify subscription.
func (w *Watcher) IsRunning() bool {
	return w.fsw != nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.isConfigEvent(event) {
				w.triggerReload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("config watcher error", "error", err)
		}
	}
}

// isConfigEvent mirrors the original's _is_config_event: a direct path
// match, a same-basename match (symlink targets), or a `..data`-style
// Kubernetes ConfigMap swap path, gated on the real config file existing.
func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	path := event.Name
	if path == w.configPath {
		return true
	}
	if filepath.Base(path) == w.configName {
		return true
	}
	if strings.Contains(path, "..data") || strings.HasPrefix(filepath.Base(path), "..") {
		return fileExists(w.configPath)
	}
	return false
}

func (w *Watcher) triggerReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	sinceLast := now.Sub(w.lastFired)
	if sinceLast < w.debounce {
		if !w.pending {
			w.pending = true
			delay := w.debounce - sinceLast
			w.timer = time.AfterFunc(delay, w.executeScheduled)
		}
		return
	}
	w.executeLocked()
}

func (w *Watcher) executeScheduled() {
	w.mu.Lock()
	w.pending = false
	w.executeLocked()
	w.mu.Unlock()
}

// executeLocked must be called with w.mu held.
func (w *Watcher) executeLocked() {
	w.lastFired = time.Now()
	w.log.Info("config file change detected, triggering reload")
	w.onChange()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
