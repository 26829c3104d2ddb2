package config

import (
	"log/slog"
	"sync/atomic"
)

// snapshot pairs a Catalog with whatever semantic index was built against
// it. Readers always load both halves together so they never observe a
// catalog and index that disagree.
type snapshot[I any] struct {
	catalog *Catalog
	index   I
}

// IndexBuilder rebuilds a semantic index from a freshly loaded catalog. The
// concrete index type lives in the semantic package; Reloader is generic
// over it so this package never imports semantic (avoiding an import
// cycle, since semantic in turn reads agent configuration).
type IndexBuilder[I any] func(*Catalog) (I, error)

// Reloader owns the single (Catalog, Index) pair the rest of the system
// reads, and coordinates hot-reloading it from disk. At most one reload
// runs at a time; a reload triggered while another is in flight is a
// no-op, relying on the next file-system event to catch up.
type Reloader[I any] struct {
	path        string
	buildIndex  IndexBuilder[I]
	log         *slog.Logger
	auditLog    *slog.Logger
	current     atomic.Pointer[snapshot[I]]
	reloading   atomic.Bool
	reloadCount atomic.Int64
	watcher     *Watcher
}

// NewReloader loads the initial catalog and index synchronously; callers
// should treat a non-nil error as fatal startup failure.
func NewReloader[I any](path string, buildIndex IndexBuilder[I], log, auditLog *slog.Logger) (*Reloader[I], error) {
	catalog, err := Load(path)
	if err != nil {
		return nil, err
	}
	index, err := buildIndex(catalog)
	if err != nil {
		return nil, err
	}

	r := &Reloader[I]{
		path:       path,
		buildIndex: buildIndex,
		log:        log,
		auditLog:   auditLog,
	}
	r.current.Store(&snapshot[I]{catalog: catalog, index: index})
	return r, nil
}

// Catalog returns the currently active Catalog.
func (r *Reloader[I]) Catalog() *Catalog {
	return r.current.Load().catalog
}

// Index returns the currently active semantic index.
func (r *Reloader[I]) Index() I {
	return r.current.Load().index
}

// ReloadCount returns the number of reloads that have succeeded so far.
func (r *Reloader[I]) ReloadCount() int64 {
	return r.reloadCount.Load()
}

// StartWatching begins watching the config file's parent directory and
// triggers Reload on every debounced change event. It is a no-op if a
// watcher is already running.
func (r *Reloader[I]) StartWatching(debounce float64) error {
	if r.watcher != nil {
		r.log.Warn("config reloader already started")
		return nil
	}
	w, err := NewWatcher(r.path, r.Reload, debounce, r.log)
	if err != nil {
		return err
	}
	r.watcher = w
	return w.Start()
}

// StopWatching stops the file watcher, if running.
func (r *Reloader[I]) StopWatching() {
	if r.watcher != nil {
		r.watcher.Stop()
		r.watcher = nil
	}
}

// IsWatching reports whether the file watcher is currently active.
func (r *Reloader[I]) IsWatching() bool {
	return r.watcher != nil && r.watcher.IsRunning()
}

// Reload performs: clear-and-reload the catalog, rebuild the semantic
// index, and atomically swap the published snapshot. Any failure aborts
// the reload, leaving the previous catalog/index in place; it is logged as
// an audit event and returns false, never an error a caller must handle.
func (r *Reloader[I]) Reload() bool {
	if !r.reloading.CompareAndSwap(false, true) {
		r.log.Info("config reload already in progress, skipping")
		return false
	}
	defer r.reloading.Store(false)
	return r.performReload()
}

func (r *Reloader[I]) performReload() bool {
	r.log.Info("reloading agent configuration", "path", r.path)
	r.auditLog.Info("config_reload_started", "config_path", r.path)

	catalog, err := Load(r.path)
	if err != nil {
		r.log.Error("failed to load new configuration", "error", err)
		r.auditLog.Error("config_reload_failed", "reason", "load_error", "error", truncate(err.Error(), 200))
		return false
	}

	index, err := r.buildIndex(catalog)
	if err != nil {
		r.log.Error("failed to rebuild semantic index", "error", err)
		r.auditLog.Error("config_reload_failed", "reason", "index_build_error", "error", truncate(err.Error(), 200))
		return false
	}

	r.current.Store(&snapshot[I]{catalog: catalog, index: index})
	count := r.reloadCount.Add(1)

	ids := make([]string, len(catalog.Agents))
	for i, a := range catalog.Agents {
		ids[i] = a.ID
	}
	r.log.Info("configuration reloaded successfully", "reload_count", count, "agent_count", len(catalog.Agents))
	r.auditLog.Info("config_reload_success", "reload_count", count, "agent_count", len(catalog.Agents), "agent_ids", ids)
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
