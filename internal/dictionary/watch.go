package dictionary

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a dictionary file into a Dictionary whenever it changes.
// A file that fails to parse is logged and the previous snapshot stays live.
type Watcher struct {
	dict     *Dictionary
	path     string
	logger   *slog.Logger
	onReload func(err error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithReloadHook is called after every reload attempt with its outcome.
func WithReloadHook(fn func(err error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a Watcher for path feeding dict.
func NewWatcher(dict *Dictionary, path string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dict:   dict,
		path:   filepath.Clean(path),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. The parent directory is watched so
// editors that replace the file by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create dictionary watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching dictionary", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.Reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("dictionary watcher error", "error", err)
		}
	}
}

// Reload parses the file and swaps it in.
func (w *Watcher) Reload() error {
	s, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("dictionary reload failed, keeping previous", "path", w.path, "error", err)
	} else {
		w.dict.Swap(s)
		w.logger.Info("dictionary reloaded", "path", w.path, "domains", len(s.Domains()))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
	return err
}
