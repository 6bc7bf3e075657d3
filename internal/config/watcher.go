package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"face-overlay/internal/logger"
	"face-overlay/internal/models"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the settings file when it changes and pushes the runtime
// subset through the store, so a bad edit is rejected whole like any other
// mutation.
type Watcher struct {
	path     string
	store    *models.RuntimeConfigStore
	logger   logger.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func()
	applied  chan error
}

// NewWatcher watches the directory holding path; editors commonly replace
// the file instead of writing it in place.
func NewWatcher(path string, store *models.RuntimeConfigStore, log logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.NoOpLogger{}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving settings path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating settings watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		store:    store,
		logger:   log,
		watcher:  fw,
		debounce: 100 * time.Millisecond,
	}, nil
}

// SetReloadHandler is called after each reload the store accepted.
func (w *Watcher) SetReloadHandler(handler func()) {
	w.onReload = handler
}

// Run processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				pending = time.After(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("SettingsWatcher", err, nil)

		case <-pending:
			pending = nil
			err := w.reload()
			if w.applied != nil {
				w.applied <- err
			}
		}
	}
}

func (w *Watcher) reload() error {
	settings, err := Load(w.path)
	if err != nil {
		w.logger.Warning("SettingsWatcher", "settings file rejected", map[string]interface{}{
			"path":  w.path,
			"error": err.Error(),
		})
		return err
	}

	if err := w.store.Mutate(settings.ApplyTo); err != nil {
		w.logger.Warning("SettingsWatcher", "settings change rejected", map[string]interface{}{
			"path":  w.path,
			"error": err.Error(),
		})
		return err
	}

	w.logger.Info("SettingsWatcher", "settings reloaded", map[string]interface{}{
		"path": w.path,
	})
	if w.onReload != nil {
		w.onReload()
	}
	return nil
}

// Shutdown stops watching.
func (w *Watcher) Shutdown() {
	if err := w.watcher.Close(); err != nil {
		w.logger.Error("SettingsWatcher", err, nil)
	}
}
