package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tombee/remediator/internal/log"
)

// DefaultDebounce coalesces the bursts of events editors produce when
// saving a file.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a config file when it changes.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewWatcher watches the file at path. The parent directory is watched
// so that files replaced by rename are picked up.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     absPath,
		debounce: DefaultDebounce,
		watcher:  fsw,
		logger:   log.WithComponent(logger, "config").With("path", absPath),
	}, nil
}

// Run calls onChange with each successfully reloaded configuration until
// ctx is done. Invalid files are logged and skipped; the previous
// configuration stays in effect.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", log.Error(err))

		case <-fire:
			fire = nil
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("ignoring invalid config change", log.Error(err))
				continue
			}
			w.logger.Info("config reloaded")
			onChange(cfg)
		}
	}
}
