package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events editors emit on save.
const reloadDelay = 150 * time.Millisecond

// Watch calls fn with the reloaded config every time the file at path
// changes, until ctx is done. Files that fail to load are logged and
// skipped; fn only sees valid configs.
//
// The parent directory is watched rather than the file itself so atomic
// saves (write temp, rename) are picked up.
func Watch(ctx context.Context, path string, logger *log.Logger, fn func(File)) error {
	if logger == nil {
		logger = log.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	debounce := time.NewTimer(reloadDelay)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			debounce.Reset(reloadDelay)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)

		case <-debounce.C:
			f, err := Load(abs)
			if err != nil {
				logger.Warn("ignoring invalid config", "path", path, "error", err)
				continue
			}
			logger.Info("config reloaded", "path", path)
			fn(f)
		}
	}
}
