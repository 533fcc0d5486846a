package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/home-guard/internal/logger"
)

// Watch reloads the configuration file whenever it is written or replaced
// and passes every successfully validated version to fn. Invalid versions
// are logged and skipped. Watch blocks until ctx is done.
//
// The parent directory is watched instead of the file itself, so editors
// that save through rename keep triggering reloads.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	if path == "" {
		path = DefaultConfigFilename
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve settings path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}

	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close settings watcher", "error", closeErr)
		}
	}()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch settings directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != abs {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, loadErr := Load(abs)
			if loadErr != nil {
				logger.WarnKV(ctx, "Ignoring invalid settings change", "path", abs, "error", loadErr)

				continue
			}

			logger.InfoKV(ctx, "Settings reloaded", "path", abs)
			fn(cfg)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.WarnKV(ctx, "Settings watcher error", "error", watchErr)
		}
	}
}
