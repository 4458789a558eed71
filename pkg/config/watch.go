package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/run-bigpig/plan-context/pkg/logging"
)

// Watch monitors path and calls onChange with the newly loaded Config each
// time the file is written. It runs until ctx is cancelled.
//
// A reload that fails (e.g. invalid YAML) is logged and onChange is not
// called, so the previous config stays in effect.
func Watch(ctx context.Context, path string, logger logging.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	logger.Info(ctx, "config: watching for changes", map[string]interface{}{"path": path})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts as a write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				logger.Error(ctx, "config: reload failed, keeping previous config", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
				continue
			}

			logger.Info(ctx, "config: reloaded", map[string]interface{}{"path": path})
			onChange(cfg)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error(ctx, "config: watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}
