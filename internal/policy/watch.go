package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the policy whenever path changes, until ctx is done. The
// parent directory is watched because editors usually replace files
// rather than write them in place. A broken edit is logged and the
// previous rules stay in force.
func (e *Engine) Watch(ctx context.Context, path string, log *zap.Logger) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	log.Info("Watching policy file", zap.String("path", path))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				log.Warn("Failed to read policy file", zap.String("path", path), zap.Error(err))
				continue
			}
			if err := e.Reload(data); err != nil {
				log.Error("Rejected policy update", zap.String("path", path), zap.Error(err))
				continue
			}
			log.Info("Policy reloaded", zap.String("path", path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Policy watcher error", zap.Error(err))
		}
	}
}
