package guardrail

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the patterns whenever the override file changes, until ctx is done.
// The parent directory is watched so editors that replace the file atomically are seen too.
func (c *Classifier) Watch(ctx context.Context) error {
	if c.overridePath == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(c.overridePath)); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(c.overridePath)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
					continue
				}
				if err := c.Reload(); err != nil {
					c.logger.Error(module, "Guardrail reload failed, keeping previous patterns", map[string]interface{}{
						"error": err.Error(),
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn(module, "Guardrail watcher error", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}()
	return nil
}
