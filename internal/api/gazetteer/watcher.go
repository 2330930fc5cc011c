package gazetteer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watch reloads the table whenever path is written or replaced, until ctx
// is done. The parent directory is watched so editors that save through a
// rename are picked up too.
func (g *Gazetteer) Watch(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create gazetteer watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	l := g.logger.With(slog.String("method", "Watch"), slog.String("path", absPath))

	go func() {
		defer fw.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					pending = time.After(reloadDebounce)
				}
			case <-pending:
				pending = nil
				if err := g.Reload(absPath); err != nil {
					l.WarnContext(ctx, "Gazetteer reload failed, keeping previous table", slog.Any("error", err))
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				l.WarnContext(ctx, "Gazetteer watcher error", slog.Any("error", err))
			}
		}
	}()

	l.InfoContext(ctx, "Watching gazetteer file for changes")
	return nil
}
