package lexicon

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry whenever its lexicon file is written or
// replaced. It blocks until ctx is done. The parent directory is watched
// so editors that save via rename are picked up.
func (r *Registry) Watch(ctx context.Context) error {
	if r.cfg.Path == "" {
		return ErrNoSource
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target := filepath.Clean(r.cfg.Path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}

	slog.Info("watching lexicon file", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if _, err := r.Reload(); err != nil {
				slog.Error("lexicon reload failed, keeping previous version",
					"path", target,
					"error", err,
				)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("lexicon watcher error", "error", err)
		}
	}
}
