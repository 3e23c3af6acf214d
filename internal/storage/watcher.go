package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cad-viewer/backend/internal/models"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeFunc is called for files that were added or replaced in the upload
// directory by something other than Save.
type ChangeFunc func(info *models.FileInfo)

// Watcher keeps a LocalStore in sync with its upload directory.
type Watcher struct {
	store    *LocalStore
	fsnotify *fsnotify.Watcher
	onChange ChangeFunc
	logger   *zap.Logger
}

// NewWatcher starts watching the store's upload directory.
func NewWatcher(store *LocalStore, onChange ChangeFunc, logger *zap.Logger) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsWatch.Add(store.UploadDir()); err != nil {
		fsWatch.Close()
		return nil, fmt.Errorf("watching %s: %w", store.UploadDir(), err)
	}
	return &Watcher{
		store:    store,
		fsnotify: fsWatch,
		onChange: onChange,
		logger:   logger.With(zap.String("component", "watcher")),
	}, nil
}

// Run processes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsnotify.Close()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return nil
			}
			w.handle(e)

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handle(e fsnotify.Event) {
	name := filepath.Base(e.Name)
	if isHidden(name) {
		return
	}

	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, changed, err := w.store.Observe(name)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				w.logger.Warn("observe failed", zap.String("file", name), zap.Error(err))
			}
			return
		}
		if changed && w.onChange != nil {
			w.logger.Info("model file detected", zap.String("file", name), zap.Int64("size", info.Size))
			w.onChange(info)
		}

	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if w.store.Forget(name) {
			w.logger.Info("model file removed", zap.String("file", name))
		}
	}
}
