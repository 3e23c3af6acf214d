// Package app is the root container: it owns the displayed model
// reference and connects the upload component to the viewer.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/cad-viewer/backend/internal/models"
	"github.com/cad-viewer/backend/internal/uploader"
	"github.com/cad-viewer/backend/internal/viewer"
	"go.uber.org/zap"
)

// ModelSetter displays the model behind a reference.
type ModelSetter interface {
	SetModel(ctx context.Context, ref string) (*models.SceneFraming, error)
}

// App holds the displayed model reference.
type App struct {
	viewer ModelSetter
	logger *zap.Logger

	mu       sync.Mutex
	modelURL string
	framing  *models.SceneFraming
}

// New creates a root container driving v.
func New(v ModelSetter, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		viewer: v,
		logger: logger.With(zap.String("component", "app")),
	}
}

// HandleFileUpload points the viewer at the model stored as name.
func (a *App) HandleFileUpload(ctx context.Context, name string) (*models.SceneFraming, error) {
	ref := models.ModelURL(name)

	a.mu.Lock()
	a.modelURL = ref
	a.mu.Unlock()

	framing, err := a.viewer.SetModel(ctx, ref)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.modelURL == ref {
		a.framing = framing
	}
	a.mu.Unlock()
	return framing, nil
}

// OnUpload adapts HandleFileUpload to the upload component's callback.
// Viewer errors are logged; the upload itself already succeeded.
func (a *App) OnUpload() uploader.UploadFunc {
	return func(ctx context.Context, name string) {
		if _, err := a.HandleFileUpload(ctx, name); err != nil && !errors.Is(err, viewer.ErrSuperseded) {
			a.logger.Error("failed to display model", zap.String("file", name), zap.Error(err))
		}
	}
}

// Follow displays every name received on names until the channel closes
// or ctx is done.
func (a *App) Follow(ctx context.Context, names <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case name, ok := <-names:
			if !ok {
				return nil
			}
			if _, err := a.HandleFileUpload(ctx, name); err != nil {
				a.logger.Warn("failed to display model", zap.String("file", name), zap.Error(err))
			}
		}
	}
}

// ModelURL returns the displayed model reference, empty before the first
// successful upload.
func (a *App) ModelURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modelURL
}

// Framing returns the framing of the displayed model, or nil.
func (a *App) Framing() *models.SceneFraming {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.framing
}
