package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cad-viewer/backend/internal/catalog"
	"github.com/cad-viewer/backend/internal/events"
	"github.com/cad-viewer/backend/internal/metrics"
	"github.com/cad-viewer/backend/internal/models"
	"github.com/cad-viewer/backend/internal/storage"
	"github.com/cad-viewer/backend/internal/upload"
	"github.com/cad-viewer/backend/internal/viewer"
	"go.uber.org/zap"
)

// Catalog is the model index used by the handlers.
type Catalog interface {
	MarkUploaded(ctx context.Context, info *models.FileInfo) error
	Get(ctx context.Context, name string) (*models.ModelInfo, error)
	List(ctx context.Context, limit int) ([]*models.ModelInfo, error)
	Delete(ctx context.Context, name string) error
}

// Ingestor hands newly stored files to the catalog, the index jobs and
// event subscribers. Uploads over HTTP, over the websocket and files
// found by the directory watcher all go through it.
type Ingestor struct {
	catalog Catalog
	jobs    *upload.Manager
	hub     *events.Hub
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewIngestor creates an ingestor from deps.
func NewIngestor(deps *Dependencies) *Ingestor {
	return &Ingestor{
		catalog: deps.Catalog,
		jobs:    deps.Jobs,
		hub:     deps.Hub,
		metrics: deps.Metrics,
		logger:  deps.logger().With(zap.String("component", "ingest")),
	}
}

// Ingest records info and starts indexing it. It returns the index job,
// or nil when no job manager is configured.
func (in *Ingestor) Ingest(ctx context.Context, info *models.FileInfo, encoding string, originalSize int64) *upload.Job {
	if in.catalog != nil {
		if err := in.catalog.MarkUploaded(ctx, info); err != nil {
			in.logger.Warn("failed to record upload", zap.String("name", info.Name), zap.Error(err))
		}
	}
	if in.hub != nil {
		in.hub.Publish(events.TypeModelUploaded, events.ModelEvent{
			Name: info.Name,
			URL:  models.ModelURL(info.Name),
			Size: info.Size,
		})
	}
	in.logger.Info("model stored", zap.String("name", info.Name), zap.Int64("size", info.Size))

	if in.jobs == nil {
		return nil
	}
	job := in.jobs.StartJob(info.Name, encoding, originalSize)
	return &job
}

// Forget drops name from the catalog and tells subscribers.
func (in *Ingestor) Forget(ctx context.Context, name string) {
	if in.catalog != nil {
		if err := in.catalog.Delete(ctx, name); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			in.logger.Warn("failed to delete catalog row", zap.String("name", name), zap.Error(err))
		}
	}
	if in.hub != nil {
		in.hub.Publish(events.TypeModelDeleted, events.ModelEvent{Name: name, URL: models.ModelURL(name)})
	}
}

// OnFileChanged adapts Ingest to the upload directory watcher.
func (in *Ingestor) OnFileChanged(ctx context.Context) storage.ChangeFunc {
	return func(info *models.FileInfo) {
		in.Ingest(ctx, info, "", 0)
	}
}

// PublishJob broadcasts the outcome of a finished index job.
func (in *Ingestor) PublishJob(job upload.Job) {
	if in.metrics != nil {
		var err error
		if job.Status == upload.StatusError {
			err = errors.New(job.Error)
		}
		in.metrics.RecordIndexJob(err)
	}
	if in.hub == nil {
		return
	}
	ev := events.ModelEvent{
		Name:  job.FileName,
		URL:   models.ModelURL(job.FileName),
		JobID: job.ID,
	}
	if job.Status == upload.StatusError {
		ev.Error = job.Error
		in.hub.Publish(events.TypeModelFailed, ev)
		return
	}
	if job.Model != nil {
		ev.Size = job.Model.Size
	}
	in.hub.Publish(events.TypeModelIndexed, ev)
}

// storeFetcher resolves model references against the local store.
type storeFetcher struct {
	store storage.Store
}

func (f storeFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	name, ok := strings.CutPrefix(ref, models.ModelURL(""))
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, ref)
	}
	return f.store.ReadFile(name)
}

var _ viewer.Fetcher = storeFetcher{}
