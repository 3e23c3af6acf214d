// Package viewer holds the 3D viewer: it fetches and decodes the displayed
// model, frames it in a scene with a fixed lighting rig, and exports the
// last decoded object as OBJ.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cad-viewer/backend/internal/mesh"
	"github.com/cad-viewer/backend/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrNothingToExport is returned by Export before any model was decoded.
	ErrNothingToExport = errors.New("no model available for export")
	// ErrSuperseded is returned by SetModel when a newer reference replaced
	// the one being decoded.
	ErrSuperseded = errors.New("model reference superseded")
)

// Observer receives decode and export outcomes.
type Observer interface {
	ObserveDecode(format string, d time.Duration, err error)
	ObserveExport(err error)
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Viewer) { v.logger = l }
}

// WithDownloader sets where exports are delivered.
func WithDownloader(d Downloader) Option {
	return func(v *Viewer) { v.downloader = d }
}

// WithRegistry replaces the default decoder registry.
func WithRegistry(r *mesh.Registry) Option {
	return func(v *Viewer) { v.registry = r }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(v *Viewer) { v.observer = o }
}

// WithExportCallback registers fn to be told about each newly constructed
// object, in addition to the viewer's own export slot.
func WithExportCallback(fn func(*mesh.Node)) Option {
	return func(v *Viewer) { v.callbacks = append(v.callbacks, fn) }
}

// Viewer displays one model at a time.
type Viewer struct {
	fetcher    Fetcher
	registry   *mesh.Registry
	downloader Downloader
	observer   Observer
	logger     *zap.Logger
	callbacks  []func(*mesh.Node)
	exporter   mesh.OBJExporter

	// notifyMu orders callback delivery across SetModel calls.
	notifyMu sync.Mutex

	mu         sync.Mutex
	scene      *Scene
	generation uint64
	ref        string
	format     mesh.Format
	exportable *mesh.Node
}

// New creates a viewer that loads references through fetcher.
func New(fetcher Fetcher, opts ...Option) *Viewer {
	v := &Viewer{
		fetcher:  fetcher,
		registry: mesh.DefaultRegistry(),
		logger:   zap.NewNop(),
		scene:    NewScene(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With(zap.String("component", "viewer"))
	return v
}

// SetModel displays the model behind ref. An empty ref clears the scene.
// Decode errors are returned as produced by the decoder. When another
// SetModel call starts before this one finishes decoding, this result is
// discarded and ErrSuperseded is returned.
func (v *Viewer) SetModel(ctx context.Context, ref string) (*models.SceneFraming, error) {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.ref = ref
	if ref == "" {
		v.scene.Group.Clear()
		v.format = ""
		v.exportable = nil
		v.mu.Unlock()
		v.logger.Error("model URL is undefined")
		return nil, nil
	}
	format := mesh.ResolveFormat(ref)
	v.format = format
	v.mu.Unlock()

	start := time.Now()
	object, err := v.load(ctx, ref, format)
	if v.observer != nil {
		v.observer.ObserveDecode(string(format), time.Since(start), err)
	}

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		v.logger.Debug("discarding stale model",
			zap.String("ref", ref),
			zap.Uint64("generation", gen))
		return nil, ErrSuperseded
	}
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}

	object.ApplyMaterial(mesh.NewStandardMaterial())

	group := v.scene.Group
	group.Clear()
	group.Add(object)
	box := Frame(group, object, v.scene.Camera)
	v.scene.Controls.Target = v.scene.Camera.Target

	objects, triangles := object.Stats()
	framing := &models.SceneFraming{
		Name:           object.Name,
		Format:         string(format),
		Objects:        objects,
		Triangles:      triangles,
		BoundsMin:      vec(box.Min),
		BoundsMax:      vec(box.Max),
		GroupPosition:  vec(group.Position),
		CameraPosition: vec(v.scene.Camera.Position),
		CameraTarget:   vec(v.scene.Camera.Target),
	}
	v.exportable = object
	v.mu.Unlock()

	v.notify(gen, ref, object)

	if format == mesh.FormatSTL {
		v.logger.Info("STL model loaded successfully", zap.String("ref", ref))
	} else {
		v.logger.Info("OBJ model loaded successfully", zap.String("ref", ref))
	}
	return framing, nil
}

// notify runs the load callbacks outside mu, skipping them when a newer
// SetModel has started since gen was taken.
func (v *Viewer) notify(gen uint64, ref string, object *mesh.Node) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	current := gen == v.generation
	v.mu.Unlock()
	if !current {
		v.logger.Debug("skipping callbacks for replaced model", zap.String("ref", ref))
		return
	}
	for _, fn := range v.callbacks {
		fn(object)
	}
}

func (v *Viewer) load(ctx context.Context, ref string, format mesh.Format) (*mesh.Node, error) {
	data, err := v.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return v.registry.Decode(format, data)
}

// Export serializes the last decoded object as OBJ and hands it to the
// downloader as exported_model.obj.
func (v *Viewer) Export(ctx context.Context) error {
	data, err := v.ExportBytes()
	if err != nil {
		if v.observer != nil {
			v.observer.ObserveExport(err)
		}
		return err
	}

	if v.downloader != nil {
		err = v.downloader.Download(ctx, Download{
			Name:        mesh.ExportFileName,
			ContentType: mesh.ExportContentType,
			Data:        data,
		})
	}
	if v.observer != nil {
		v.observer.ObserveExport(err)
	}
	if err != nil {
		return fmt.Errorf("failed to deliver export: %w", err)
	}
	v.logger.Info("model exported", zap.String("file", mesh.ExportFileName), zap.Int("bytes", len(data)))
	return nil
}

// ExportBytes returns the OBJ text of the last decoded object.
func (v *Viewer) ExportBytes() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.exportable == nil {
		v.logger.Error("no model available for export")
		return nil, ErrNothingToExport
	}
	data, err := v.exporter.Parse(v.exportable)
	if err != nil {
		return nil, fmt.Errorf("export OBJ: %w", err)
	}
	return data, nil
}

// Ref returns the reference last passed to SetModel.
func (v *Viewer) Ref() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ref
}

// Format returns the format resolved for the current reference.
func (v *Viewer) Format() mesh.Format {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.format
}

// Exportable returns the object Export would serialize, or nil.
func (v *Viewer) Exportable() *mesh.Node {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.exportable
}

// WithScene runs fn with the scene locked against concurrent SetModel calls.
func (v *Viewer) WithScene(fn func(*Scene)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn(v.scene)
}
