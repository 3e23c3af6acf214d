// handlers_models.go - Model catalog, scene framing, preview and export handlers
package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/cad-viewer/backend/internal/catalog"
	"github.com/cad-viewer/backend/internal/mesh"
	"github.com/cad-viewer/backend/internal/metrics"
	"github.com/cad-viewer/backend/internal/models"
	"github.com/cad-viewer/backend/internal/render"
	"github.com/cad-viewer/backend/internal/storage"
	"github.com/cad-viewer/backend/internal/viewer"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// MIMEApplicationMsgpack is the content type of msgpack scene payloads.
const MIMEApplicationMsgpack = "application/msgpack"

// ModelHandlerImpl implements the ModelHandler interface
type ModelHandlerImpl struct {
	store   storage.Store
	catalog Catalog
	metrics *metrics.Collector
	preview render.Options
	logger  *zap.Logger
}

// NewModelHandler creates a new model handler
func NewModelHandler(store storage.Store, cat Catalog, m *metrics.Collector, preview render.Options, logger *zap.Logger) ModelHandler {
	return &ModelHandlerImpl{
		store:   store,
		catalog: cat,
		metrics: m,
		preview: preview,
		logger:  logger,
	}
}

// HandleListModels returns catalog rows, newest first
func (h *ModelHandlerImpl) HandleListModels(c echo.Context) error {
	if h.catalog == nil {
		return NewServiceUnavailableError("model catalog")
	}

	limit := 100
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return NewBadRequestError("limit must be a positive integer", err)
		}
		limit = n
	}

	list, err := h.catalog.List(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to list models", err)
	}
	return c.JSON(http.StatusOK, list)
}

// HandleGetModel serves the stored bytes of a model
func (h *ModelHandlerImpl) HandleGetModel(c echo.Context) error {
	name := c.Param("name")
	path, err := h.store.GetFilePath(name)
	if err != nil {
		return NewNotFoundError("model", name)
	}
	return c.File(path)
}

// HandleGetModelInfo returns the catalog row of a model
func (h *ModelHandlerImpl) HandleGetModelInfo(c echo.Context) error {
	if h.catalog == nil {
		return NewServiceUnavailableError("model catalog")
	}

	name := c.Param("name")
	info, err := h.catalog.Get(c.Request().Context(), name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return NewNotFoundError("model", name)
		}
		return NewInternalError("failed to read catalog", err)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleGetScene returns the auto-framing of a model as JSON, or msgpack
// with ?format=msgpack
func (h *ModelHandlerImpl) HandleGetScene(c echo.Context) error {
	_, framing, err := h.load(c)
	if err != nil {
		return err
	}

	if c.QueryParam("format") == "msgpack" {
		data, err := msgpack.Marshal(framing)
		if err != nil {
			return NewInternalError("failed to encode scene", err)
		}
		return c.Blob(http.StatusOK, MIMEApplicationMsgpack, data)
	}
	return c.JSON(http.StatusOK, framing)
}

// HandleGetPreview renders the framed model to PNG
func (h *ModelHandlerImpl) HandleGetPreview(c echo.Context) error {
	v, _, err := h.load(c)
	if err != nil {
		return err
	}

	opts := h.preview
	if s := c.QueryParam("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 4096 {
			return NewBadRequestError("size must be between 1 and 4096", err)
		}
		opts.Width, opts.Height = n, n
	}

	var buf bytes.Buffer
	v.WithScene(func(s *viewer.Scene) {
		err = render.WritePNG(&buf, s, opts)
	})
	if err != nil {
		return NewInternalError("failed to render preview", err)
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// HandleExport streams the framed model as exported_model.obj
func (h *ModelHandlerImpl) HandleExport(c echo.Context) error {
	v, _, err := h.load(c)
	if err != nil {
		return err
	}

	data, err := v.ExportBytes()
	if h.metrics != nil {
		h.metrics.ObserveExport(err)
	}
	if err != nil {
		return NewInternalError("failed to export model", err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+mesh.ExportFileName)
	return c.Blob(http.StatusOK, mesh.ExportContentType, data)
}

// load builds a viewer over the stored model named in the path.
func (h *ModelHandlerImpl) load(c echo.Context) (*viewer.Viewer, *models.SceneFraming, error) {
	name := c.Param("name")
	if _, err := h.store.Get(name); err != nil {
		return nil, nil, NewNotFoundError("model", name)
	}

	opts := []viewer.Option{viewer.WithLogger(h.logger)}
	if h.metrics != nil {
		opts = append(opts, viewer.WithObserver(h.metrics))
	}
	v := viewer.New(storeFetcher{store: h.store}, opts...)

	framing, err := v.SetModel(c.Request().Context(), models.ModelURL(name))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, NewNotFoundError("model", name)
		}
		return nil, nil, NewUnprocessableError("failed to decode model", err)
	}
	return v, framing, nil
}
