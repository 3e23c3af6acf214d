// handlers_upload.go - Model upload and file management handlers
package api

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/cad-viewer/backend/internal/metrics"
	"github.com/cad-viewer/backend/internal/models"
	"github.com/cad-viewer/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

// Plain-text replies of the upload endpoint.
const (
	msgNoFilePart     = "No file part"
	msgNoSelectedFile = "No selected file"
	msgUploaded       = "File uploaded successfully"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store    storage.Store
	ingestor *Ingestor
	metrics  *metrics.Collector
	allowDel bool
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, ingestor *Ingestor, m *metrics.Collector, allowDelete bool) UploadHandler {
	return &UploadHandlerImpl{
		store:    store,
		ingestor: ingestor,
		metrics:  m,
		allowDel: allowDelete,
	}
}

func (h *UploadHandlerImpl) record(err error) {
	if h.metrics != nil {
		h.metrics.RecordUpload(err)
	}
}

// HandleUpload accepts a multipart upload in field "file" and stores it
// under its original base name, replacing any file of the same name.
func (h *UploadHandlerImpl) HandleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		// A part named "file" without a file name arrives as a plain value.
		if form, ferr := c.MultipartForm(); ferr == nil {
			if _, ok := form.Value["file"]; ok {
				return c.String(http.StatusBadRequest, msgNoSelectedFile)
			}
		}
		return c.String(http.StatusBadRequest, msgNoFilePart)
	}
	if file.Filename == "" {
		return c.String(http.StatusBadRequest, msgNoSelectedFile)
	}

	src, err := file.Open()
	if err != nil {
		h.record(err)
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, src)
	h.record(err)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return NewBadRequestError("invalid file name", err)
		}
		return NewInternalError("failed to save file", err)
	}

	if job := h.ingestor.Ingest(c.Request().Context(), info, "", 0); job != nil {
		c.Response().Header().Set("X-Index-Job", job.ID)
	}
	return c.String(http.StatusOK, msgUploaded)
}

// HandleUploadFile accepts a file as base64 JSON and saves it to storage
func (h *UploadHandlerImpl) HandleUploadFile(c echo.Context) error {
	var req uploadFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	info, err := h.store.SaveBytes(req.Name, decoded)
	h.record(err)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return NewBadRequestError("invalid file name", err)
		}
		return NewInternalError("failed to save file", err)
	}

	resp := uploadFileResponse{File: info}
	if job := h.ingestor.Ingest(c.Request().Context(), info, req.Encoding, req.OriginalSize); job != nil {
		resp.JobID = job.ID
	}
	return c.JSON(http.StatusCreated, resp)
}

// HandleGetRecentFiles returns the most recently stored files
func (h *UploadHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	files, err := h.store.List(20)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *UploadHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a file and its catalog row
func (h *UploadHandlerImpl) HandleDeleteFile(c echo.Context) error {
	if !h.allowDel {
		return NewConflictError("file deletion is disabled")
	}

	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("file", id)
	}
	h.ingestor.Forget(c.Request().Context(), id)

	return c.NoContent(http.StatusNoContent)
}

// Request/Response types

type uploadFileRequest struct {
	Name         string `json:"name"`
	Data         string `json:"data"` // Base64-encoded content
	Encoding     string `json:"encoding,omitempty"`
	OriginalSize int64  `json:"originalSize,omitempty"`
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type uploadFileResponse struct {
	File  *models.FileInfo `json:"file"`
	JobID string           `json:"jobId,omitempty"`
}
