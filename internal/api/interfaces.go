// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import "github.com/labstack/echo/v4"

// UploadHandler handles model uploads and stored file management
type UploadHandler interface {
	HandleUpload(c echo.Context) error
	HandleUploadFile(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// ModelHandler serves stored models and views derived from them
type ModelHandler interface {
	HandleListModels(c echo.Context) error
	HandleGetModel(c echo.Context) error
	HandleGetModelInfo(c echo.Context) error
	HandleGetScene(c echo.Context) error
	HandleGetPreview(c echo.Context) error
	HandleExport(c echo.Context) error
}

// JobHandler reports index job progress
type JobHandler interface {
	HandleGetJob(c echo.Context) error
	HandleJobStream(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
