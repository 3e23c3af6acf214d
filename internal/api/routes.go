// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/cad-viewer/backend/internal/events"
	"github.com/cad-viewer/backend/internal/metrics"
	"github.com/cad-viewer/backend/internal/render"
	"github.com/cad-viewer/backend/internal/storage"
	"github.com/cad-viewer/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies. Everything but Store is
// optional.
type Dependencies struct {
	Store       storage.Store
	Catalog     Catalog
	Jobs        *upload.Manager
	Hub         *events.Hub
	Metrics     *metrics.Collector
	Logger      *zap.Logger
	Preview     render.Options
	AllowDelete bool
	Version     string
}

func (d *Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Upload    UploadHandler
	Models    ModelHandler
	Jobs      JobHandler
	WebSocket *WebSocketHandler
	Ingestor  *Ingestor
}

// NewHandlers creates all handler instances and subscribes the ingestor
// to finished index jobs
func NewHandlers(deps *Dependencies) *Handlers {
	ingestor := NewIngestor(deps)
	if deps.Jobs != nil {
		deps.Jobs.OnComplete(ingestor.PublishJob)
	}

	preview := deps.Preview
	if preview.Width == 0 || preview.Height == 0 {
		preview = render.DefaultOptions()
	}

	h := &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Catalog != nil, deps.Hub),
		Upload:   NewUploadHandler(deps.Store, ingestor, deps.Metrics, deps.AllowDelete),
		Models:   NewModelHandler(deps.Store, deps.Catalog, deps.Metrics, preview, deps.logger()),
		Jobs:     NewJobHandler(deps.Jobs),
		Ingestor: ingestor,
	}
	if deps.Hub != nil {
		h.WebSocket = NewWebSocketHandler(deps.Store, deps.Hub, ingestor, deps.logger())
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Model upload
	apiGroup.POST("/upload", handlers.Upload.HandleUpload)

	// Stored files
	apiGroup.POST("/files/upload", handlers.Upload.HandleUploadFile)
	apiGroup.GET("/files/recent", handlers.Upload.HandleGetRecentFiles)
	apiGroup.GET("/files/:id", handlers.Upload.HandleGetFile)
	apiGroup.DELETE("/files/:id", handlers.Upload.HandleDeleteFile)

	// Models
	apiGroup.GET("/models", handlers.Models.HandleListModels)
	apiGroup.GET("/models/:name", handlers.Models.HandleGetModel)
	apiGroup.GET("/models/:name/info", handlers.Models.HandleGetModelInfo)
	apiGroup.GET("/models/:name/scene", handlers.Models.HandleGetScene)
	apiGroup.GET("/models/:name/preview", handlers.Models.HandleGetPreview)
	apiGroup.GET("/models/:name/export", handlers.Models.HandleExport)

	// Index jobs
	apiGroup.GET("/jobs/:id", handlers.Jobs.HandleGetJob)
	apiGroup.GET("/jobs/:id/stream", handlers.Jobs.HandleJobStream)

	// Events and chunked uploads
	if handlers.WebSocket != nil {
		e.GET(events.EventsPath, handlers.WebSocket.HandleWebSocket)
	}
}

// MiddlewareConfig selects the optional middleware
type MiddlewareConfig struct {
	RequestLogging   bool
	Timeout          time.Duration
	Compression      bool
	CompressionLevel int
	BodyLimit        string
	CORS             bool
	AllowOrigins     []string
	Metrics          *metrics.Collector
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.RequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/stream") ||
				path == "/api/health" ||
				path == "/metrics"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.Metrics != nil {
		e.Use(cfg.Metrics.Middleware())
	}

	if cfg.Timeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: cfg.Timeout,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return strings.HasSuffix(path, "/stream") ||
					strings.Contains(path, "/upload") ||
					path == events.EventsPath ||
					c.Request().Header.Get("Accept") == "text/event-stream"
			},
			ErrorMessage: "Request timeout",
		}))
	}

	if cfg.Compression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return c.Request().Header.Get("Accept") == "text/event-stream" ||
					c.Request().URL.Path == events.EventsPath
			},
		}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.CORS {
		origins := cfg.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			ExposeHeaders: []string{echo.HeaderContentDisposition, "X-Index-Job"},
		}))
	}
}

// SplitOrigins parses a comma separated origin list
func SplitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
