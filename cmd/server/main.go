package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cad-viewer/backend/internal/api"
	"github.com/cad-viewer/backend/internal/catalog"
	"github.com/cad-viewer/backend/internal/config"
	"github.com/cad-viewer/backend/internal/events"
	"github.com/cad-viewer/backend/internal/logging"
	"github.com/cad-viewer/backend/internal/metrics"
	"github.com/cad-viewer/backend/internal/render"
	"github.com/cad-viewer/backend/internal/storage"
	"github.com/cad-viewer/backend/internal/upload"
	"github.com/cad-viewer/backend/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	configPath := flag.String("config", filepath.Join(filepath.Dir(exePath), "meshview.yaml"), "path to the YAML config file")
	dev := flag.Bool("dev", false, "include error details in API responses")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Advanced.LogLevel, cfg.Advanced.LogFormat)
	defer logger.Sync()

	if err := run(cfg, *configPath, *dev, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, configPath string, dev bool, logger *zap.Logger) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	api.SetDevelopment(dev)

	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	modelCatalog, err := catalog.Open(cfg.GetCatalogPath(), catalog.Options{
		Threads:     cfg.Advanced.DuckDBThreads,
		MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
	}, logger)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer modelCatalog.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("meshview", reg, logger)

	jobs := upload.NewManager(fileStore, modelCatalog, logger)
	defer jobs.Close()

	hub := events.NewHub(logger)
	defer hub.Close()

	handlers := api.NewHandlers(&api.Dependencies{
		Store:   fileStore,
		Catalog: modelCatalog,
		Jobs:    jobs,
		Hub:     hub,
		Metrics: collector,
		Logger:  logger,
		Preview: render.Options{
			Width:  cfg.Processing.PreviewWidth,
			Height: cfg.Processing.PreviewHeight,
		},
		AllowDelete: cfg.Storage.AllowDeletion,
		Version:     Version,
	})

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e, api.MiddlewareConfig{
		RequestLogging:   cfg.Advanced.EnableRequestLogging,
		Timeout:          time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Compression:      cfg.Processing.EnableCompression,
		CompressionLevel: cfg.Processing.CompressionLevel,
		BodyLimit:        cfg.Server.BodyLimit,
		CORS:             cfg.Server.EnableCORS,
		AllowOrigins:     api.SplitOrigins(cfg.Server.AllowOrigins),
		Metrics:          collector,
	})
	api.RegisterRoutes(e, handlers)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", zap.Error(err))
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Close()
		return s.Shutdown(shutdownCtx)
	})

	if cfg.Storage.WatchUploads {
		watcher, err := storage.NewWatcher(fileStore, handlers.Ingestor.OnFileChanged(ctx), logger)
		if err != nil {
			return fmt.Errorf("watch uploads: %w", err)
		}
		g.Go(func() error { return watcher.Run(ctx) })
	}

	g.Go(func() error {
		interval := time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		retention := time.Duration(cfg.Processing.JobRetentionMinutes) * time.Minute
		for {
			select {
			case <-ticker.C:
				if n := jobs.CleanupOldJobs(retention); n > 0 {
					logger.Debug("removed finished jobs", zap.Int("count", n))
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	printBanner(cfg, configPath, embeddedMode)
	logger.Info("server started", zap.String("addr", cfg.GetServerAddr()))

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

func printBanner(cfg *config.AppConfig, configPath string, embeddedMode bool) {
	mode := "API only"
	if embeddedMode {
		mode = "Embedded page"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           CAD Model Viewer Server                         ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
