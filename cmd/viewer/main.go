// Command viewer uploads a model to the server, frames it, and writes the
// OBJ export and an optional PNG preview.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cad-viewer/backend/internal/app"
	"github.com/cad-viewer/backend/internal/events"
	"github.com/cad-viewer/backend/internal/logging"
	"github.com/cad-viewer/backend/internal/mesh"
	"github.com/cad-viewer/backend/internal/render"
	"github.com/cad-viewer/backend/internal/uploader"
	"github.com/cad-viewer/backend/internal/viewer"
	"go.uber.org/zap"
)

type options struct {
	server   string
	file     string
	outDir   string
	preview  string
	size     int
	rotate   float64
	follow   bool
	noExport bool
	logLevel string
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "http://localhost:5000", "server base URL")
	flag.StringVar(&opts.file, "file", "", "model file to upload")
	flag.StringVar(&opts.outDir, "out", ".", "directory exports are written to")
	flag.StringVar(&opts.preview, "preview", "", "write a PNG preview to this path")
	flag.IntVar(&opts.size, "size", 512, "preview size in pixels")
	flag.Float64Var(&opts.rotate, "rotate", 0, "seconds of auto-rotation applied to the preview camera")
	flag.BoolVar(&opts.follow, "follow", false, "load every model indexed by the server")
	flag.BoolVar(&opts.noExport, "no-export", false, "skip writing "+mesh.ExportFileName)
	flag.StringVar(&opts.logLevel, "log-level", "info", "log level")
	flag.Parse()

	logger := logging.New(opts.logLevel, "console")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	if opts.file == "" && !opts.follow {
		return errors.New("nothing to do: pass -file or -follow")
	}

	fetcher, err := viewer.NewHTTPFetcher(opts.server)
	if err != nil {
		return err
	}

	var v *viewer.Viewer
	v = viewer.New(fetcher,
		viewer.WithLogger(logger),
		viewer.WithDownloader(viewer.DirDownloader{Dir: opts.outDir}),
		viewer.WithExportCallback(func(object *mesh.Node) {
			if err := emit(ctx, v, opts); err != nil {
				logger.Error("failed to write outputs", zap.String("model", object.Name), zap.Error(err))
			}
		}),
	)
	root := app.New(v, logger)

	if opts.file != "" {
		if err := upload(ctx, opts, root, logger); err != nil {
			return err
		}
	}

	if !opts.follow {
		return nil
	}
	names, err := events.Follow(ctx, opts.server)
	if err != nil {
		return err
	}
	logger.Info("following new models", zap.String("server", opts.server))
	return root.Follow(ctx, names)
}

func upload(ctx context.Context, opts options, root *app.App, logger *zap.Logger) error {
	f, err := uploader.ReadFile(opts.file)
	if err != nil {
		return err
	}
	if picker := uploader.NewPicker(); !picker.Accepts(f.Name) {
		logger.Warn("file does not match the picker filter", zap.String("file", f.Name), zap.String("accept", picker.Accept))
	}

	u, err := uploader.New(opts.server, root.OnUpload(), logger)
	if err != nil {
		return err
	}
	u.Choose(f)
	err = u.Upload(ctx)
	fmt.Println(u.Message())
	if err != nil {
		return err
	}
	if root.Framing() == nil {
		return fmt.Errorf("model %s could not be displayed", root.ModelURL())
	}
	return nil
}

// emit writes the export and preview for the model the viewer just framed.
func emit(ctx context.Context, v *viewer.Viewer, opts options) error {
	if !opts.noExport {
		if err := v.Export(ctx); err != nil {
			return err
		}
		fmt.Println("wrote", filepath.Join(opts.outDir, mesh.ExportFileName))
	}
	if opts.preview == "" {
		return nil
	}

	out, err := os.Create(opts.preview)
	if err != nil {
		return err
	}
	defer out.Close()

	v.WithScene(func(s *viewer.Scene) {
		view := *s
		cam := *s.Camera
		view.Camera = &cam
		s.Controls.Update(view.Camera, opts.rotate)
		ro := render.DefaultOptions()
		ro.Width, ro.Height = opts.size, opts.size
		err = render.WritePNG(out, &view, ro)
	})
	if err != nil {
		return err
	}
	fmt.Println("wrote", opts.preview)
	return out.Close()
}
