// Package metrics exposes prometheus counters for uploads, decoding,
// exports and HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the process metrics.
type Collector struct {
	uploadsTotal   *prometheus.CounterVec
	decodesTotal   *prometheus.CounterVec
	decodeDuration *prometheus.HistogramVec
	exportsTotal   *prometheus.CounterVec
	indexJobs      *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the metrics with reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.uploadsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of model uploads",
		},
		[]string{"status"},
	)

	c.decodesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_total",
			Help:      "Total number of model decodes",
		},
		[]string{"format", "status"},
	)

	c.decodeDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Model fetch and decode duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	c.exportsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Total number of OBJ exports",
		},
		[]string{"status"},
	)

	c.indexJobs = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_jobs_total",
			Help:      "Total number of finished index jobs",
		},
		[]string{"status"},
	)

	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordUpload counts an upload.
func (c *Collector) RecordUpload(err error) {
	c.uploadsTotal.WithLabelValues(status(err)).Inc()
}

// ObserveDecode records a fetch-and-decode.
func (c *Collector) ObserveDecode(format string, d time.Duration, err error) {
	c.decodesTotal.WithLabelValues(format, status(err)).Inc()
	c.decodeDuration.WithLabelValues(format).Observe(d.Seconds())
}

// ObserveExport counts an OBJ export.
func (c *Collector) ObserveExport(err error) {
	c.exportsTotal.WithLabelValues(status(err)).Inc()
}

// RecordIndexJob counts a finished index job.
func (c *Collector) RecordIndexJob(err error) {
	c.indexJobs.WithLabelValues(status(err)).Inc()
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, code int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Middleware records every request by its route pattern.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			code := ctx.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			} else if sc, ok := err.(interface{ StatusCode() int }); ok {
				code = sc.StatusCode()
			}
			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			c.RecordHTTPRequest(ctx.Request().Method, path, code, time.Since(start))
			return err
		}
	}
}
