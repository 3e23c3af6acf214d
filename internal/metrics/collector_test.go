package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry(), nil)

	c.RecordUpload(nil)
	c.RecordUpload(nil)
	c.RecordUpload(errors.New("disk full"))
	c.ObserveDecode("stl", 10*time.Millisecond, nil)
	c.ObserveDecode("obj", 5*time.Millisecond, errors.New("bad"))
	c.ObserveExport(nil)
	c.RecordIndexJob(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.uploadsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploadsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decodesTotal.WithLabelValues("stl", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decodesTotal.WithLabelValues("obj", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.exportsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.indexJobs.WithLabelValues("success")))
}

func TestCollector_Middleware(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry(), nil)

	e := echo.New()
	e.Use(c.Middleware())
	e.GET("/api/models/:name", func(ctx echo.Context) error {
		if ctx.Param("name") == "missing.stl" {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return ctx.String(http.StatusOK, "ok")
	})

	for _, name := range []string{"a.stl", "b.stl", "missing.stl"} {
		req := httptest.NewRequest(http.MethodGet, "/api/models/"+name, nil)
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/models/:name", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/models/:name", "404")))
}
