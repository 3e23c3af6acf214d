// handlers_jobs.go - Index job status handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cad-viewer/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

// JobHandlerImpl implements the JobHandler interface
type JobHandlerImpl struct {
	jobs          *upload.Manager
	pollInterval  time.Duration
	streamTimeout time.Duration
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs *upload.Manager) JobHandler {
	return &JobHandlerImpl{
		jobs:          jobs,
		pollInterval:  100 * time.Millisecond,
		streamTimeout: 5 * time.Minute,
	}
}

// HandleGetJob returns the current state of an index job
func (h *JobHandlerImpl) HandleGetJob(c echo.Context) error {
	if h.jobs == nil {
		return NewServiceUnavailableError("index jobs")
	}

	id := c.Param("id")
	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleJobStream streams job progress as server-sent events until the
// job finishes
func (h *JobHandlerImpl) HandleJobStream(c echo.Context) error {
	if h.jobs == nil {
		return NewServiceUnavailableError("index jobs")
	}

	id := c.Param("id")
	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	h.sendSSEData(c, job)
	if job.Done() {
		return nil
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(h.streamTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			job, ok := h.jobs.GetJob(id)
			if !ok {
				h.sendSSEError(c, "job not found")
				return nil
			}
			h.sendSSEData(c, job)
			if job.Done() {
				return nil
			}

		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func (h *JobHandlerImpl) sendSSEData(c echo.Context, data any) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *JobHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}
