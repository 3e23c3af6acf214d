package upload

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cad-viewer/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status represents the index job status.
type Status string

const (
	StatusPending       Status = "pending"
	StatusDecompressing Status = "decompressing"
	StatusIndexing      Status = "indexing"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// EncodingGzip marks a stored file that still needs to be gunzipped.
const EncodingGzip = "gzip"

// Job is an async index job for one stored model.
type Job struct {
	ID           string            `json:"id"`
	FileName     string            `json:"fileName"`
	Encoding     string            `json:"encoding,omitempty"`
	OriginalSize int64             `json:"originalSize,omitempty"`
	Status       Status            `json:"status"`
	Progress     float64           `json:"progress"`
	Stage        string            `json:"stage"`
	Model        *models.ModelInfo `json:"model,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
}

// Done reports whether the job has finished.
func (j *Job) Done() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

// Store is the part of the storage layer jobs need.
type Store interface {
	Get(name string) (*models.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	SaveBytes(name string, data []byte) (*models.FileInfo, error)
	SetStatus(name string, status string)
}

// Indexer decodes a model and records it in the catalog.
type Indexer interface {
	Index(ctx context.Context, info *models.FileInfo, data []byte) (*models.ModelInfo, error)
}

// Manager runs index jobs in the background.
type Manager struct {
	jobs    map[string]*Job
	mu      sync.RWMutex
	store   Store
	indexer Indexer
	logger  *zap.Logger

	listenersMu sync.RWMutex
	listeners   []func(Job)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a job manager.
func NewManager(store Store, indexer Indexer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:    make(map[string]*Job),
		store:   store,
		indexer: indexer,
		logger:  logger.With(zap.String("component", "upload")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnComplete registers fn to receive every finished job.
func (m *Manager) OnComplete(fn func(Job)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// StartJob begins indexing fileName in the background. encoding is
// EncodingGzip when the stored bytes are compressed; originalSize is the
// expected size after decompression, or 0 when unknown.
func (m *Manager) StartJob(fileName, encoding string, originalSize int64) Job {
	job := &Job{
		ID:           uuid.New().String(),
		FileName:     fileName,
		Encoding:     encoding,
		OriginalSize: originalSize,
		Status:       StatusPending,
		Stage:        "queued",
		CreatedAt:    time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := *job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.processJob(job)
	}()

	return snapshot
}

// GetJob returns a snapshot of the job with id.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels running jobs and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) processJob(job *Job) {
	log := m.logger.With(zap.String("job", job.ID[:8]), zap.String("file", job.FileName))
	log.Debug("starting index job")

	if job.Encoding == EncodingGzip {
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 0)
		if err := m.decompress(job); err != nil {
			// The file may still decode as-is.
			log.Warn("failed to decompress file", zap.Error(err))
		}
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 100)
	}

	m.updateJobStatus(job, StatusIndexing, "decoding model", 0)
	m.store.SetStatus(job.FileName, string(models.ModelStatusIndexing))

	info, err := m.store.Get(job.FileName)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("file not available: %v", err))
		return
	}
	data, err := m.store.ReadFile(job.FileName)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to read file: %v", err))
		return
	}

	model, err := m.indexer.Index(m.ctx, info, data)
	if model != nil {
		m.store.SetStatus(job.FileName, string(model.Status))
	}
	if err != nil {
		m.mu.Lock()
		job.Model = model
		m.mu.Unlock()
		m.store.SetStatus(job.FileName, string(models.ModelStatusError))
		m.markJobError(job, err.Error())
		return
	}

	m.mu.Lock()
	job.Model = model
	m.mu.Unlock()
	m.markJobComplete(job)
	log.Info("model indexed", zap.Int("triangles", model.Triangles))
}

// decompress replaces a gzip-encoded stored file with its contents.
func (m *Manager) decompress(job *Job) error {
	data, err := m.store.ReadFile(job.FileName)
	if err != nil {
		return err
	}
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return fmt.Errorf("not a gzip file")
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read error: %w", err)
	}
	if job.OriginalSize > 0 && int64(len(out)) != job.OriginalSize {
		return fmt.Errorf("decompressed size mismatch: got %d bytes, expected %d bytes", len(out), job.OriginalSize)
	}

	_, err = m.store.SaveBytes(job.FileName, out)
	return err
}

// updateJobStatus updates job progress. Decompression covers 0-40%,
// indexing 40-100%.
func (m *Manager) updateJobStatus(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage

	switch status {
	case StatusDecompressing:
		job.Progress = stageProgress * 0.4
	case StatusIndexing:
		job.Progress = 40 + stageProgress*0.6
	}
}

func (m *Manager) markJobComplete(job *Job) {
	m.mu.Lock()
	job.Status = StatusComplete
	job.Stage = "done"
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
	snapshot := *job
	m.mu.Unlock()

	m.notify(snapshot)
}

func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	snapshot := *job
	m.mu.Unlock()

	m.logger.Warn("index job failed", zap.String("job", job.ID[:8]), zap.String("error", errMsg))
	m.notify(snapshot)
}

func (m *Manager) notify(job Job) {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	for _, fn := range m.listeners {
		fn(job)
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Done() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}
