package upload

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cad-viewer/backend/internal/models"
	"github.com/cad-viewer/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	mu   sync.Mutex
	seen map[string][]byte
	err  error
}

func (f *fakeIndexer) Index(_ context.Context, info *models.FileInfo, data []byte) (*models.ModelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string][]byte{}
	}
	f.seen[info.Name] = data
	if f.err != nil {
		return &models.ModelInfo{Name: info.Name, Status: models.ModelStatusError, Error: f.err.Error()}, f.err
	}
	return &models.ModelInfo{Name: info.Name, Status: models.ModelStatusIndexed, Triangles: 12}, nil
}

func TestManager_IndexJob(t *testing.T) {
	store := testutil.NewMockStorage()
	store.AddFile("part.stl", []byte("solid part"))
	idx := &fakeIndexer{}
	m := NewManager(store, idx, nil)
	defer m.Close()

	var finished []Job
	var mu sync.Mutex
	m.OnComplete(func(j Job) {
		mu.Lock()
		finished = append(finished, j)
		mu.Unlock()
	})

	job := m.StartJob("part.stl", "", 0)
	assert.NotEmpty(t, job.ID)
	m.Wait()

	got, ok := m.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, 100.0, got.Progress)
	require.NotNil(t, got.Model)
	assert.Equal(t, 12, got.Model.Triangles)
	assert.NotNil(t, got.CompletedAt)

	info, err := store.Get("part.stl")
	require.NoError(t, err)
	assert.Equal(t, string(models.ModelStatusIndexed), info.Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, finished, 1)
	assert.Equal(t, job.ID, finished[0].ID)
}

func TestManager_IndexFailure(t *testing.T) {
	store := testutil.NewMockStorage()
	store.AddFile("broken.obj", []byte("garbage"))
	m := NewManager(store, &fakeIndexer{err: errors.New("no geometry")}, nil)
	defer m.Close()

	job := m.StartJob("broken.obj", "", 0)
	m.Wait()

	got, _ := m.GetJob(job.ID)
	assert.Equal(t, StatusError, got.Status)
	assert.Contains(t, got.Error, "no geometry")

	info, _ := store.Get("broken.obj")
	assert.Equal(t, string(models.ModelStatusError), info.Status)
}

func TestManager_MissingFile(t *testing.T) {
	m := NewManager(testutil.NewMockStorage(), &fakeIndexer{}, nil)
	defer m.Close()

	job := m.StartJob("ghost.stl", "", 0)
	m.Wait()

	got, _ := m.GetJob(job.ID)
	assert.Equal(t, StatusError, got.Status)
}

func TestManager_Decompress(t *testing.T) {
	raw := []byte("solid gz\nendsolid gz\n")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()

	store := testutil.NewMockStorage()
	store.AddFile("part.stl", buf.Bytes())
	idx := &fakeIndexer{}
	m := NewManager(store, idx, nil)
	defer m.Close()

	m.StartJob("part.stl", EncodingGzip, int64(len(raw)))
	m.Wait()

	assert.Equal(t, raw, idx.seen["part.stl"])
	stored, err := store.ReadFile("part.stl")
	require.NoError(t, err)
	assert.Equal(t, raw, stored)
}

func TestManager_DecompressFailureKeepsFile(t *testing.T) {
	store := testutil.NewMockStorage()
	store.AddFile("part.stl", []byte("plain, not gzip"))
	idx := &fakeIndexer{}
	m := NewManager(store, idx, nil)
	defer m.Close()

	job := m.StartJob("part.stl", EncodingGzip, 0)
	m.Wait()

	got, _ := m.GetJob(job.ID)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, []byte("plain, not gzip"), idx.seen["part.stl"])
}

func TestManager_CleanupOldJobs(t *testing.T) {
	store := testutil.NewMockStorage()
	store.AddFile("a.stl", []byte("x"))
	m := NewManager(store, &fakeIndexer{}, nil)
	defer m.Close()

	job := m.StartJob("a.stl", "", 0)
	m.Wait()

	assert.Zero(t, m.CleanupOldJobs(time.Hour))
	_, ok := m.GetJob(job.ID)
	assert.True(t, ok)

	assert.Equal(t, 1, m.CleanupOldJobs(-time.Second))
	_, ok = m.GetJob(job.ID)
	assert.False(t, ok)
}
