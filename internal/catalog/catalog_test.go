package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/cad-viewer/backend/internal/models"
	"github.com/cad-viewer/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open("", Options{Threads: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func fileInfo(name string, size int64, at time.Time) *models.FileInfo {
	return &models.FileInfo{ID: name, Name: name, Size: size, UploadedAt: at}
}

func TestCatalog_IndexSTL(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	data := testutil.BinarySTL(testutil.BoxTriangles([3]float32{-1, 0, 0}, [3]float32{1, 2, 3}))
	info := fileInfo("part.stl", int64(len(data)), time.Now())
	require.NoError(t, c.MarkUploaded(ctx, info))

	got, err := c.Get(ctx, "part.stl")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusUploaded, got.Status)
	assert.Equal(t, "stl", got.Format)
	assert.Nil(t, got.IndexedAt)

	row, err := c.Index(ctx, info, data)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusIndexed, row.Status)

	got, err = c.Get(ctx, "part.stl")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusIndexed, got.Status)
	assert.Equal(t, 1, got.Objects)
	assert.Equal(t, 12, got.Triangles)
	assert.Equal(t, [3]float64{-1, 0, 0}, got.Min)
	assert.Equal(t, [3]float64{1, 2, 3}, got.Max)
	assert.Equal(t, int64(len(data)), got.Size)
	require.NotNil(t, got.IndexedAt)
}

func TestCatalog_IndexOBJ(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	data := []byte(testutil.TwoObjectOBJ)
	_, err := c.Index(ctx, fileInfo("assembly.obj", int64(len(data)), time.Now()), data)
	require.NoError(t, err)

	got, err := c.Get(ctx, "assembly.obj")
	require.NoError(t, err)
	assert.Equal(t, "obj", got.Format)
	assert.Equal(t, 2, got.Objects)
	assert.Equal(t, 3, got.Triangles)
}

func TestCatalog_IndexFailureIsRecorded(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	data := []byte("definitely not a mesh")
	row, err := c.Index(ctx, fileInfo("notes.txt", int64(len(data)), time.Now()), data)
	require.Error(t, err)
	require.NotNil(t, row)

	got, err := c.Get(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusError, got.Status)
	assert.NotEmpty(t, got.Error)
	// Anything that is not .stl is treated as OBJ.
	assert.Equal(t, "obj", got.Format)
}

func TestCatalog_ListAndDelete(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.MarkUploaded(ctx, fileInfo("old.stl", 1, base)))
	require.NoError(t, c.MarkUploaded(ctx, fileInfo("new.obj", 2, base.Add(time.Hour))))
	require.NoError(t, c.MarkUploaded(ctx, fileInfo("mid.stl", 3, base.Add(time.Minute))))

	all, err := c.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new.obj", all[0].Name)
	assert.Equal(t, "mid.stl", all[1].Name)
	assert.Equal(t, "old.stl", all[2].Name)

	limited, err := c.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, c.Delete(ctx, "mid.stl"))
	assert.ErrorIs(t, c.Delete(ctx, "mid.stl"), ErrNotFound)
	_, err = c.Get(ctx, "mid.stl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_SetStatus(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	require.NoError(t, c.MarkUploaded(ctx, fileInfo("part.stl", 1, time.Now())))
	require.NoError(t, c.SetStatus(ctx, "part.stl", models.ModelStatusIndexing, ""))

	got, err := c.Get(ctx, "part.stl")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusIndexing, got.Status)

	assert.ErrorIs(t, c.SetStatus(ctx, "missing.stl", models.ModelStatusError, "x"), ErrNotFound)
}

func TestCatalog_ReplacesRowOnReupload(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	data := testutil.BinarySTL(testutil.BoxTriangles([3]float32{0, 0, 0}, [3]float32{1, 1, 1}))
	info := fileInfo("part.stl", int64(len(data)), time.Now())
	_, err := c.Index(ctx, info, data)
	require.NoError(t, err)

	require.NoError(t, c.MarkUploaded(ctx, fileInfo("part.stl", 99, time.Now())))
	got, err := c.Get(ctx, "part.stl")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusUploaded, got.Status)
	assert.Equal(t, int64(99), got.Size)
	assert.Zero(t, got.Triangles)
	assert.Zero(t, got.Objects)
	assert.Equal(t, [3]float64{}, got.Max)
	assert.Nil(t, got.IndexedAt)

	require.NoError(t, c.SetStatus(ctx, "part.stl", models.ModelStatusError, "corrupt"))
	require.NoError(t, c.MarkUploaded(ctx, fileInfo("part.stl", 100, time.Now())))
	got, err = c.Get(ctx, "part.stl")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusUploaded, got.Status)
	assert.Empty(t, got.Error)
}
