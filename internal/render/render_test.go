package render

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/cad-viewer/backend/internal/testutil"
	"github.com/cad-viewer/backend/internal/viewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func loadedViewer(t *testing.T) *viewer.Viewer {
	t.Helper()
	data := testutil.BinarySTL(testutil.BoxTriangles([3]float32{0, 0, 0}, [3]float32{2, 4, 6}))
	v := viewer.New(viewer.FetcherFunc(func(context.Context, string) ([]byte, error) {
		return data, nil
	}))
	_, err := v.SetModel(context.Background(), "/api/models/box.stl")
	require.NoError(t, err)
	return v
}

func TestWritePNG(t *testing.T) {
	v := loadedViewer(t)
	opts := Options{Width: 64, Height: 48, Background: [3]float64{0, 0, 0}}

	var buf bytes.Buffer
	v.WithScene(func(s *viewer.Scene) {
		require.NoError(t, WritePNG(&buf, s, opts))
	})

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())

	// The recentered model covers the middle of the frame; the corner
	// stays background.
	cr, cg, cb, _ := img.At(32, 24).RGBA()
	assert.NotZero(t, cr+cg+cb, "centre pixel should be lit")
	kr, kg, kb, _ := img.At(0, 0).RGBA()
	assert.Zero(t, kr+kg+kb, "corner pixel should be background")
}

func TestRender_EmptyScene(t *testing.T) {
	dc, err := Render(viewer.NewScene(), Options{})
	require.NoError(t, err)
	defer dc.Close()

	assert.Equal(t, 512, dc.Width())
	assert.Equal(t, 512, dc.Height())
}

func TestRender_BehindCamera(t *testing.T) {
	v := loadedViewer(t)
	v.WithScene(func(s *viewer.Scene) {
		// Face away from the model: nothing is in front of the camera.
		s.Camera.LookAt(r3.Scale(2, s.Camera.Position))
		faces := collect(s, newView(s.Camera, 32, 32))
		assert.Empty(t, faces)
	})
}

func TestSmoothstep(t *testing.T) {
	assert.Equal(t, 0.0, smoothstep(0, 1, -1))
	assert.Equal(t, 1.0, smoothstep(0, 1, 2))
	assert.InDelta(t, 0.5, smoothstep(0, 1, 0.5), 1e-9)
	assert.Equal(t, 1.0, smoothstep(0.5, 0.5, 0.7))
}
