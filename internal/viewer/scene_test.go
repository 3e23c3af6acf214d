package viewer

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewScene(t *testing.T) {
	s := NewScene()

	assert.True(t, s.Empty())
	assert.Equal(t, "city", s.Environment)
	assert.Equal(t, 50.0, s.Camera.FOV)
	assert.Equal(t, r3.Vec{Z: 5}, s.Camera.Position)
	assert.True(t, s.Controls.EnableDamping)
	assert.Equal(t, 0.1, s.Controls.DampingFactor)
	assert.True(t, s.Controls.AutoRotate)
	assert.Equal(t, 1.0, s.Controls.AutoRotateSpeed)

	require.Len(t, s.Lights, 3)
	assert.Equal(t, LightAmbient, s.Lights[0].Kind)
	assert.Equal(t, 0.8, s.Lights[0].Intensity)
	assert.Equal(t, r3.Vec{X: 5, Y: 10, Z: 5}, s.Lights[1].Position)
	assert.True(t, s.Lights[1].CastShadow)
	assert.Equal(t, 0.3, s.Lights[2].Angle)
	assert.Equal(t, 1.0, s.Lights[2].Penumbra)
}

func TestOrbitControls_Update(t *testing.T) {
	cam := NewCamera()
	controls := NewOrbitControls()

	// One turn per minute: a quarter turn takes 15 seconds.
	angle := controls.Update(cam, 15)
	assert.InDelta(t, math.Pi/2, angle, 1e-9)
	assert.InDelta(t, -5, cam.Position.X, 1e-9)
	assert.InDelta(t, 0, cam.Position.Z, 1e-9)
	assert.InDelta(t, 5, r3.Norm(cam.Position), 1e-9)

	controls.AutoRotate = false
	assert.Zero(t, controls.Update(cam, 15))
}

func TestCamera_Direction(t *testing.T) {
	cam := NewCamera()
	assert.Equal(t, r3.Vec{Z: -1}, cam.Direction())

	cam.Position = r3.Vec{}
	assert.Equal(t, r3.Vec{Z: -1}, cam.Direction())
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models/part.stl" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("solid"))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(srv.URL)
	require.NoError(t, err)

	data, err := f.Fetch(context.Background(), "/api/models/part.stl")
	require.NoError(t, err)
	assert.Equal(t, "solid", string(data))

	_, err = f.Fetch(context.Background(), "/api/models/missing.stl")
	assert.Error(t, err)
}

func TestHTTPFetcher_NamesNeedingEscapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" || r.URL.Fragment != "" {
			http.Error(w, "unexpected query", http.StatusBadRequest)
			return
		}
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(srv.URL)
	require.NoError(t, err)

	for _, name := range []string{"part#2.stl", "part%20x.stl", "a?b.stl", "50%.stl", "my part.obj"} {
		t.Run(name, func(t *testing.T) {
			data, err := f.Fetch(context.Background(), "/api/models/"+name)
			require.NoError(t, err)
			assert.Equal(t, "/api/models/"+name, string(data))
		})
	}

	_, err = f.Resolve("")
	assert.Error(t, err)
}
