package uploader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	field    string
	filename string
	data     []byte
}

func newServer(t *testing.T, status int, got chan<- received) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != UploadPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		f, hdr, err := r.FormFile(FormField)
		if err != nil {
			http.Error(w, "No file part", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if got != nil {
			got <- received{field: FormField, filename: hdr.Filename, data: data}
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUploader_NoFileSelected(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	u, err := New(srv.URL, nil, nil)
	require.NoError(t, err)

	err = u.Upload(context.Background())
	assert.ErrorIs(t, err, ErrNoFileSelected)
	assert.Equal(t, MessageSelectFirst, u.Message())
	assert.Equal(t, StateIdle, u.State())
	assert.Zero(t, calls.Load())
}

func TestUploader_Success(t *testing.T) {
	got := make(chan received, 1)
	srv := newServer(t, http.StatusOK, got)

	var names []string
	u, err := New(srv.URL, func(_ context.Context, name string) {
		names = append(names, name)
	}, nil)
	require.NoError(t, err)

	u.Choose(&File{Name: "part.stl", Data: []byte("solid part")})
	assert.Equal(t, StateReady, u.State())

	require.NoError(t, u.Upload(context.Background()))
	assert.Equal(t, MessageSuccess, u.Message())
	assert.False(t, u.Busy())
	assert.Equal(t, []string{"part.stl"}, names)

	r := <-got
	assert.Equal(t, "part.stl", r.filename)
	assert.Equal(t, "solid part", string(r.data))
}

func TestUploader_AnyTwoXX(t *testing.T) {
	srv := newServer(t, http.StatusCreated, nil)

	calls := 0
	u, err := New(srv.URL, func(context.Context, string) { calls++ }, nil)
	require.NoError(t, err)
	u.Choose(&File{Name: "notes.txt", Data: []byte("not a mesh")})

	require.NoError(t, u.Upload(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestUploader_Failure(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"bad request", http.StatusBadRequest},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, nil)
			calls := 0
			u, err := New(srv.URL, func(context.Context, string) { calls++ }, nil)
			require.NoError(t, err)
			u.Choose(&File{Name: "part.stl", Data: []byte("x")})

			assert.Error(t, u.Upload(context.Background()))
			assert.Equal(t, MessageFailure, u.Message())
			assert.False(t, u.Busy())
			assert.Zero(t, calls)
		})
	}

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		u, err := New(srv.URL, nil, nil)
		require.NoError(t, err)
		u.Choose(&File{Name: "part.stl", Data: []byte("x")})

		assert.Error(t, u.Upload(context.Background()))
		assert.Equal(t, MessageFailure, u.Message())
	})
}

func TestUploader_RejectsWhileBusy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	}))
	defer srv.Close()

	u, err := New(srv.URL, nil, nil)
	require.NoError(t, err)
	u.Choose(&File{Name: "part.stl", Data: []byte("x")})

	done := make(chan error, 1)
	go func() { done <- u.Upload(context.Background()) }()
	<-entered

	assert.Equal(t, StateUploading, u.State())
	assert.ErrorIs(t, u.Upload(context.Background()), ErrBusy)

	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not finish")
	}
	assert.False(t, u.Busy())
}

func TestUploader_ChooseClearsMessage(t *testing.T) {
	u, err := New("http://localhost", nil, nil)
	require.NoError(t, err)

	u.Upload(context.Background())
	require.Equal(t, MessageSelectFirst, u.Message())

	u.Choose(&File{Name: "a.stl"})
	assert.Empty(t, u.Message())
	u.Choose(&File{Name: "b.stl"})
	assert.Equal(t, "b.stl", u.Selected().Name)
}

func TestPicker_Accepts(t *testing.T) {
	p := NewPicker()

	tests := []struct {
		name string
		want bool
	}{
		{"part.stl", true},
		{"PART.STL", true},
		{"model.obj", false},
		{"noext", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Accepts(tt.name))
		})
	}

	assert.True(t, Picker{}.Accepts("anything"))
}
