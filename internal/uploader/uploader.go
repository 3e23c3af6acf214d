// Package uploader implements the upload component: a single selected
// file, a busy flag and a status message, and a multipart POST to the
// upload endpoint.
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status messages shown to the user.
const (
	MessageSelectFirst = "Please select a file first."
	MessageSuccess     = "File uploaded successfully!"
	MessageFailure     = "Upload failed. Please try again."
)

// UploadPath is the endpoint uploads are posted to.
const UploadPath = "/api/upload"

// FormField is the multipart field carrying the file.
const FormField = "file"

var (
	ErrNoFileSelected = errors.New("no file selected")
	ErrBusy           = errors.New("upload already in progress")
)

// State is the upload component's state.
type State string

const (
	StateIdle      State = "idle"
	StateReady     State = "ready"
	StateUploading State = "uploading"
)

// File is a file chosen by the user. It is never persisted locally.
type File struct {
	Name string
	Data []byte
}

// Extension returns the lowercased extension including the dot.
func (f *File) Extension() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// ReadFile loads path into a File named after its base name.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &File{Name: filepath.Base(path), Data: data}, nil
}

// Picker filters the files offered to the user. The filter is a hint:
// content is never checked against it.
type Picker struct {
	Accept string
}

// NewPicker returns a picker restricted to STL files.
func NewPicker() Picker {
	return Picker{Accept: ".stl"}
}

// Accepts reports whether name matches one of the accepted extensions.
func (p Picker) Accepts(name string) bool {
	if p.Accept == "" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range strings.Split(p.Accept, ",") {
		if strings.TrimSpace(strings.ToLower(a)) == ext {
			return true
		}
	}
	return false
}

// UploadFunc is told the original file name after a successful upload.
type UploadFunc func(ctx context.Context, name string)

// Uploader posts the selected file to the server.
type Uploader struct {
	endpoint string
	client   *http.Client
	onUpload UploadFunc
	logger   *zap.Logger

	mu      sync.Mutex
	file    *File
	busy    bool
	message string
}

// New creates an uploader for the server at baseURL. onUpload may be nil.
func New(baseURL string, onUpload UploadFunc, logger *zap.Logger) (*Uploader, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		endpoint: base.ResolveReference(&url.URL{Path: UploadPath}).String(),
		client:   &http.Client{Timeout: 5 * time.Minute},
		onUpload: onUpload,
		logger:   logger.With(zap.String("component", "uploader")),
	}, nil
}

// Choose replaces the selected file and clears the message.
func (u *Uploader) Choose(f *File) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.file = f
	u.message = ""
}

// Upload posts the selected file. On any 2xx response the upload callback
// runs once with the original file name. Failures are not classified:
// every one of them yields the same message.
func (u *Uploader) Upload(ctx context.Context) error {
	u.mu.Lock()
	if u.busy {
		u.mu.Unlock()
		return ErrBusy
	}
	if u.file == nil {
		u.message = MessageSelectFirst
		u.mu.Unlock()
		return ErrNoFileSelected
	}
	f := u.file
	u.busy = true
	u.message = ""
	u.mu.Unlock()

	err := u.post(ctx, f)

	u.mu.Lock()
	u.busy = false
	if err != nil {
		u.message = MessageFailure
	} else {
		u.message = MessageSuccess
	}
	u.mu.Unlock()

	if err != nil {
		u.logger.Error("error uploading file", zap.String("file", f.Name), zap.Error(err))
		return err
	}

	u.logger.Info("file uploaded", zap.String("file", f.Name), zap.Int("bytes", len(f.Data)))
	if u.onUpload != nil {
		u.onUpload(ctx, f.Name)
	}
	return nil
}

func (u *Uploader) post(ctx context.Context, f *File) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(FormField, f.Name)
	if err != nil {
		return err
	}
	if _, err := part.Write(f.Data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload rejected: %s", resp.Status)
	}
	return nil
}

// State returns the current state.
func (u *Uploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch {
	case u.busy:
		return StateUploading
	case u.file != nil:
		return StateReady
	default:
		return StateIdle
	}
}

// Message returns the status message, empty when there is none.
func (u *Uploader) Message() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.message
}

// Busy reports whether an upload is in flight.
func (u *Uploader) Busy() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.busy
}

// Selected returns the selected file, or nil.
func (u *Uploader) Selected() *File {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.file
}
