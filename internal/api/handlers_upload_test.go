// handlers_upload_test.go - Tests for upload handlers
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cad-viewer/backend/internal/testutil"
	"github.com/labstack/echo/v4"
)

func newTestUploadHandler(store *testutil.MockStorage) UploadHandler {
	return NewUploadHandler(store, NewIngestor(&Dependencies{Store: store}), nil, true)
}

// multipartBody builds a form with one part. An empty fileName yields a
// plain field.
func multipartBody(t *testing.T, field, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if fileName == "" {
		if err := w.WriteField(field, string(data)); err != nil {
			t.Fatal(err)
		}
	} else {
		part, err := w.CreateFormFile(field, fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func TestUploadHandler_HandleUpload(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		fileName   string
		saveErr    error
		wantStatus int
		wantBody   string
		wantStored string
	}{
		{
			name:       "stl upload",
			field:      "file",
			fileName:   "part.stl",
			wantStatus: http.StatusOK,
			wantBody:   "File uploaded successfully",
			wantStored: "part.stl",
		},
		{
			name:       "extension is not checked",
			field:      "file",
			fileName:   "notes.txt",
			wantStatus: http.StatusOK,
			wantBody:   "File uploaded successfully",
			wantStored: "notes.txt",
		},
		{
			name:       "path components are stripped",
			field:      "file",
			fileName:   "../../etc/part.stl",
			wantStatus: http.StatusOK,
			wantBody:   "File uploaded successfully",
			wantStored: "part.stl",
		},
		{
			name:       "missing file part",
			field:      "other",
			fileName:   "part.stl",
			wantStatus: http.StatusBadRequest,
			wantBody:   "No file part",
		},
		{
			name:       "empty file name",
			field:      "file",
			fileName:   "",
			wantStatus: http.StatusBadRequest,
			wantBody:   "No selected file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage()
			store.SaveErr = tt.saveErr
			handler := newTestUploadHandler(store)

			e := echo.New()
			body, contentType := multipartBody(t, tt.field, tt.fileName, []byte("solid x\nendsolid x\n"))
			req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
			req.Header.Set(echo.HeaderContentType, contentType)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if err := handler.HandleUpload(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
			if tt.wantStored != "" {
				if _, err := store.Get(tt.wantStored); err != nil {
					t.Errorf("expected %s to be stored: %v", tt.wantStored, err)
				}
			} else if store.GetFileCount() != 0 {
				t.Errorf("expected nothing stored, got %d files", store.GetFileCount())
			}
		})
	}
}

func TestUploadHandler_HandleUploadNotMultipart(t *testing.T) {
	handler := newTestUploadHandler(testutil.NewMockStorage())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader([]byte("{}")))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := handler.HandleUpload(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest || rec.Body.String() != "No file part" {
		t.Errorf("expected 400 No file part, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestUploadHandler_HandleUploadSaveError(t *testing.T) {
	store := testutil.NewMockStorage()
	store.SaveErr = errors.New("disk full")
	handler := newTestUploadHandler(store)

	e := echo.New()
	body, contentType := multipartBody(t, "file", "part.stl", []byte("data"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	c := e.NewContext(req, httptest.NewRecorder())

	err := handler.HandleUpload(c)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", apiErr.Status)
	}
}

func TestUploadHandler_HandleUploadFile(t *testing.T) {
	tests := []struct {
		name       string
		request    uploadFileRequest
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name: "valid file upload",
			request: uploadFileRequest{
				Name: "cube.obj",
				Data: base64.StdEncoding.EncodeToString([]byte(testutil.TwoObjectOBJ)),
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "empty name",
			request: uploadFileRequest{
				Data: base64.StdEncoding.EncodeToString([]byte("content")),
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "empty data",
			request: uploadFileRequest{
				Name: "cube.obj",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "invalid base64",
			request: uploadFileRequest{
				Name: "cube.obj",
				Data: "not-valid-base64!!!",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "BAD_REQUEST",
		},
		{
			name: "hidden file name",
			request: uploadFileRequest{
				Name: ".hidden",
				Data: base64.StdEncoding.EncodeToString([]byte("content")),
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage()
			handler := newTestUploadHandler(store)

			e := echo.New()
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/files/upload", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler.HandleUploadFile(c)

			if tt.wantErr {
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Fatalf("expected APIError, got %T", err)
				}
				if apiErr.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, apiErr.Status)
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var response uploadFileResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if response.File == nil || response.File.Name != tt.request.Name {
				t.Errorf("expected file %s in response, got %+v", tt.request.Name, response.File)
			}
		})
	}
}

func TestUploadHandler_HandleGetRecentFiles(t *testing.T) {
	tests := []struct {
		name      string
		fileCount int
		wantCount int
	}{
		{name: "empty storage", fileCount: 0, wantCount: 0},
		{name: "few files", fileCount: 3, wantCount: 3},
		{name: "many files limited to 20", fileCount: 30, wantCount: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage()
			for i := 0; i < tt.fileCount; i++ {
				store.AddFile(fmt.Sprintf("part%02d.stl", i), []byte("solid"))
			}
			handler := newTestUploadHandler(store)

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/files/recent", nil)
			rec := httptest.NewRecorder()

			if err := handler.HandleGetRecentFiles(e.NewContext(req, rec)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var files []map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if len(files) != tt.wantCount {
				t.Errorf("expected %d files, got %d", tt.wantCount, len(files))
			}
		})
	}
}

func TestUploadHandler_HandleGetAndDeleteFile(t *testing.T) {
	store := testutil.NewMockStorage()
	store.AddFile("part.stl", []byte("solid"))
	handler := newTestUploadHandler(store)
	e := echo.New()

	call := func(method, id string, fn func(echo.Context) error) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(method, "/api/files/"+id, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(id)
		return rec, fn(c)
	}

	rec, err := call(http.MethodGet, "part.stl", handler.HandleGetFile)
	if err != nil || rec.Code != http.StatusOK {
		t.Fatalf("get: status %d, err %v", rec.Code, err)
	}

	if _, err := call(http.MethodGet, "missing.stl", handler.HandleGetFile); err == nil {
		t.Error("expected not found error")
	}

	rec, err = call(http.MethodDelete, "part.stl", handler.HandleDeleteFile)
	if err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d, err %v", rec.Code, err)
	}
	if store.GetFileCount() != 0 {
		t.Errorf("expected file to be deleted")
	}

	if _, err := call(http.MethodDelete, "part.stl", handler.HandleDeleteFile); err == nil {
		t.Error("expected not found error on second delete")
	}
}

func TestUploadHandler_DeleteDisabled(t *testing.T) {
	store := testutil.NewMockStorage()
	store.AddFile("part.stl", []byte("solid"))
	handler := NewUploadHandler(store, NewIngestor(&Dependencies{Store: store}), nil, false)

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/files/part.stl", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("part.stl")

	apiErr, ok := handler.HandleDeleteFile(c).(*APIError)
	if !ok || apiErr.Status != http.StatusConflict {
		t.Errorf("expected conflict, got %v", apiErr)
	}
	if store.GetFileCount() != 1 {
		t.Error("file should not be deleted")
	}
}
