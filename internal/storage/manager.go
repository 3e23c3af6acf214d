package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cad-viewer/backend/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for names that are not stored.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidName is returned for names that do not reduce to a plain file name.
	ErrInvalidName = errors.New("invalid file name")
)

// Store defines the interface for model file storage. Files are keyed by
// their original base name; saving the same name again replaces the file.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	SaveBytes(name string, data []byte) (*models.FileInfo, error)
	Get(name string) (*models.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(name string) error
	GetFilePath(name string) (string, error)
	SetStatus(name string, status string)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo
}

// NewLocalStore creates a new LocalStore and registers files already
// present in uploadDir.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	s := &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// CleanName reduces an uploaded file name to its base name.
func CleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "" || base == "." || base == "/" || isHidden(base) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// UploadDir returns the directory files are stored in.
func (s *LocalStore) UploadDir() string {
	return s.uploadDir
}

// Save writes a file to the upload directory under its base name.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	tmpPath := filepath.Join(s.uploadDir, ".upload-"+uuid.New().String()+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	size, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:         clean,
		Name:       clean,
		Size:       size,
		UploadedAt: time.Now(),
		Status:     string(models.ModelStatusUploaded),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(tmpPath, filepath.Join(s.uploadDir, clean)); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("storing file: %w", err)
	}
	s.files[clean] = info

	cp := *info
	return &cp, nil
}

// SaveBytes saves an in-memory file.
func (s *LocalStore) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	return s.Save(name, bytes.NewReader(data))
}

// Get retrieves file metadata by name.
func (s *LocalStore) Get(name string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	cp := *info
	return &cp, nil
}

// ReadFile returns the stored bytes of a file.
func (s *LocalStore) ReadFile(name string) ([]byte, error) {
	path, err := s.GetFilePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// List returns the most recent files.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		cp := *info
		list = append(list, &cp)
	}

	// Sort by UploadedAt desc, then name for a stable order
	sort.Slice(list, func(i, j int) bool {
		if !list[i].UploadedAt.Equal(list[j].UploadedAt) {
			return list[i].UploadedAt.After(list[j].UploadedAt)
		}
		return list[i].Name < list[j].Name
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	path := filepath.Join(s.uploadDir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, name)
	return nil
}

// GetFilePath returns the absolute path to a file.
func (s *LocalStore) GetFilePath(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[name]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return filepath.Join(s.uploadDir, name), nil
}

// SetStatus updates the status of a stored file, if present.
func (s *LocalStore) SetStatus(name string, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.files[name]; ok {
		info.Status = status
	}
}

// Observe registers a file that appeared in the upload directory without
// going through Save. changed is false when the file is already known
// with the same size.
func (s *LocalStore) Observe(name string) (info *models.FileInfo, changed bool, err error) {
	if isHidden(name) {
		return nil, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := os.Stat(filepath.Join(s.uploadDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, false, err
	}
	if st.IsDir() {
		return nil, false, nil
	}

	if existing, ok := s.files[name]; ok && existing.Size == st.Size() {
		cp := *existing
		return &cp, false, nil
	}

	info = &models.FileInfo{
		ID:         name,
		Name:       name,
		Size:       st.Size(),
		UploadedAt: st.ModTime(),
		Status:     string(models.ModelStatusUploaded),
	}
	s.files[name] = info
	cp := *info
	return &cp, true, nil
}

// Forget drops a file that disappeared from the upload directory.
func (s *LocalStore) Forget(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[name]; !ok {
		return false
	}
	delete(s.files, name)
	return true
}

// scan registers the files already present in the upload directory.
func (s *LocalStore) scan() error {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return fmt.Errorf("scanning upload directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || isHidden(e.Name()) {
			continue
		}
		if _, _, err := s.Observe(e.Name()); err != nil {
			return err
		}
	}
	return nil
}
