package viewer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Download is a file handed to the user.
type Download struct {
	Name        string
	ContentType string
	Data        []byte
}

// Downloader delivers an exported file to the user.
type Downloader interface {
	Download(ctx context.Context, d Download) error
}

// DirDownloader writes downloads into Dir, replacing files of the same name.
type DirDownloader struct {
	Dir string
}

// Download writes d to Dir/d.Name.
func (dd DirDownloader) Download(_ context.Context, d Download) error {
	if err := os.MkdirAll(dd.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	path := filepath.Join(dd.Dir, filepath.Base(d.Name))
	if err := os.WriteFile(path, d.Data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// MemoryDownloader keeps every download in memory.
type MemoryDownloader struct {
	mu        sync.Mutex
	downloads []Download
}

// Download records d.
func (m *MemoryDownloader) Download(_ context.Context, d Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads = append(m.downloads, d)
	return nil
}

// Downloads returns a copy of the recorded downloads.
func (m *MemoryDownloader) Downloads() []Download {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Download(nil), m.downloads...)
}
