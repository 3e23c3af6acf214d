package models

import "time"

// FileInfo represents metadata about an uploaded model file.
// Files are stored under their original name, so ID and Name match.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	Status     string    `json:"status"` // "uploaded", "indexing", "indexed", "error"
}
