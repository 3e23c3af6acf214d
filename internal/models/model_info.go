package models

import "time"

// ModelStatus is the indexing state of a stored model.
type ModelStatus string

const (
	ModelStatusUploaded ModelStatus = "uploaded"
	ModelStatusIndexing ModelStatus = "indexing"
	ModelStatusIndexed  ModelStatus = "indexed"
	ModelStatusError    ModelStatus = "error"
)

// ModelInfo is a catalog row describing a stored model.
type ModelInfo struct {
	Name       string      `json:"name" msgpack:"name"`
	Format     string      `json:"format" msgpack:"format"`
	Size       int64       `json:"size" msgpack:"size"`
	Objects    int         `json:"objects" msgpack:"objects"`
	Triangles  int         `json:"triangles" msgpack:"triangles"`
	Min        [3]float64  `json:"min" msgpack:"min"`
	Max        [3]float64  `json:"max" msgpack:"max"`
	Status     ModelStatus `json:"status" msgpack:"status"`
	Error      string      `json:"error,omitempty" msgpack:"error,omitempty"`
	UploadedAt time.Time   `json:"uploadedAt" msgpack:"uploadedAt"`
	IndexedAt  *time.Time  `json:"indexedAt,omitempty" msgpack:"indexedAt,omitempty"`
}

// URL returns the retrieval reference for the model.
func (m *ModelInfo) URL() string {
	return ModelURL(m.Name)
}

// ModelURL derives the retrieval reference for an uploaded file name.
func ModelURL(fileName string) string {
	return "/api/models/" + fileName
}
