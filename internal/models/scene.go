package models

// SceneFraming describes how a decoded model is placed in the viewer scene.
type SceneFraming struct {
	Name           string     `json:"name" msgpack:"name"`
	Format         string     `json:"format" msgpack:"format"`
	Objects        int        `json:"objects" msgpack:"objects"`
	Triangles      int        `json:"triangles" msgpack:"triangles"`
	BoundsMin      [3]float64 `json:"boundsMin" msgpack:"boundsMin"`
	BoundsMax      [3]float64 `json:"boundsMax" msgpack:"boundsMax"`
	GroupPosition  [3]float64 `json:"groupPosition" msgpack:"groupPosition"`
	CameraPosition [3]float64 `json:"cameraPosition" msgpack:"cameraPosition"`
	CameraTarget   [3]float64 `json:"cameraTarget" msgpack:"cameraTarget"`
}
