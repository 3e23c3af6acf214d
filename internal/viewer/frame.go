package viewer

import (
	"github.com/cad-viewer/backend/internal/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// CameraDistanceFactor scales the largest bounding-box dimension into the
// camera's distance from the origin.
const CameraDistanceFactor = 3

// Frame recenters group on the bounding box of object and places the
// camera on +Z at CameraDistanceFactor times the largest box dimension,
// aimed at the origin. It runs once per model; later changes to the
// window or the mesh are not tracked.
func Frame(group, object *mesh.Node, cam *Camera) mesh.Box {
	box, ok := mesh.Bounds(object)
	if !ok {
		box = mesh.Box{}
	}

	center := box.Center()
	group.Position = r3.Scale(-1, center)

	cam.Position = r3.Vec{Z: box.MaxDim() * CameraDistanceFactor}
	cam.LookAt(r3.Vec{})
	return box
}

func vec(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
