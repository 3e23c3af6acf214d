package mesh

import (
	"bytes"
	"fmt"

	"github.com/hschendel/stl"
	"gonum.org/v1/gonum/spatial/r3"
)

// STLDecoder decodes binary or ASCII STL into a single-surface geometry.
type STLDecoder struct{}

// Format implements Decoder.
func (STLDecoder) Format() Format { return FormatSTL }

// Decode implements Decoder. The result is one mesh node carrying the
// face normals of the file as per-vertex normals.
func (d STLDecoder) Decode(data []byte) (*Node, error) {
	g, name, err := d.DecodeGeometry(data)
	if err != nil {
		return nil, err
	}
	return NewMesh(name, g, nil), nil
}

// DecodeGeometry reads the solid and returns its geometry and name.
func (STLDecoder) DecodeGeometry(data []byte) (*Geometry, string, error) {
	solid, err := stl.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding stl: %w", err)
	}

	g := &Geometry{
		Positions: make([]r3.Vec, 0, len(solid.Triangles)*3),
		Normals:   make([]r3.Vec, 0, len(solid.Triangles)*3),
	}
	for _, t := range solid.Triangles {
		n := vecFrom32(t.Normal[0], t.Normal[1], t.Normal[2])
		for _, v := range t.Vertices {
			g.Positions = append(g.Positions, vecFrom32(v[0], v[1], v[2]))
			g.Normals = append(g.Normals, n)
		}
	}
	return g, solid.Name, nil
}

func vecFrom32(x, y, z float32) r3.Vec {
	return r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}
}
