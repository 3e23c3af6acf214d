package mesh

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/g3n/engine/loader/obj"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNoGeometry is returned when a decoder produced no triangles.
var ErrNoGeometry = errors.New("no geometry decoded")

// OBJDecoder decodes Wavefront OBJ text into a group with one mesh per
// object. Material libraries are ignored: the viewer replaces every
// material anyway.
type OBJDecoder struct{}

// Format implements Decoder.
func (OBJDecoder) Format() Format { return FormatOBJ }

// Decode implements Decoder.
func (OBJDecoder) Decode(data []byte) (*Node, error) {
	dec, err := obj.DecodeReader(bytes.NewReader(data), strings.NewReader(""))
	if err != nil {
		return nil, fmt.Errorf("decoding obj: %w", err)
	}

	root := NewGroup("")
	for i := range dec.Objects {
		o := &dec.Objects[i]
		g := objectGeometry(dec, o)
		if g.TriangleCount() == 0 {
			continue
		}
		root.Add(NewMesh(o.Name, g, nil))
	}
	if len(root.Children) == 0 {
		return nil, fmt.Errorf("decoding obj: %w", ErrNoGeometry)
	}
	return root, nil
}

// objectGeometry fan-triangulates the faces of o into a non-indexed
// triangle list. Normals are kept only if every face references valid ones.
func objectGeometry(dec *obj.Decoder, o *obj.Object) *Geometry {
	g := &Geometry{}
	withNormals := len(o.Faces) > 0
	for _, f := range o.Faces {
		if !validIndices(dec.Normals, f.Normals, len(f.Vertices)) {
			withNormals = false
			break
		}
	}

	for _, f := range o.Faces {
		for i := 1; i+1 < len(f.Vertices); i++ {
			var tri, nrm [3]r3.Vec
			valid := true
			for j, k := range [3]int{0, i, i + 1} {
				p, ok := objVec(dec.Vertices, f.Vertices[k])
				if !ok {
					valid = false
					break
				}
				tri[j] = p
				if withNormals {
					nrm[j], _ = objVec(dec.Normals, f.Normals[k])
				}
			}
			if !valid {
				continue
			}
			g.Positions = append(g.Positions, tri[:]...)
			if withNormals {
				g.Normals = append(g.Normals, nrm[:]...)
			}
		}
	}
	return g
}

// validIndices reports whether idx holds n indices that all resolve in arr.
// Missing components are stored by the decoder as out-of-range markers.
func validIndices(arr []float32, idx []int, n int) bool {
	if len(idx) != n {
		return false
	}
	for _, i := range idx {
		if _, ok := objVec(arr, i); !ok {
			return false
		}
	}
	return true
}

func objVec(arr []float32, idx int) (r3.Vec, bool) {
	if idx < 0 || 3*idx+2 >= len(arr) {
		return r3.Vec{}, false
	}
	return vecFrom32(arr[3*idx], arr[3*idx+1], arr[3*idx+2]), true
}
