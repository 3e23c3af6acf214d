package mesh

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// ExportFileName and ExportContentType describe the download produced by
// the OBJ export.
const (
	ExportFileName    = "exported_model.obj"
	ExportContentType = "text/plain"
)

// OBJExporter serializes a scene graph to Wavefront OBJ text. Vertices are
// written in world space, so any group offset applied by framing is baked
// into the output.
type OBJExporter struct{}

// Parse returns the OBJ text for every mesh under root.
func (e OBJExporter) Parse(root *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the OBJ text for every mesh under root to w.
func (OBJExporter) Write(w io.Writer, root *Node) error {
	if root == nil {
		return fmt.Errorf("exporting obj: nil object")
	}
	bw := bufio.NewWriter(w)

	vertexOffset, normalOffset := 1, 1
	root.Traverse(func(n *Node) {
		if !n.IsMesh() || n.Geometry.TriangleCount() == 0 {
			return
		}
		g := n.Geometry
		offset := n.WorldPosition()

		fmt.Fprintf(bw, "o %s\n", n.Name)
		for _, p := range g.Positions {
			fmt.Fprintf(bw, "v %s %s %s\n", ff(p.X+offset.X), ff(p.Y+offset.Y), ff(p.Z+offset.Z))
		}
		normals := g.HasNormals()
		if normals {
			for _, v := range g.Normals {
				fmt.Fprintf(bw, "vn %s %s %s\n", ff(v.X), ff(v.Y), ff(v.Z))
			}
		}
		for i := 0; i < g.TriangleCount(); i++ {
			a, b, c := vertexOffset+3*i, vertexOffset+3*i+1, vertexOffset+3*i+2
			if normals {
				na, nb, nc := normalOffset+3*i, normalOffset+3*i+1, normalOffset+3*i+2
				fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n", a, na, b, nb, c, nc)
			} else {
				fmt.Fprintf(bw, "f %d %d %d\n", a, b, c)
			}
		}

		vertexOffset += len(g.Positions)
		if normals {
			normalOffset += len(g.Normals)
		}
	})
	return bw.Flush()
}

// ff formats at float32 precision, matching the source data.
func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 32)
}
