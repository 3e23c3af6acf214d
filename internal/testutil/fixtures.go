package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Triangle is a fixture triangle: a face normal and three vertices.
type Triangle struct {
	Normal   [3]float32
	Vertices [3][3]float32
}

// BoxTriangles returns the 12 triangles of an axis-aligned box spanning
// min to max.
func BoxTriangles(min, max [3]float32) []Triangle {
	x0, y0, z0 := min[0], min[1], min[2]
	x1, y1, z1 := max[0], max[1], max[2]
	quad := func(n [3]float32, a, b, c, d [3]float32) []Triangle {
		return []Triangle{
			{Normal: n, Vertices: [3][3]float32{a, b, c}},
			{Normal: n, Vertices: [3][3]float32{a, c, d}},
		}
	}
	var tris []Triangle
	tris = append(tris, quad([3]float32{0, 0, -1}, [3]float32{x0, y0, z0}, [3]float32{x0, y1, z0}, [3]float32{x1, y1, z0}, [3]float32{x1, y0, z0})...)
	tris = append(tris, quad([3]float32{0, 0, 1}, [3]float32{x0, y0, z1}, [3]float32{x1, y0, z1}, [3]float32{x1, y1, z1}, [3]float32{x0, y1, z1})...)
	tris = append(tris, quad([3]float32{0, -1, 0}, [3]float32{x0, y0, z0}, [3]float32{x1, y0, z0}, [3]float32{x1, y0, z1}, [3]float32{x0, y0, z1})...)
	tris = append(tris, quad([3]float32{0, 1, 0}, [3]float32{x0, y1, z0}, [3]float32{x0, y1, z1}, [3]float32{x1, y1, z1}, [3]float32{x1, y1, z0})...)
	tris = append(tris, quad([3]float32{-1, 0, 0}, [3]float32{x0, y0, z0}, [3]float32{x0, y0, z1}, [3]float32{x0, y1, z1}, [3]float32{x0, y1, z0})...)
	tris = append(tris, quad([3]float32{1, 0, 0}, [3]float32{x1, y0, z0}, [3]float32{x1, y1, z0}, [3]float32{x1, y1, z1}, [3]float32{x1, y0, z1})...)
	return tris
}

// BinarySTL encodes triangles as a binary STL file.
func BinarySTL(tris []Triangle) []byte {
	var buf bytes.Buffer
	header := make([]byte, 80)
	copy(header, "binary fixture")
	buf.Write(header)
	binary.Write(&buf, binary.LittleEndian, uint32(len(tris)))
	for _, t := range tris {
		writeVec(&buf, t.Normal)
		for _, v := range t.Vertices {
			writeVec(&buf, v)
		}
		binary.Write(&buf, binary.LittleEndian, uint16(0))
	}
	return buf.Bytes()
}

func writeVec(buf *bytes.Buffer, v [3]float32) {
	for _, c := range v {
		binary.Write(buf, binary.LittleEndian, math.Float32bits(c))
	}
}

// ASCIISTL encodes triangles as an ASCII STL solid called name.
func ASCIISTL(name string, tris []Triangle) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "solid %s\n", name)
	for _, t := range tris {
		fmt.Fprintf(&b, "  facet normal %g %g %g\n    outer loop\n", t.Normal[0], t.Normal[1], t.Normal[2])
		for _, v := range t.Vertices {
			fmt.Fprintf(&b, "      vertex %g %g %g\n", v[0], v[1], v[2])
		}
		b.WriteString("    endloop\n  endfacet\n")
	}
	fmt.Fprintf(&b, "endsolid %s\n", name)
	return []byte(b.String())
}

// TwoObjectOBJ is an OBJ file with two objects: a unit quad at the origin
// and a triangle offset along +X. Its bounding box spans (0,0,0)-(4,2,1).
const TwoObjectOBJ = `# fixture
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 3 0 1
v 4 0 1
v 4 2 1
vn 0 0 1
o quad
f 1//1 2//1 3//1 4//1
o tri
f 5 6 7
`
