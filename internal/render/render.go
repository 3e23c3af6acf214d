// Package render draws a still preview of a viewer scene: flat-shaded
// triangles lit by the scene's rig, filled back to front.
package render

import (
	"io"
	"math"
	"sort"

	"github.com/cad-viewer/backend/internal/mesh"
	"github.com/cad-viewer/backend/internal/viewer"
	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/spatial/r3"
)

// Options controls the output raster.
type Options struct {
	Width      int
	Height     int
	Background [3]float64
}

// DefaultOptions returns a 512x512 preview on a dark background.
func DefaultOptions() Options {
	return Options{Width: 512, Height: 512, Background: [3]float64{0.12, 0.12, 0.14}}
}

type face struct {
	pts   [3][2]float64
	depth float64
	color [3]float64
}

// view is the camera basis used for projection.
type view struct {
	eye, right, up, forward r3.Vec
	focal, aspect, near     float64
	width, height           float64
}

func newView(cam *viewer.Camera, w, h int) view {
	forward := cam.Direction()
	right := r3.Cross(forward, cam.Up)
	if r3.Norm(right) == 0 {
		right = r3.Vec{X: 1}
	}
	right = r3.Unit(right)
	return view{
		eye:     cam.Position,
		right:   right,
		up:      r3.Cross(right, forward),
		forward: forward,
		focal:   1 / math.Tan(cam.FOV*math.Pi/360),
		aspect:  float64(w) / float64(h),
		near:    cam.Near,
		width:   float64(w),
		height:  float64(h),
	}
}

// project returns screen coordinates and view depth of p.
func (v view) project(p r3.Vec) (x, y, depth float64, ok bool) {
	d := r3.Sub(p, v.eye)
	depth = r3.Dot(d, v.forward)
	if depth <= v.near {
		return 0, 0, depth, false
	}
	ndcX := r3.Dot(d, v.right) * v.focal / (depth * v.aspect)
	ndcY := r3.Dot(d, v.up) * v.focal / depth
	x = (ndcX + 1) / 2 * v.width
	y = (1 - ndcY) / 2 * v.height
	return x, y, depth, true
}

// Render rasterizes scene. The caller must keep the scene unchanged
// while rendering, e.g. by calling it from Viewer.WithScene.
func Render(scene *viewer.Scene, opts Options) (*gg.Context, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = DefaultOptions().Width, DefaultOptions().Height
	}

	dc := gg.NewContext(opts.Width, opts.Height)
	bg := opts.Background
	dc.ClearWithColor(gg.RGB(bg[0], bg[1], bg[2]))

	v := newView(scene.Camera, opts.Width, opts.Height)
	faces := collect(scene, v)

	// Painter's order: farthest first.
	sort.SliceStable(faces, func(i, j int) bool { return faces[i].depth > faces[j].depth })

	for _, f := range faces {
		dc.SetRGB(f.color[0], f.color[1], f.color[2])
		dc.MoveTo(f.pts[0][0], f.pts[0][1])
		dc.LineTo(f.pts[1][0], f.pts[1][1])
		dc.LineTo(f.pts[2][0], f.pts[2][1])
		dc.ClosePath()
		if err := dc.Fill(); err != nil {
			return nil, err
		}
	}
	return dc, nil
}

// WritePNG renders scene and encodes it as PNG.
func WritePNG(w io.Writer, scene *viewer.Scene, opts Options) error {
	dc, err := Render(scene, opts)
	if err != nil {
		return err
	}
	defer dc.Close()
	return dc.EncodePNG(w)
}

func collect(scene *viewer.Scene, v view) []face {
	var faces []face
	scene.Group.Traverse(func(n *mesh.Node) {
		if !n.IsMesh() {
			return
		}
		offset := n.WorldPosition()
		m := n.Material
		if m == nil {
			m = mesh.NewStandardMaterial()
		}
		pos := n.Geometry.Positions
		for i := 0; i+2 < len(pos); i += 3 {
			tri := [3]r3.Vec{
				r3.Add(pos[i], offset),
				r3.Add(pos[i+1], offset),
				r3.Add(pos[i+2], offset),
			}
			var f face
			visible := true
			for k, p := range tri {
				x, y, depth, ok := v.project(p)
				if !ok {
					visible = false
					break
				}
				f.pts[k] = [2]float64{x, y}
				f.depth += depth / 3
			}
			if !visible {
				continue
			}
			f.color = shade(tri, m, scene.Lights, v.eye)
			faces = append(faces, f)
		}
	})
	return faces
}

// shade computes a flat colour for a triangle. Faces are lit on the side
// facing the camera.
func shade(tri [3]r3.Vec, m *mesh.Material, lights []viewer.Light, eye r3.Vec) [3]float64 {
	centroid := r3.Scale(1.0/3, r3.Add(r3.Add(tri[0], tri[1]), tri[2]))
	n := r3.Cross(r3.Sub(tri[1], tri[0]), r3.Sub(tri[2], tri[0]))
	if r3.Norm(n) == 0 {
		return m.Color
	}
	n = r3.Unit(n)
	if r3.Dot(n, r3.Sub(eye, centroid)) < 0 {
		n = r3.Scale(-1, n)
	}

	var light float64
	for _, l := range lights {
		switch l.Kind {
		case viewer.LightAmbient:
			light += l.Intensity
		case viewer.LightDirectional:
			dir := r3.Unit(l.Position)
			light += l.Intensity / math.Pi * math.Max(0, r3.Dot(n, dir))
		case viewer.LightSpot:
			toPoint := r3.Sub(centroid, l.Position)
			if r3.Norm(toPoint) == 0 {
				continue
			}
			toPoint = r3.Unit(toPoint)
			axis := r3.Unit(r3.Scale(-1, l.Position))
			cone := smoothstep(math.Cos(l.Angle), math.Cos(l.Angle*(1-l.Penumbra)), r3.Dot(axis, toPoint))
			light += l.Intensity / math.Pi * cone * math.Max(0, r3.Dot(n, r3.Scale(-1, toPoint)))
		}
	}

	// Metals reflect mostly the environment, which the preview does not
	// draw; darken the diffuse term to keep them from washing out.
	albedo := 1 - 0.5*m.Metalness
	var c [3]float64
	for i := range c {
		c[i] = math.Min(1, m.Color[i]*albedo*light)
	}
	return c
}

func smoothstep(edge0, edge1, x float64) float64 {
	if edge0 == edge1 {
		if x >= edge0 {
			return 1
		}
		return 0
	}
	t := math.Max(0, math.Min(1, (x-edge0)/(edge1-edge0)))
	return t * t * (3 - 2*t)
}
