package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Material is a physically based surface description.
type Material struct {
	Name      string
	Color     [3]float64 // linear RGB, 0-1
	Roughness float64
	Metalness float64
}

// NewStandardMaterial returns the single material applied to every
// displayed surface: solid white, roughness 0.2, metalness 0.9.
func NewStandardMaterial() *Material {
	return &Material{
		Name:      "standard",
		Color:     [3]float64{1, 1, 1},
		Roughness: 0.2,
		Metalness: 0.9,
	}
}

// Geometry is a non-indexed triangle list: triangle i is made of
// Positions[3i], Positions[3i+1] and Positions[3i+2]. Normals is either nil
// or holds one normal per position.
type Geometry struct {
	Positions []r3.Vec
	Normals   []r3.Vec
}

// TriangleCount returns the number of triangles in the geometry.
func (g *Geometry) TriangleCount() int {
	if g == nil {
		return 0
	}
	return len(g.Positions) / 3
}

// HasNormals reports whether every position carries a normal.
func (g *Geometry) HasNormals() bool {
	return g != nil && len(g.Normals) > 0 && len(g.Normals) == len(g.Positions)
}

// Node is a scene-graph element. A node with Geometry is a mesh; a node
// without one is a group.
type Node struct {
	Name     string
	Position r3.Vec
	Geometry *Geometry
	Material *Material
	Children []*Node

	parent *Node
}

// NewGroup creates an empty group node holding children.
func NewGroup(name string, children ...*Node) *Node {
	n := &Node{Name: name}
	n.Add(children...)
	return n
}

// NewMesh creates a mesh node.
func NewMesh(name string, g *Geometry, m *Material) *Node {
	return &Node{Name: name, Geometry: g, Material: m}
}

// IsMesh reports whether the node carries geometry.
func (n *Node) IsMesh() bool {
	return n.Geometry != nil
}

// Parent returns the node this one was added to, or nil.
func (n *Node) Parent() *Node {
	return n.parent
}

// Add attaches children, detaching each from any previous parent.
func (n *Node) Add(children ...*Node) {
	for _, c := range children {
		if c == nil {
			continue
		}
		if c.parent != nil {
			c.parent.Remove(c)
		}
		c.parent = n
		n.Children = append(n.Children, c)
	}
}

// Remove detaches child if it belongs to n.
func (n *Node) Remove(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			if len(n.Children) == 0 {
				n.Children = nil
			}
			child.parent = nil
			return
		}
	}
}

// Clear detaches all children.
func (n *Node) Clear() {
	for _, c := range n.Children {
		c.parent = nil
	}
	n.Children = nil
}

// Traverse calls fn for n and every descendant, depth first.
func (n *Node) Traverse(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Traverse(fn)
	}
}

// WorldPosition sums the positions of n and all of its ancestors.
func (n *Node) WorldPosition() r3.Vec {
	var p r3.Vec
	for cur := n; cur != nil; cur = cur.parent {
		p = r3.Add(p, cur.Position)
	}
	return p
}

// Stats counts meshes and triangles under n.
func (n *Node) Stats() (meshes, triangles int) {
	n.Traverse(func(c *Node) {
		if c.IsMesh() {
			meshes++
			triangles += c.Geometry.TriangleCount()
		}
	})
	return meshes, triangles
}

// ApplyMaterial sets m on every mesh under n.
func (n *Node) ApplyMaterial(m *Material) {
	n.Traverse(func(c *Node) {
		if c.IsMesh() {
			c.Material = m
		}
	})
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max r3.Vec
}

// Center returns the midpoint of the box.
func (b Box) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// Size returns the box extent along each axis.
func (b Box) Size() r3.Vec {
	return r3.Sub(b.Max, b.Min)
}

// MaxDim returns the largest extent of the box.
func (b Box) MaxDim() float64 {
	s := b.Size()
	return max(s.X, s.Y, s.Z)
}

// R3 converts the box to the gonum representation.
func (b Box) R3() r3.Box {
	return r3.Box{Min: b.Min, Max: b.Max}
}

func (b *Box) extend(p r3.Vec) {
	b.Min = r3.Vec{X: min(b.Min.X, p.X), Y: min(b.Min.Y, p.Y), Z: min(b.Min.Z, p.Z)}
	b.Max = r3.Vec{X: max(b.Max.X, p.X), Y: max(b.Max.Y, p.Y), Z: max(b.Max.Z, p.Z)}
}

// Bounds computes the bounding box of every vertex under n, in the frame
// of n's parent: n's own position and those of its descendants are
// applied, n's ancestors are not. ok is false when n holds no vertices.
func Bounds(n *Node) (box Box, ok bool) {
	var walk func(c *Node, offset r3.Vec)
	walk = func(c *Node, offset r3.Vec) {
		offset = r3.Add(offset, c.Position)
		if c.IsMesh() {
			for _, p := range c.Geometry.Positions {
				w := r3.Add(p, offset)
				if !ok {
					box = Box{Min: w, Max: w}
					ok = true
					continue
				}
				box.extend(w)
			}
		}
		for _, child := range c.Children {
			walk(child, offset)
		}
	}
	walk(n, r3.Vec{})
	return box, ok
}
