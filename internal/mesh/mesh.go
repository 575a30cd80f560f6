// Package mesh is the n-gon surface mesh shared by the input, case-writing and
// result stages. A Mesh is immutable once built; transforms return copies.
package mesh

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"cfdwind/internal/geom"
)

var (
	// ErrBadFace is returned when a face references a vertex that does not exist
	// or has fewer than three corners.
	ErrBadFace = errors.New("invalid face")

	// ErrBadEncoding is returned for malformed flat vertex/face arrays.
	ErrBadEncoding = errors.New("invalid mesh encoding")
)

// Mesh is an ordered vertex list plus polygon faces given as vertex indices.
type Mesh struct {
	vertices []geom.Point
	faces    [][]int
	colors   []int32
}

// New validates faces against vertices and returns a Mesh that owns copies of both.
func New(vertices []geom.Point, faces [][]int) (Mesh, error) {
	for i, f := range faces {
		if len(f) < 3 {
			return Mesh{}, fmt.Errorf("face %d has %d corners: %w", i, len(f), ErrBadFace)
		}
		for _, idx := range f {
			if idx < 0 || idx >= len(vertices) {
				return Mesh{}, fmt.Errorf("face %d references vertex %d of %d: %w", i, idx, len(vertices), ErrBadFace)
			}
		}
	}
	m := Mesh{
		vertices: append([]geom.Point(nil), vertices...),
		faces:    make([][]int, len(faces)),
	}
	for i, f := range faces {
		m.faces[i] = append([]int(nil), f...)
	}
	return m, nil
}

// MustNew is New for literals in tests and fixed geometry; it panics on error.
func MustNew(vertices []geom.Point, faces [][]int) Mesh {
	m, err := New(vertices, faces)
	if err != nil {
		panic(err)
	}
	return m
}

// WithColors returns a copy of m carrying one ARGB color per vertex.
func (m Mesh) WithColors(colors []int32) (Mesh, error) {
	if len(colors) != len(m.vertices) {
		return Mesh{}, fmt.Errorf("got %d colors for %d vertices: %w", len(colors), len(m.vertices), ErrBadEncoding)
	}
	out := m
	out.colors = append([]int32(nil), colors...)
	return out, nil
}

// VertexCount returns the number of vertices.
func (m Mesh) VertexCount() int { return len(m.vertices) }

// FaceCount returns the number of faces.
func (m Mesh) FaceCount() int { return len(m.faces) }

// IsEmpty reports whether the mesh has no vertices.
func (m Mesh) IsEmpty() bool { return len(m.vertices) == 0 }

// Vertex returns vertex i.
func (m Mesh) Vertex(i int) geom.Point { return m.vertices[i] }

// Vertices returns a copy of the vertex list.
func (m Mesh) Vertices() []geom.Point { return append([]geom.Point(nil), m.vertices...) }

// Faces returns a copy of the face index lists.
func (m Mesh) Faces() [][]int {
	out := make([][]int, len(m.faces))
	for i, f := range m.faces {
		out[i] = append([]int(nil), f...)
	}
	return out
}

// Colors returns a copy of the per-vertex colors, or nil.
func (m Mesh) Colors() []int32 {
	if m.colors == nil {
		return nil
	}
	return append([]int32(nil), m.colors...)
}

// Translate returns a copy of m with every vertex moved by v.
func (m Mesh) Translate(v geom.Vector) Mesh {
	out := Mesh{
		vertices: make([]geom.Point, len(m.vertices)),
		faces:    m.faces,
		colors:   m.colors,
	}
	for i, p := range m.vertices {
		out.vertices[i] = p.Translate(v)
	}
	return out
}

// Triangles fans every face into triangles. Faces are assumed planar and convex.
func (m Mesh) Triangles() [][3]geom.Point {
	var tris [][3]geom.Point
	for _, f := range m.faces {
		for k := 1; k+1 < len(f); k++ {
			tris = append(tris, [3]geom.Point{m.vertices[f[0]], m.vertices[f[k]], m.vertices[f[k+1]]})
		}
	}
	return tris
}

// Bounds returns the axis-aligned box around all vertices of all meshes.
// ok is false when there is no vertex at all.
func Bounds(meshes ...Mesh) (box r3.Box, ok bool) {
	var xs, ys, zs []float64
	for _, m := range meshes {
		for _, p := range m.vertices {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
			zs = append(zs, p.Z)
		}
	}
	if len(xs) == 0 {
		return r3.Box{}, false
	}
	return r3.Box{
		Min: r3.Vec{X: floats.Min(xs), Y: floats.Min(ys), Z: floats.Min(zs)},
		Max: r3.Vec{X: floats.Max(xs), Y: floats.Max(ys), Z: floats.Max(zs)},
	}, true
}

// Box builds the closed six-face mesh of an axis-aligned box.
func Box(min, max geom.Point) Mesh {
	v := []geom.Point{
		geom.Pt(min.X, min.Y, min.Z), geom.Pt(max.X, min.Y, min.Z),
		geom.Pt(max.X, max.Y, min.Z), geom.Pt(min.X, max.Y, min.Z),
		geom.Pt(min.X, min.Y, max.Z), geom.Pt(max.X, min.Y, max.Z),
		geom.Pt(max.X, max.Y, max.Z), geom.Pt(min.X, max.Y, max.Z),
	}
	faces := [][]int{
		{0, 3, 2, 1}, // bottom, facing down
		{4, 5, 6, 7}, // top
		{0, 1, 5, 4},
		{1, 2, 6, 5},
		{2, 3, 7, 6},
		{3, 0, 4, 7},
	}
	return MustNew(v, faces)
}
