package mesh

import (
	"fmt"

	"cfdwind/internal/geom"
)

// Flat is the wire form of a mesh: vertices as consecutive x,y,z triples and
// faces as a run of [n, i0 .. in-1] groups. A leading count of 0 or 1 is the
// legacy shorthand for a triangle or a quad.
type Flat struct {
	Vertices []float64 `json:"vertices" yaml:"vertices"`
	Faces    []int     `json:"faces" yaml:"faces"`
	Colors   []int32   `json:"colors,omitempty" yaml:"colors,omitempty"`
	Units    string    `json:"units,omitempty" yaml:"units,omitempty"`
}

// Decode turns the flat encoding into a Mesh.
func Decode(f Flat) (Mesh, error) {
	if len(f.Vertices)%3 != 0 {
		return Mesh{}, fmt.Errorf("vertex array length %d is not a multiple of 3: %w", len(f.Vertices), ErrBadEncoding)
	}
	verts := make([]geom.Point, 0, len(f.Vertices)/3)
	for i := 0; i < len(f.Vertices); i += 3 {
		verts = append(verts, geom.Pt(f.Vertices[i], f.Vertices[i+1], f.Vertices[i+2]))
	}

	var faces [][]int
	for i := 0; i < len(f.Faces); {
		n := f.Faces[i]
		switch n {
		case 0:
			n = 3
		case 1:
			n = 4
		}
		if n < 0 || n > len(f.Faces)-i-1 {
			return Mesh{}, fmt.Errorf("face run at %d overflows face array: %w", i, ErrBadEncoding)
		}
		faces = append(faces, append([]int(nil), f.Faces[i+1:i+1+n]...))
		i += 1 + n
	}

	m, err := New(verts, faces)
	if err != nil {
		return Mesh{}, err
	}
	if len(f.Colors) > 0 {
		return m.WithColors(f.Colors)
	}
	return m, nil
}

// Encode returns the flat encoding of m.
func Encode(m Mesh) Flat {
	f := Flat{
		Vertices: make([]float64, 0, 3*len(m.vertices)),
		Units:    "m",
	}
	for _, p := range m.vertices {
		f.Vertices = append(f.Vertices, p.X, p.Y, p.Z)
	}
	for _, face := range m.faces {
		f.Faces = append(f.Faces, len(face))
		f.Faces = append(f.Faces, face...)
	}
	f.Colors = m.Colors()
	return f
}
