package foam

import (
	"bytes"
	"fmt"

	"cfdwind/internal/geom"
	"cfdwind/internal/mesh"
)

// encodeSTL renders meshes as one ASCII STL solid, each vertex moved by shift.
func encodeSTL(name string, meshes []mesh.Mesh, shift geom.Vector) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "solid %s\n", name)
	for _, m := range meshes {
		for _, tri := range m.Triangles() {
			a, b, c := tri[0].Translate(shift), tri[1].Translate(shift), tri[2].Translate(shift)
			n, err := geom.VectorTo(a, b).Cross(geom.VectorTo(a, c)).Normalize()
			if err != nil {
				n = geom.Vector{}
			}
			fmt.Fprintf(&buf, "  facet normal %s %s %s\n", formatNumber(n.X), formatNumber(n.Y), formatNumber(n.Z))
			buf.WriteString("    outer loop\n")
			for _, p := range []geom.Point{a, b, c} {
				fmt.Fprintf(&buf, "      vertex %s %s %s\n", formatNumber(p.X), formatNumber(p.Y), formatNumber(p.Z))
			}
			buf.WriteString("    endloop\n  endfacet\n")
		}
	}
	fmt.Fprintf(&buf, "endsolid %s\n", name)
	return buf.Bytes()
}
