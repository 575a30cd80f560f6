package result

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"cfdwind/internal/geom"
	"cfdwind/internal/mesh"
)

// ErrUnsupportedVTK is returned for VTK files this reader does not handle.
var ErrUnsupportedVTK = errors.New("unsupported VTK file")

// VTKConverter reads legacy ASCII POLYDATA and colours each vertex by the
// magnitude of the U field.
type VTKConverter struct {
	// Field is the vector array used for colouring; "U" when empty.
	Field string
}

// Convert implements Converter.
func (c VTKConverter) Convert(path string) (mesh.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mesh.Mesh{}, err
	}
	field := c.Field
	if field == "" {
		field = "U"
	}
	return ParseVTK(data, field)
}

// ParseVTK decodes a legacy VTK POLYDATA document.
func ParseVTK(data []byte, field string) (mesh.Mesh, error) {
	lines := bytes.SplitN(data, []byte("\n"), 4)
	if len(lines) < 4 || !bytes.HasPrefix(lines[0], []byte("# vtk DataFile")) {
		return mesh.Mesh{}, fmt.Errorf("%w: missing header", ErrUnsupportedVTK)
	}
	if enc := strings.TrimSpace(string(lines[2])); !strings.EqualFold(enc, "ASCII") {
		return mesh.Mesh{}, fmt.Errorf("%w: %s encoding", ErrUnsupportedVTK, enc)
	}

	p := &vtkParser{tokens: strings.Fields(string(lines[3])), field: field}
	if err := p.parse(); err != nil {
		return mesh.Mesh{}, err
	}

	m, err := mesh.New(p.points, p.polygons)
	if err != nil {
		return mesh.Mesh{}, err
	}
	mags, err := p.vertexMagnitudes()
	if err != nil {
		return mesh.Mesh{}, err
	}
	if mags == nil {
		return m, nil
	}
	return m.WithColors(Ramp(mags))
}

type vtkParser struct {
	tokens []string
	pos    int
	field  string

	points   []geom.Point
	polygons [][]int

	// values of the colour field, per point or per cell
	vectors    []float64
	onCells    bool
	attrCount  int
	attrOnCell bool
}

func (p *vtkParser) next() (string, error) {
	if p.pos >= len(p.tokens) {
		return "", fmt.Errorf("%w: unexpected end of data", ErrUnsupportedVTK)
	}
	t := p.tokens[p.pos]
	p.pos++
	return t, nil
}

func (p *vtkParser) int() (int, error) {
	t, err := p.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(t)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad count %q", ErrUnsupportedVTK, t)
	}
	return n, nil
}

// fits rejects a count of n items of per tokens each that the remaining
// tokens cannot hold, before anything is allocated for it.
func (p *vtkParser) fits(n, per int) error {
	if per > 0 && n > (len(p.tokens)-p.pos)/per {
		return fmt.Errorf("%w: count %d exceeds the remaining data", ErrUnsupportedVTK, n)
	}
	return nil
}

func (p *vtkParser) floats(n int) ([]float64, error) {
	if n > len(p.tokens)-p.pos {
		return nil, fmt.Errorf("%w: expected %d values", ErrUnsupportedVTK, n)
	}
	out := make([]float64, n)
	for i := range out {
		f, err := strconv.ParseFloat(p.tokens[p.pos+i], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad value %q", ErrUnsupportedVTK, p.tokens[p.pos+i])
		}
		out[i] = f
	}
	p.pos += n
	return out, nil
}

func (p *vtkParser) skip(n int) error {
	if n > len(p.tokens)-p.pos {
		return fmt.Errorf("%w: truncated section", ErrUnsupportedVTK)
	}
	p.pos += n
	return nil
}

func (p *vtkParser) parse() error {
	for p.pos < len(p.tokens) {
		kw, _ := p.next()
		var err error
		switch strings.ToUpper(kw) {
		case "DATASET":
			var kind string
			if kind, err = p.next(); err == nil && !strings.EqualFold(kind, "POLYDATA") {
				err = fmt.Errorf("%w: dataset %s", ErrUnsupportedVTK, kind)
			}
		case "POINTS":
			err = p.parsePoints()
		case "POLYGONS":
			err = p.parsePolygons()
		case "VERTICES", "LINES", "TRIANGLE_STRIPS":
			err = p.skipCells()
		case "POINT_DATA", "CELL_DATA":
			p.attrOnCell = strings.EqualFold(kw, "CELL_DATA")
			p.attrCount, err = p.int()
		case "FIELD":
			err = p.parseField()
		case "VECTORS", "NORMALS":
			err = p.parseVectors()
		case "SCALARS":
			err = p.parseScalars()
		case "METADATA", "INFORMATION", "NAME", "DATA":
			// metadata blocks carry no geometry; skip to the next keyword
			p.skipToKeyword()
		default:
			err = fmt.Errorf("%w: unexpected token %q", ErrUnsupportedVTK, kw)
		}
		if err != nil {
			return err
		}
	}
	if len(p.points) == 0 {
		return fmt.Errorf("%w: no points", ErrUnsupportedVTK)
	}
	return nil
}

func (p *vtkParser) parsePoints() error {
	n, err := p.int()
	if err != nil {
		return err
	}
	if _, err := p.next(); err != nil { // data type
		return err
	}
	if err := p.fits(n, 3); err != nil {
		return err
	}
	xyz, err := p.floats(3 * n)
	if err != nil {
		return err
	}
	p.points = make([]geom.Point, n)
	for i := range p.points {
		p.points[i] = geom.Pt(xyz[3*i], xyz[3*i+1], xyz[3*i+2])
	}
	return nil
}

func (p *vtkParser) parsePolygons() error {
	n, err := p.int()
	if err != nil {
		return err
	}
	size, err := p.int()
	if err != nil {
		return err
	}
	if err := p.fits(size, 1); err != nil {
		return err
	}
	if err := p.fits(n, 1); err != nil {
		return err
	}
	start := p.pos
	p.polygons = make([][]int, 0, n)
	for i := 0; i < n; i++ {
		k, err := p.int()
		if err != nil {
			return err
		}
		if err := p.fits(k, 1); err != nil {
			return err
		}
		face := make([]int, k)
		for j := range face {
			if face[j], err = p.int(); err != nil {
				return err
			}
		}
		p.polygons = append(p.polygons, face)
	}
	if p.pos-start != size {
		return fmt.Errorf("%w: POLYGONS size %d does not match %d entries", ErrUnsupportedVTK, size, p.pos-start)
	}
	return nil
}

func (p *vtkParser) skipCells() error {
	if _, err := p.int(); err != nil {
		return err
	}
	size, err := p.int()
	if err != nil {
		return err
	}
	return p.skip(size)
}

// parseField reads every array of a FIELD block, keeping the colour field.
func (p *vtkParser) parseField() error {
	if _, err := p.next(); err != nil { // field name
		return err
	}
	arrays, err := p.int()
	if err != nil {
		return err
	}
	for i := 0; i < arrays; i++ {
		name, err := p.next()
		if err != nil {
			return err
		}
		comps, err := p.int()
		if err != nil {
			return err
		}
		tuples, err := p.int()
		if err != nil {
			return err
		}
		if _, err := p.next(); err != nil { // data type
			return err
		}
		if err := p.fits(tuples, comps); err != nil {
			return err
		}
		if name != p.field || comps != 3 {
			if err := p.skip(comps * tuples); err != nil {
				return err
			}
			continue
		}
		if p.vectors, err = p.floats(3 * tuples); err != nil {
			return err
		}
		p.onCells = p.attrOnCell
	}
	return nil
}

func (p *vtkParser) parseVectors() error {
	name, err := p.next()
	if err != nil {
		return err
	}
	if _, err := p.next(); err != nil { // data type
		return err
	}
	if err := p.fits(p.attrCount, 3); err != nil {
		return err
	}
	values, err := p.floats(3 * p.attrCount)
	if err != nil {
		return err
	}
	if name == p.field {
		p.vectors = values
		p.onCells = p.attrOnCell
	}
	return nil
}

func (p *vtkParser) parseScalars() error {
	if _, err := p.next(); err != nil { // name
		return err
	}
	if _, err := p.next(); err != nil { // data type
		return err
	}
	comps := 1
	if p.pos < len(p.tokens) && !strings.EqualFold(p.tokens[p.pos], "LOOKUP_TABLE") {
		var err error
		if comps, err = p.int(); err != nil {
			return err
		}
	}
	if p.pos < len(p.tokens) && strings.EqualFold(p.tokens[p.pos], "LOOKUP_TABLE") {
		p.pos += 2
	}
	if err := p.fits(p.attrCount, comps); err != nil {
		return err
	}
	return p.skip(comps * p.attrCount)
}

var vtkKeywords = map[string]bool{
	"DATASET": true, "POINTS": true, "POLYGONS": true, "VERTICES": true, "LINES": true,
	"TRIANGLE_STRIPS": true, "POINT_DATA": true, "CELL_DATA": true, "FIELD": true,
	"VECTORS": true, "NORMALS": true, "SCALARS": true,
}

func (p *vtkParser) skipToKeyword() {
	for p.pos < len(p.tokens) && !vtkKeywords[strings.ToUpper(p.tokens[p.pos])] {
		p.pos++
	}
}

// vertexMagnitudes returns |U| per vertex, averaging adjacent cells for cell
// data. It returns nil when the file carries no colour field.
func (p *vtkParser) vertexMagnitudes() ([]float64, error) {
	if p.vectors == nil {
		return nil, nil
	}
	mag := make([]float64, len(p.vectors)/3)
	for i := range mag {
		mag[i] = math.Sqrt(p.vectors[3*i]*p.vectors[3*i] + p.vectors[3*i+1]*p.vectors[3*i+1] + p.vectors[3*i+2]*p.vectors[3*i+2])
	}

	if !p.onCells {
		if len(mag) != len(p.points) {
			return nil, fmt.Errorf("%w: %d point values for %d points", ErrUnsupportedVTK, len(mag), len(p.points))
		}
		return mag, nil
	}

	if len(mag) != len(p.polygons) {
		return nil, fmt.Errorf("%w: %d cell values for %d polygons", ErrUnsupportedVTK, len(mag), len(p.polygons))
	}
	sum := make([]float64, len(p.points))
	count := make([]int, len(p.points))
	for ci, face := range p.polygons {
		for _, vi := range face {
			sum[vi] += mag[ci]
			count[vi]++
		}
	}
	for i := range sum {
		if count[i] > 0 {
			sum[i] /= float64(count[i])
		}
	}
	return sum, nil
}
