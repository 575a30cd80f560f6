// Package foam writes and runs OpenFOAM cases for a wind domain.
//
// A case is written in the solver frame: every coordinate is translated by the
// negated domain origin so that the floor centre sits at (0, 0, 0).
package foam

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"text/template"

	"cfdwind/internal/domain"
	"cfdwind/internal/geom"
	"cfdwind/internal/logging"
	"cfdwind/internal/mesh"
)

// ErrCaseWrite marks any filesystem failure while writing a case.
var ErrCaseWrite = errors.New("case write failed")

// CaseWriteError names the file that could not be written.
type CaseWriteError struct {
	Path string
	Err  error
}

func (e *CaseWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *CaseWriteError) Unwrap() []error { return []error{ErrCaseWrite, e.Err} }

// EndTime is the last iteration of the steady solve; results are sampled there.
const EndTime = 400

// Settings hold the case parameters that do not come from the domain.
type Settings struct {
	CellSize       float64 // background mesh cell edge, metres
	CutPlaneHeight float64 // sample plane height above the domain floor, metres
}

// DefaultSettings returns a 10 m background mesh sampled at pedestrian height.
func DefaultSettings() Settings {
	return Settings{CellSize: 10, CutPlaneHeight: 1.5}
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("foam").Funcs(template.FuncMap{
	"num":  formatNumber,
	"vec":  formatVector,
	"pt":   formatPoint,
	"file": newFileHeader,
}).ParseFS(templateFS, "templates/*.tmpl"))

// caseFiles maps case-relative paths to the template that renders them.
var caseFiles = []struct {
	path     string
	template string
	mode     os.FileMode
}{
	{"system/blockMeshDict", "blockMeshDict.tmpl", 0o644},
	{"system/snappyHexMeshDict", "snappyHexMeshDict.tmpl", 0o644},
	{"system/surfaceFeaturesDict", "surfaceFeaturesDict.tmpl", 0o644},
	{"system/decomposeParDict", "decomposeParDict.tmpl", 0o644},
	{"system/controlDict", "controlDict.tmpl", 0o644},
	{"system/fvSchemes", "fvSchemes.tmpl", 0o644},
	{"system/fvSolution", "fvSolution.tmpl", 0o644},
	{"system/meshQualityDict", "meshQualityDict.tmpl", 0o644},
	{"0/U", "U.tmpl", 0o644},
	{"0/p", "p.tmpl", 0o644},
	{"0/k", "k.tmpl", 0o644},
	{"0/epsilon", "epsilon.tmpl", 0o644},
	{"0/nut", "nut.tmpl", 0o644},
	{"Allrun", "Allrun.tmpl", 0o755},
}

// CreateCase writes a complete case for d and meshes into dir using
// DefaultSettings.
func CreateCase(d domain.Domain, meshes []mesh.Mesh, dir string, cpus int) error {
	return DefaultSettings().CreateCase(d, meshes, dir, cpus)
}

// CreateCase writes a complete case for d and meshes into dir. Arguments are
// validated before anything touches the filesystem.
func (s Settings) CreateCase(d domain.Domain, meshes []mesh.Mesh, dir string, cpus int) error {
	if cpus <= 0 {
		return fmt.Errorf("cpu count must be positive, got %d", cpus)
	}
	if s.CellSize <= 0 {
		return fmt.Errorf("cell size must be positive, got %g", s.CellSize)
	}
	if dir == "" {
		return fmt.Errorf("case directory is required")
	}

	timer := logging.StartTimer(logging.CategoryCase, "Case write")
	defer timer.Stop()

	data, err := s.caseData(d, cpus)
	if err != nil {
		return err
	}

	shift := d.Origin().Reverse()
	stl := filepath.Join(dir, "constant", "triSurface", "buildings.stl")
	if err := writeFile(stl, encodeSTL("buildings", meshes, shift), 0o644); err != nil {
		return err
	}

	for _, f := range caseFiles {
		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, f.template, data); err != nil {
			return fmt.Errorf("render %s: %w", f.path, err)
		}
		if err := writeFile(filepath.Join(dir, filepath.FromSlash(f.path)), buf.Bytes(), f.mode); err != nil {
			return err
		}
	}

	logging.Case("Case written to %s: %dx%dx%d cells, %d subdomains, inlets %v",
		dir, data.Cells[0], data.Cells[1], data.Cells[2], cpus, d.InletSides())
	return nil
}

func writeFile(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logging.CaseError("Failed to create %s: %v", filepath.Dir(path), err)
		return &CaseWriteError{Path: filepath.Dir(path), Err: err}
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		logging.CaseError("Failed to write %s: %v", path, err)
		return &CaseWriteError{Path: path, Err: err}
	}
	// WriteFile leaves the mode of an existing file alone
	if err := os.Chmod(path, mode); err != nil {
		return &CaseWriteError{Path: path, Err: err}
	}
	logging.CaseDebug("Wrote %s (%d bytes)", path, len(data))
	return nil
}

// patch is one side of the outer box with its boundary role.
type patch struct {
	Name  string
	Inlet bool
}

// refinementBox is the subdomain in searchableRotatedBox terms.
type refinementBox struct {
	Origin geom.Point
	Span   geom.Vector
	E1, E3 geom.Vector
}

type caseData struct {
	Vertices       [8]geom.Point
	Cells          [3]int
	Sides          []patch
	Box            refinementBox
	LocationInMesh geom.Point
	CPUs           int
	EndTime        int
	CutPlaneHeight float64
	Flow           geom.Vector
	K              float64
	Epsilon        float64
}

func (s Settings) caseData(d domain.Domain, cpus int) (caseData, error) {
	local := d.Translate(d.Origin().Reverse())

	inlet := make(map[domain.Side]bool)
	for _, side := range local.InletSides() {
		inlet[side] = true
	}
	sides := make([]patch, 0, len(domain.Sides))
	for _, side := range domain.Sides {
		sides = append(sides, patch{Name: side.String(), Inlet: inlet[side]})
	}

	box, err := rotatedBox(local.SubdomainCorners)
	if err != nil {
		return caseData{}, fmt.Errorf("refinement box: %w", err)
	}

	k, eps := turbulence(d.WindSpeed, 2*d.Z)
	return caseData{
		Vertices: local.Corners,
		Cells: [3]int{
			cellCount(2*d.X, s.CellSize),
			cellCount(2*d.Y, s.CellSize),
			cellCount(2*d.Z, s.CellSize),
		},
		Sides: sides,
		Box:   box,
		// near the upper (-x,-y) corner, well clear of the input footprint
		LocationInMesh: geom.Pt(-0.9*local.X+0.0123, -0.9*local.Y+0.0123, 1.8*local.Z-0.0123),
		CPUs:           cpus,
		EndTime:        EndTime,
		CutPlaneHeight: s.CutPlaneHeight,
		Flow:           geom.Bearing(d.WindDirection).Scale(-d.WindSpeed),
		K:              k,
		Epsilon:        eps,
	}, nil
}

func rotatedBox(c [8]geom.Point) (refinementBox, error) {
	along := geom.VectorTo(c[0], c[1])
	e1, err := along.Normalize()
	if err != nil {
		return refinementBox{}, err
	}
	return refinementBox{
		Origin: c[0],
		Span:   geom.Vec(along.Length(), geom.VectorTo(c[0], c[3]).Length(), c[4].Z-c[0].Z),
		E1:     e1,
		E3:     geom.UnitZ,
	}, nil
}

func cellCount(length, cell float64) int {
	return max(1, int(math.Ceil(length/cell)))
}

// turbulence returns inlet k and epsilon for 10% intensity and a mixing
// length of 7% of the domain height.
func turbulence(speed, height float64) (k, epsilon float64) {
	const (
		intensity = 0.1
		cmu       = 0.09
	)
	k = math.Max(1.5*math.Pow(intensity*speed, 2), 1e-6)
	length := math.Max(0.07*height, 1e-3)
	epsilon = math.Pow(cmu, 0.75) * math.Pow(k, 1.5) / length
	return k, epsilon
}

// fileHeader fills the FoamFile block at the top of every dictionary.
type fileHeader struct {
	Class    string
	Location string
	Object   string
}

func newFileHeader(class, location, object string) fileHeader {
	return fileHeader{Class: class, Location: location, Object: object}
}

func formatNumber(f float64) string {
	if f == 0 {
		return "0" // no negative zero in dictionaries
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatVector(v geom.Vector) string {
	return "(" + formatNumber(v.X) + " " + formatNumber(v.Y) + " " + formatNumber(v.Z) + ")"
}

func formatPoint(p geom.Point) string { return formatVector(p.Vector()) }
