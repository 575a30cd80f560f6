// Package result loads the sampled flow field written by the solver and turns
// it into a coloured surface mesh in model coordinates.
package result

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"cfdwind/internal/foam"
	"cfdwind/internal/geom"
	"cfdwind/internal/logging"
	"cfdwind/internal/mesh"
)

// ErrMissingResult is returned when the solver produced no cut-plane sample.
var ErrMissingResult = errors.New("simulation result not found")

// MissingResultError carries the path that was expected to exist.
type MissingResultError struct {
	Path string
}

func (e *MissingResultError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingResult, e.Path)
}

func (e *MissingResultError) Unwrap() error { return ErrMissingResult }

// Path returns where the cut-plane velocity sample of caseDir is written.
func Path(caseDir string) string {
	return filepath.Join(caseDir, "postProcessing", "cutPlaneSurface",
		strconv.Itoa(foam.EndTime), "U_cutPlane.vtk")
}

// Converter turns a solver output file into a mesh.
type Converter interface {
	Convert(path string) (mesh.Mesh, error)
}

// Harvester locates and converts run results.
type Harvester struct {
	Converter Converter
}

// NewHarvester returns a harvester backed by the VTK converter.
func NewHarvester() *Harvester {
	return &Harvester{Converter: VTKConverter{}}
}

// Load converts the result of caseDir and moves it back into model space by
// reposition.
func (h *Harvester) Load(caseDir string, reposition geom.Vector) (mesh.Mesh, error) {
	path := Path(caseDir)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		logging.ResultWarn("No result at %s", path)
		return mesh.Mesh{}, &MissingResultError{Path: path}
	}

	m, err := h.Converter.Convert(path)
	if err != nil {
		return mesh.Mesh{}, fmt.Errorf("convert %s: %w", path, err)
	}
	logging.Result("Loaded result %s: %d vertices, %d faces", path, m.VertexCount(), m.FaceCount())
	return m.Translate(reposition), nil
}
