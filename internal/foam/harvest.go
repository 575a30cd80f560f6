package foam

import (
	"os"
	"path/filepath"

	"cfdwind/internal/logging"
)

// LogNames is the fixed set of stage logs collected after a run.
var LogNames = []string{
	"log.blockMesh",
	"log.decomposePar",
	"log.patchSummary",
	"log.reconstructPar",
	"log.reconstructParMesh",
	"log.simpleFoam",
	"log.snappyHexMesh",
	"log.surfaceFeatures",
}

// Artifact is one expected log file and whether the run produced it.
type Artifact struct {
	Name    string
	Path    string
	Present bool
	Size    int64
}

// HarvestLogs checks every name in LogNames under caseDir. Missing logs are
// returned with Present false.
func HarvestLogs(caseDir string) []Artifact {
	out := make([]Artifact, 0, len(LogNames))
	for _, name := range LogNames {
		a := Artifact{Name: name, Path: filepath.Join(caseDir, name)}
		if info, err := os.Stat(a.Path); err == nil && info.Mode().IsRegular() {
			a.Present = true
			a.Size = info.Size()
		}
		out = append(out, a)
	}
	logging.Harvest("Harvested %d/%d logs from %s", len(Present(out)), len(out), caseDir)
	return out
}

// Present filters artifacts to the ones found on disk.
func Present(artifacts []Artifact) []Artifact {
	var out []Artifact
	for _, a := range artifacts {
		if a.Present {
			out = append(out, a)
		}
	}
	return out
}
