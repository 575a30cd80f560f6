package foam

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfdwind/internal/domain"
	"cfdwind/internal/geom"
	"cfdwind/internal/mesh"
)

func testInput(t *testing.T, wind float64) (domain.Domain, []mesh.Mesh) {
	t.Helper()
	meshes := []mesh.Mesh{mesh.Box(geom.Pt(0, 0, 0), geom.Pt(10, 20, 30))}
	o := domain.DefaultOptions()
	o.WindDirection = wind
	o.WindSpeed = 10
	d, err := domain.Build(meshes, o)
	require.NoError(t, err)
	return d, meshes
}

func readCaseFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err, rel)
	return string(data)
}

// patchBlock returns the boundaryField entry for name.
func patchBlock(t *testing.T, field, name string) string {
	t.Helper()
	start := strings.Index(field, "\n    "+name+"\n")
	require.GreaterOrEqual(t, start, 0, "patch %s missing", name)
	end := strings.Index(field[start:], "    }\n")
	require.Greater(t, end, 0)
	return field[start : start+end]
}

func TestCreateCaseWritesLayout(t *testing.T) {
	d, meshes := testInput(t, 0)
	dir := filepath.Join(t.TempDir(), "exports", "run-1")

	require.NoError(t, CreateCase(d, meshes, dir, 4))

	for _, rel := range []string{
		"constant/triSurface/buildings.stl",
		"system/blockMeshDict", "system/snappyHexMeshDict", "system/surfaceFeaturesDict",
		"system/decomposeParDict", "system/controlDict", "system/fvSchemes",
		"system/fvSolution", "system/meshQualityDict",
		"0/U", "0/p", "0/k", "0/epsilon", "0/nut",
		"Allrun",
	} {
		assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(rel)))
	}

	info, err := os.Stat(filepath.Join(dir, "Allrun"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	assert.Contains(t, readCaseFile(t, dir, "system/decomposeParDict"), "numberOfSubdomains 4;")
	assert.Contains(t, readCaseFile(t, dir, "system/controlDict"), "endTime         400;")
	assert.Contains(t, readCaseFile(t, dir, "system/controlDict"), "cutPlaneSurface")
	assert.Contains(t, readCaseFile(t, dir, "system/controlDict"), "point   (0 0 1.5);")
}

func TestCreateCaseSolverFrame(t *testing.T) {
	d, meshes := testInput(t, 0)
	dir := t.TempDir()
	require.NoError(t, CreateCase(d, meshes, dir, 2))

	block := readCaseFile(t, dir, "system/blockMeshDict")
	assert.Contains(t, block, "(-25 -50 0)")
	assert.Contains(t, block, "(25 50 60)")
	assert.Contains(t, block, "(5 10 6) simpleGrading")
	for _, name := range []string{"north", "east", "south", "west", "ground", "top"} {
		assert.Contains(t, block, "    "+name+"\n")
	}

	stl := readCaseFile(t, dir, "constant/triSurface/buildings.stl")
	assert.True(t, strings.HasPrefix(stl, "solid buildings\n"))
	assert.True(t, strings.HasSuffix(stl, "endsolid buildings\n"))
	assert.Equal(t, 12, strings.Count(stl, "facet normal"))
	// input (0,0,0) moves by -(5,10,0)
	assert.Contains(t, stl, "vertex -5 -10 0\n")
	assert.NotContains(t, stl, "vertex 0 0 0\n")

	snappy := readCaseFile(t, dir, "system/snappyHexMeshDict")
	assert.Contains(t, snappy, "searchableRotatedBox")
	assert.Contains(t, snappy, "e3     (0 0 1);")
}

func TestCreateCaseInletsFollowWind(t *testing.T) {
	d, meshes := testInput(t, 0)
	dir := t.TempDir()
	require.NoError(t, CreateCase(d, meshes, dir, 2))

	u := readCaseFile(t, dir, "0/U")
	assert.Contains(t, u, "internalField   uniform (0 -10 0);")
	assert.Contains(t, patchBlock(t, u, "north"), "fixedValue")
	for _, side := range []string{"east", "south", "west"} {
		assert.Contains(t, patchBlock(t, u, side), "inletOutlet", side)
	}

	p := readCaseFile(t, dir, "0/p")
	assert.Contains(t, patchBlock(t, p, "north"), "zeroGradient")
	assert.Contains(t, patchBlock(t, p, "south"), "fixedValue")
}

func TestCreateCaseAllrunStages(t *testing.T) {
	d, meshes := testInput(t, 90)

	parallel := t.TempDir()
	require.NoError(t, CreateCase(d, meshes, parallel, 4))
	script := readCaseFile(t, parallel, "Allrun")
	order := []string{
		"surfaceFeatures", "blockMesh", "decomposePar -copyZero",
		"runParallel snappyHexMesh -overwrite", "runParallel patchSummary",
		"runParallel simpleFoam", "reconstructParMesh -constant", "reconstructPar -latestTime",
	}
	last := -1
	for _, stage := range order {
		i := strings.Index(script, stage)
		require.Greater(t, i, last, "stage %q out of order", stage)
		last = i
	}

	serial := t.TempDir()
	require.NoError(t, CreateCase(d, meshes, serial, 1))
	script = readCaseFile(t, serial, "Allrun")
	assert.NotContains(t, script, "decomposePar")
	assert.Contains(t, script, "runApplication simpleFoam")
}

func TestCreateCaseValidatesBeforeWriting(t *testing.T) {
	d, meshes := testInput(t, 0)
	dir := filepath.Join(t.TempDir(), "case")

	err := CreateCase(d, meshes, dir, 0)
	require.Error(t, err)
	assert.NoDirExists(t, dir)

	err = Settings{CellSize: 0}.CreateCase(d, meshes, dir, 2)
	require.Error(t, err)
	assert.NoDirExists(t, dir)
}

func TestCreateCaseWriteError(t *testing.T) {
	d, meshes := testInput(t, 0)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := CreateCase(d, meshes, filepath.Join(blocker, "case"), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaseWrite)

	var cwe *CaseWriteError
	require.True(t, errors.As(err, &cwe))
	assert.True(t, strings.HasPrefix(cwe.Path, blocker))
}

func TestCreateCaseOverwrites(t *testing.T) {
	d, meshes := testInput(t, 0)
	dir := t.TempDir()
	require.NoError(t, CreateCase(d, meshes, dir, 2))
	require.NoError(t, CreateCase(d, meshes, dir, 8))
	assert.Contains(t, readCaseFile(t, dir, "system/decomposeParDict"), "numberOfSubdomains 8;")
}
