package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cfdwind/internal/bundle"
	"cfdwind/internal/foam"
	"cfdwind/internal/geom"
	"cfdwind/internal/input"
	"cfdwind/internal/mesh"
	"cfdwind/internal/metrics"
	"cfdwind/internal/result"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const flowVTK = `# vtk DataFile Version 2.0
sampleSurface
ASCII
DATASET POLYDATA
POINTS 3 float
0 0 1.5 10 0 1.5 0 10 1.5
POLYGONS 1 4
3 0 1 2
POINT_DATA 3
FIELD attributes 1
U 3 3 float
1 0 0 2 0 0 3 0 0
`

// fakeSolver writes the given logs (and optionally the flow field) into the
// case directory instead of running anything. Logs are written before err is
// returned, like a script that died half way.
type fakeSolver struct {
	logs     []string
	result   bool
	exitCode int
	err      error
	block    chan struct{}
	calls    int
	mu       sync.Mutex
}

func (s *fakeSolver) Run(ctx context.Context, caseDir string) (*foam.RunReport, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	for _, name := range s.logs {
		if err := os.WriteFile(filepath.Join(caseDir, name), []byte("log"), 0o644); err != nil {
			return nil, err
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.result {
		path := result.Path(caseDir)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(flowVTK), 0o644); err != nil {
			return nil, err
		}
	}
	return &foam.RunReport{ExitCode: s.exitCode, Duration: time.Millisecond}, nil
}

func (s *fakeSolver) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeSink struct {
	mu         sync.Mutex
	started    []string
	attached   []string
	published  []bundle.Bundle
	objects    map[string]string
	statuses   []string
	messages   []string
	publishErr error
	statusErr  error
	attachErr  error
}

func newFakeSink() *fakeSink {
	return &fakeSink{objects: make(map[string]string)}
}

func (s *fakeSink) StartRun(_ context.Context, runID string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, runID)
	return nil
}

func (s *fakeSink) AttachFile(_ context.Context, _, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachErr != nil {
		return s.attachErr
	}
	s.attached = append(s.attached, filepath.Base(path))
	return nil
}

func (s *fakeSink) Publish(_ context.Context, _ string, b bundle.Bundle) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return "", s.publishErr
	}
	s.published = append(s.published, b)
	return "version-1", nil
}

func (s *fakeSink) AddObjectInfo(_ context.Context, _, objectID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectID] = message
	return nil
}

func (s *fakeSink) MarkSuccess(_ context.Context, _, message string) error {
	return s.mark("success", message)
}

func (s *fakeSink) MarkFailed(_ context.Context, _, message string) error {
	return s.mark("failed", message)
}

func (s *fakeSink) mark(status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	s.messages = append(s.messages, message)
	return s.statusErr
}

func building() input.Selection {
	m := mesh.Box(geom.Pt(0, 0, 0), geom.Pt(10, 10, 10))
	return input.Selection{
		Objects:  []input.Object{{ID: "obj-1", Type: input.TypeBrep, Meshes: []mesh.Mesh{m}}},
		Meshes:   []mesh.Mesh{m},
		Accepted: 1,
	}
}

func newTestController(t *testing.T, solver Solver, sink *fakeSink) *Controller {
	t.Helper()
	c := NewController(t.TempDir(), solver, sink, sink)
	c.Metrics = metrics.NewMetrics()
	return c
}

func TestRunPublishesBundle(t *testing.T) {
	solver := &fakeSolver{logs: []string{"log.blockMesh", "log.simpleFoam"}, result: true}
	sink := newFakeSink()
	c := newTestController(t, solver, sink)

	out, err := c.Run(context.Background(), Request{
		RunID:     "run-1",
		Selection: building(),
		Inputs:    Inputs{WindDirection: 0, WindSpeed: 10, CPUs: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, StateDone, out.State)
	assert.True(t, out.Success)
	assert.Equal(t, MessageSuccess, out.Message)
	assert.Equal(t, "version-1", out.VersionID)
	assert.Equal(t, filepath.Join(c.ExportRoot, "run-1"), out.CaseDir)
	assert.FileExists(t, filepath.Join(out.CaseDir, "Allrun"))

	assert.Equal(t, []string{"run-1"}, sink.started)
	assert.ElementsMatch(t, []string{"log.blockMesh", "log.simpleFoam"}, sink.attached)
	assert.Equal(t, "Object included into simulation domain with Objects.Geometry.Brep type.", sink.objects["obj-1"])
	assert.Equal(t, []string{"success"}, sink.statuses)
	assert.Len(t, foam.Present(out.Artifacts), 2)
	assert.Len(t, out.Artifacts, len(foam.LogNames))

	require.Len(t, sink.published, 1)
	b := sink.published[0]
	require.Equal(t, 4, b.Len())
	var names []string
	for _, it := range b.Items {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{"flow", "domain", "subdomain", "wind"}, names)

	// Flow field is moved from the solver frame back onto the input geometry.
	flow, _ := b.Find("flow")
	require.NotNil(t, flow.Mesh)
	assert.InDeltaSlice(t, []float64{5, 5, 1.5}, flow.Mesh.Vertices[:3], 1e-9)
	assert.Len(t, flow.Mesh.Colors, 3)

	domainItem, _ := b.Find("domain")
	assert.Len(t, domainItem.Children, 6)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.RunsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.ObjectsAccepted))
	assert.False(t, c.Active("run-1"))
}

func TestRunWithoutAcceptedObjects(t *testing.T) {
	solver := &fakeSolver{}
	sink := newFakeSink()
	c := newTestController(t, solver, sink)

	out, err := c.Run(context.Background(), Request{RunID: "empty"})
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, MessageNoInput, out.Message)
	assert.Equal(t, StateCreated, out.State)
	assert.Equal(t, []string{"failed"}, sink.statuses)
	assert.Equal(t, []string{MessageNoInput}, sink.messages)
	assert.Zero(t, solver.Calls())
	assert.NoDirExists(t, out.CaseDir)
	assert.Empty(t, sink.published)
}

func TestRunAcceptedObjectWithoutGeometry(t *testing.T) {
	sink := newFakeSink()
	c := newTestController(t, &fakeSolver{}, sink)

	sel := input.Selection{Objects: []input.Object{{ID: "b", Type: input.TypeBox}}, Accepted: 1}
	out, err := c.Run(context.Background(), Request{RunID: "nogeom", Selection: sel})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build domain")

	// the accepted count alone decides the status
	assert.True(t, out.Success)
	assert.Equal(t, []string{"success"}, sink.statuses)
	assert.Equal(t, StateCreated, out.State)
	assert.NoDirExists(t, out.CaseDir)
}

func TestRunSolverNonZeroExitContinues(t *testing.T) {
	solver := &fakeSolver{logs: []string{"log.blockMesh"}, result: true, exitCode: 1}
	sink := newFakeSink()
	c := newTestController(t, solver, sink)

	out, err := c.Run(context.Background(), Request{RunID: "partial", Selection: building()})
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 1, out.Solver.ExitCode)
	assert.Equal(t, []string{"log.blockMesh"}, sink.attached)
	assert.Len(t, sink.published, 1)
}

func TestRunMissingResultSkipsPublish(t *testing.T) {
	solver := &fakeSolver{logs: []string{"log.blockMesh", "log.snappyHexMesh"}}
	sink := newFakeSink()
	c := newTestController(t, solver, sink)

	out, err := c.Run(context.Background(), Request{RunID: "noresult", Selection: building()})
	require.Error(t, err)
	assert.ErrorIs(t, err, result.ErrMissingResult)

	var missing *result.MissingResultError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, result.Path(out.CaseDir), missing.Path)

	assert.Equal(t, StateLogsHarvested, out.State)
	assert.Nil(t, out.Bundle)
	assert.Empty(t, sink.published)
	assert.Len(t, sink.attached, 2)
	assert.Equal(t, []string{"success"}, sink.statuses)
	assert.True(t, out.Success)
}

func TestRunSolverUnavailable(t *testing.T) {
	solver := &fakeSolver{logs: []string{"log.blockMesh"}, err: foam.ErrSolverUnavailable}
	sink := newFakeSink()
	c := newTestController(t, solver, sink)

	out, err := c.Run(context.Background(), Request{RunID: "nosolver", Selection: building()})
	require.ErrorIs(t, err, foam.ErrSolverUnavailable)
	assert.ErrorIs(t, err, result.ErrMissingResult)

	// logs left behind are still harvested
	assert.Equal(t, StateLogsHarvested, out.State)
	assert.Nil(t, out.Solver)
	assert.Equal(t, []string{"log.blockMesh"}, sink.attached)
	assert.Len(t, out.Artifacts, len(foam.LogNames))
	assert.Empty(t, sink.published)

	assert.True(t, out.Success)
	assert.Equal(t, []string{"success"}, sink.statuses)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.RunsTotal.WithLabelValues("succeeded")))
}

func TestRunSinkFailuresAreJoined(t *testing.T) {
	errPublish := errors.New("publish down")
	errStatus := errors.New("status down")
	errAttach := errors.New("attach down")

	sink := newFakeSink()
	sink.publishErr = errPublish
	sink.statusErr = errStatus
	sink.attachErr = errAttach
	c := newTestController(t, &fakeSolver{logs: []string{"log.blockMesh"}, result: true}, sink)

	out, err := c.Run(context.Background(), Request{RunID: "sinkfail", Selection: building()})
	require.Error(t, err)
	assert.ErrorIs(t, err, errPublish)
	assert.ErrorIs(t, err, errStatus)
	assert.ErrorIs(t, err, errAttach)
	assert.Equal(t, StateDone, out.State)
	assert.NotNil(t, out.Bundle)
	assert.Empty(t, out.VersionID)

	assert.True(t, out.Success)
	assert.Equal(t, []string{"success"}, sink.statuses)
	assert.Equal(t, []string{MessageSuccess}, sink.messages)
}

func TestRunPublishFailureKeepsStatus(t *testing.T) {
	sink := newFakeSink()
	sink.publishErr = errors.New("publish down")
	c := newTestController(t, &fakeSolver{result: true}, sink)

	out, err := c.Run(context.Background(), Request{RunID: "pubfail", Selection: building()})
	require.ErrorIs(t, err, sink.publishErr)
	assert.True(t, out.Success)
	assert.Equal(t, MessageSuccess, out.Message)
	assert.Equal(t, []string{"success"}, sink.statuses)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.RunsTotal.WithLabelValues("succeeded")))
}

func TestRunRefusesConcurrentSameID(t *testing.T) {
	solver := &fakeSolver{block: make(chan struct{}), result: true}
	sink := newFakeSink()
	c := newTestController(t, solver, sink)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), Request{RunID: "dup", Selection: building()})
		done <- err
	}()
	require.Eventually(t, func() bool { return solver.Calls() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, c.Active("dup"))

	_, err := c.Run(context.Background(), Request{RunID: "dup", Selection: building()})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(solver.block)
	require.NoError(t, <-done)
	assert.False(t, c.Active("dup"))

	// The id is free again once the first run returns.
	_, err = c.Run(context.Background(), Request{RunID: "dup", Selection: building()})
	require.NoError(t, err)
}

func TestRunValidation(t *testing.T) {
	sink := newFakeSink()
	c := newTestController(t, &fakeSolver{}, sink)

	for _, req := range []Request{
		{RunID: "../escape", Selection: building()},
		{RunID: "..", Selection: building()},
		{RunID: "ok", Selection: building(), Inputs: Inputs{CPUs: -2}},
	} {
		out, err := c.Run(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, req.RunID)
		assert.Nil(t, out)
	}
	assert.Empty(t, sink.statuses)

	bare := &Controller{ExportRoot: t.TempDir()}
	_, err := bare.Run(context.Background(), Request{RunID: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRunGeneratesRunID(t *testing.T) {
	sink := newFakeSink()
	c := newTestController(t, &fakeSolver{}, sink)

	out, err := c.Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.Len(t, out.RunID, 36)
	assert.Equal(t, []string{out.RunID}, sink.started)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		accepted int
		success  bool
		message  string
	}{
		{"no input", 0, false, MessageNoInput},
		{"negative count", -1, false, MessageNoInput},
		{"one object", 1, true, MessageSuccess},
		{"several objects", 7, true, MessageSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg := classify(tt.accepted)
			assert.Equal(t, tt.success, ok)
			assert.Equal(t, tt.message, msg)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "logs_harvested", StateLogsHarvested.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "unknown", State(42).String())
}
