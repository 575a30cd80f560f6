package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfdwind/internal/bundle"
	"cfdwind/internal/geom"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := Open(filepath.Join(root, "state", "ledger.db"), filepath.Join(root, "exports"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, root
}

func TestOpenCreatesSchema(t *testing.T) {
	s, root := openStore(t)
	assert.FileExists(t, filepath.Join(root, "state", "ledger.db"))

	var n int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('runs','attachments','objects','versions')`).Scan(&n))
	assert.Equal(t, 4, n)

	// reopening keeps existing data
	ctx := context.Background()
	require.NoError(t, s.MarkFailed(ctx, "r1", "nope"))
	require.NoError(t, s.Close())
	s2, err := Open(s.Path(), filepath.Join(root, "exports"))
	require.NoError(t, err)
	defer s2.Close()
	rec, err := s2.Run(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
}

func TestRunLifecycle(t *testing.T) {
	s, root := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.StartRun(ctx, "run-1", map[string]any{"wind_speed": 10}))
	rec, err := s.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.JSONEq(t, `{"wind_speed":10}`, rec.InputsJSON)

	require.NoError(t, s.AddObjectInfo(ctx, "run-1", "brep-1", "Object included into simulation domain with Objects.Geometry.Brep type."))

	logPath := filepath.Join(root, "log.blockMesh")
	require.NoError(t, os.WriteFile(logPath, []byte("mesh ok"), 0o644))
	require.NoError(t, s.AttachFile(ctx, "run-1", logPath))

	b := bundle.New("run-1", bundle.Line("edge", geom.Pt(0, 0, 0), geom.Pt(1, 0, 0)))
	versionID, err := s.Publish(ctx, "run-1", b)
	require.NoError(t, err)
	_, err = uuid.Parse(versionID)
	assert.NoError(t, err)

	require.NoError(t, s.MarkSuccess(ctx, "run-1", "Object found to run simulation!"))

	rec, err = s.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, rec.Status)
	assert.Equal(t, "Object found to run simulation!", rec.Message)
	assert.Equal(t, 1, rec.Attachments)
	assert.Equal(t, 1, rec.Versions)

	atts, err := s.Attachments(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "log.blockMesh", atts[0].Name)
	assert.Equal(t, int64(7), atts[0].Size)

	notes, err := s.Objects(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "brep-1", notes[0].ObjectID)

	versions, err := s.Versions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, versionID, versions[0].VersionID)
	assert.Equal(t, 1, versions[0].ItemCount)

	data, err := os.ReadFile(filepath.Join(root, "exports", "run-1", ResultFile))
	require.NoError(t, err)
	var back bundle.Bundle
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "run-1", back.RunID)
	assert.Equal(t, 1, back.Len())
}

func TestStatusWithoutStart(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkFailed(ctx, "lonely", "Automation failed: Not found appropriate object to run CFD simulation."))
	rec, err := s.Run(ctx, "lonely")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Empty(t, rec.InputsJSON)
}

func TestAttachMissingFile(t *testing.T) {
	s, root := openStore(t)
	err := s.AttachFile(context.Background(), "run-1", filepath.Join(root, "log.simpleFoam"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunsNewestFirst(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		require.NoError(t, s.StartRun(ctx, id, nil))
	}

	runs, err := s.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
	assert.Equal(t, base.Add(2*time.Minute), runs[0].CreatedAt)

	all, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRestartResetsStatus(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.StartRun(ctx, "r", nil))
	require.NoError(t, s.MarkFailed(ctx, "r", "boom"))
	require.NoError(t, s.StartRun(ctx, "r", nil))

	rec, err := s.Run(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Empty(t, rec.Message)
}

func TestRestartDropsEarlierAttempt(t *testing.T) {
	s, root := openStore(t)
	ctx := context.Background()

	logPath := filepath.Join(root, "log.simpleFoam")
	require.NoError(t, os.WriteFile(logPath, []byte("first"), 0o644))

	require.NoError(t, s.StartRun(ctx, "r", nil))
	require.NoError(t, s.AddObjectInfo(ctx, "r", "old-object", "first attempt"))
	require.NoError(t, s.AttachFile(ctx, "r", logPath))
	_, err := s.Publish(ctx, "r", bundle.New("r", bundle.Line("edge", geom.Pt(0, 0, 0), geom.Pt(1, 0, 0))))
	require.NoError(t, err)
	require.NoError(t, s.StartRun(ctx, "other", nil))
	require.NoError(t, s.AttachFile(ctx, "other", logPath))

	require.NoError(t, s.StartRun(ctx, "r", nil))
	require.NoError(t, s.AddObjectInfo(ctx, "r", "new-object", "second attempt"))

	rec, err := s.Run(ctx, "r")
	require.NoError(t, err)
	assert.Zero(t, rec.Attachments)
	assert.Zero(t, rec.Versions)

	notes, err := s.Objects(ctx, "r")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "new-object", notes[0].ObjectID)

	atts, err := s.Attachments(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, atts, 1, "other runs are untouched")
}

func TestUnknownRun(t *testing.T) {
	s, _ := openStore(t)
	_, err := s.Run(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownRun)
}
