package foam

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfdwind/internal/tactile"
)

type fakeExecutor struct {
	result *tactile.ExecutionResult
	err    error

	got    tactile.Command
	ctxErr error
}

func (f *fakeExecutor) Execute(ctx context.Context, cmd tactile.Command) (*tactile.ExecutionResult, error) {
	f.got = cmd
	f.ctxErr = ctx.Err()
	return f.result, f.err
}

func (f *fakeExecutor) Capabilities() tactile.ExecutorCapabilities {
	return tactile.ExecutorCapabilities{Name: "fake"}
}

func (f *fakeExecutor) Validate(tactile.Command) error { return nil }

func caseWithScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Allrun"), []byte("#!/bin/sh\n"), 0o755))
	return dir
}

func TestRunnerNonZeroExitIsNotAnError(t *testing.T) {
	dir := caseWithScript(t)
	fake := &fakeExecutor{result: &tactile.ExecutionResult{
		Success:  true,
		ExitCode: 1,
		Combined: "FOAM FATAL ERROR",
		Duration: time.Second,
	}}

	report, err := NewRunner(fake).Run(WithRunID(context.Background(), "run-1"), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ExitCode)
	assert.Equal(t, "FOAM FATAL ERROR", report.Output)
	assert.Equal(t, time.Second, report.Duration)

	assert.Equal(t, "sh", fake.got.Binary)
	assert.Equal(t, []string{"Allrun"}, fake.got.Args)
	assert.Equal(t, dir, fake.got.Dir)
	assert.Equal(t, "run-1", fake.got.RunID)
	assert.Zero(t, fake.got.Timeout, "no timeout unless configured")
}

func TestRunnerDetachesCancellation(t *testing.T) {
	dir := caseWithScript(t)
	fake := &fakeExecutor{result: &tactile.ExecutionResult{Success: true}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(fake).Run(ctx, dir)
	require.NoError(t, err)
	assert.NoError(t, fake.ctxErr)
}

func TestRunnerTimeout(t *testing.T) {
	dir := caseWithScript(t)
	fake := &fakeExecutor{result: &tactile.ExecutionResult{Success: true, Killed: true, ExitCode: -1}}

	r := NewRunner(fake)
	r.Timeout = 90 * time.Minute
	report, err := r.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, report.Killed)
	assert.Equal(t, 90*time.Minute, fake.got.Timeout)
}

func TestRunnerInfrastructureFailures(t *testing.T) {
	_, err := NewRunner(&fakeExecutor{}).Run(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrSolverUnavailable, "missing script")

	dir := caseWithScript(t)
	fake := &fakeExecutor{result: &tactile.ExecutionResult{Success: false, Error: "exec: \"sh\": not found"}}
	report, err := NewRunner(fake).Run(context.Background(), dir)
	assert.ErrorIs(t, err, ErrSolverUnavailable)
	require.NotNil(t, report)

	fake = &fakeExecutor{err: errors.New("binary is required")}
	_, err = NewRunner(fake).Run(context.Background(), dir)
	assert.ErrorIs(t, err, ErrSolverUnavailable)
}

func TestRunnerWithDirectExecutor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	script := "echo meshing > log.blockMesh\necho solving > log.simpleFoam\nexit 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Allrun"), []byte(script), 0o755))

	report, err := NewRunner(tactile.NewDirectExecutor()).Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ExitCode)

	present := Present(HarvestLogs(dir))
	require.Len(t, present, 2)
	assert.Equal(t, "log.blockMesh", present[0].Name)
	assert.Equal(t, "log.simpleFoam", present[1].Name)
}
