package foam

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cfdwind/internal/logging"
	"cfdwind/internal/tactile"
)

// ErrSolverUnavailable is returned when the entry script could not be started.
var ErrSolverUnavailable = errors.New("solver could not be started")

// RunReport is the outcome of one solver invocation.
type RunReport struct {
	ExitCode int
	Output   string
	Duration time.Duration
	Killed   bool
}

// Runner invokes a case's entry script once per call.
type Runner struct {
	Executor tactile.Executor
	Shell    string        // interpreter, "sh" by default
	Script   string        // entry script relative to the case, "Allrun" by default
	Timeout  time.Duration // zero waits for the script to exit
	Env      []string      // extra KEY=VALUE pairs
}

// NewRunner returns a runner for `sh Allrun` with no timeout.
func NewRunner(exec tactile.Executor) *Runner {
	return &Runner{Executor: exec, Shell: "sh", Script: "Allrun"}
}

// Run executes the entry script in caseDir and blocks until it exits. The
// caller's cancellation does not reach the solver; only Timeout stops it early.
// A non-zero exit is reported, not returned as an error.
func (r *Runner) Run(ctx context.Context, caseDir string) (*RunReport, error) {
	runID, _ := ctx.Value(runIDKey{}).(string)
	log := logging.WithRun(logging.CategorySolver, runID)

	script := filepath.Join(caseDir, r.Script)
	if _, err := os.Stat(script); err != nil {
		log.Error("Entry script missing: %s", script)
		return nil, fmt.Errorf("%w: %v", ErrSolverUnavailable, err)
	}

	cmd := tactile.Command{
		Binary:  r.Shell,
		Args:    []string{r.Script},
		Dir:     caseDir,
		Env:     r.Env,
		Timeout: r.Timeout,
		RunID:   runID,
	}

	log.Info("Starting solver: %s in %s (executor=%s)", cmd, caseDir, r.Executor.Capabilities().Name)
	res, err := r.Executor.Execute(context.WithoutCancel(ctx), cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolverUnavailable, err)
	}
	report := &RunReport{
		ExitCode: res.ExitCode,
		Output:   res.Output(),
		Duration: res.Duration,
		Killed:   res.Killed,
	}
	if !res.Success {
		return report, fmt.Errorf("%w: %s", ErrSolverUnavailable, res.Error)
	}

	switch {
	case res.Killed:
		log.Warn("Solver killed after %s: %s", res.Duration, res.KillReason)
	case res.ExitCode != 0:
		log.Warn("Solver exited with code %d after %s", res.ExitCode, res.Duration)
	default:
		log.Info("Solver finished in %s", res.Duration)
	}
	return report, nil
}

type runIDKey struct{}

// WithRunID tags ctx so solver logs and audit events carry the run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}
