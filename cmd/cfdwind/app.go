package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"cfdwind/internal/config"
	"cfdwind/internal/input"
	"cfdwind/internal/ledger"
	"cfdwind/internal/logging"
	"cfdwind/internal/metrics"
	"cfdwind/internal/pipeline"
	"cfdwind/internal/tactile"
)

// app bundles what every pipeline-running command needs.
type app struct {
	cfg        *config.Config
	store      *ledger.Store
	controller *pipeline.Controller
	selector   *input.Selector
}

func newApp(c *config.Config, reg *metrics.Registry) (*app, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	store, err := ledger.Open(c.Ledger.DatabasePath, c.Export.Root)
	if err != nil {
		return nil, err
	}

	exec := tactile.NewDirectExecutorWithConfig(c.ExecutorConfig())
	var m *metrics.Metrics
	if reg != nil {
		m = reg.Metrics
		exec.SetAuditCallback(m.ObserveExecution)
	}

	ctrl := pipeline.NewController(c.Export.Root, c.NewRunner(exec), store, store)
	ctrl.Domain = c.Simulation.DomainOptions()
	ctrl.Case = c.Simulation.CaseSettings()
	ctrl.Metrics = m

	return &app{
		cfg:        c,
		store:      store,
		controller: ctrl,
		selector:   input.NewSelector(c.Input.AcceptedTypes),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) inputs() pipeline.Inputs {
	return pipeline.Inputs{
		WindDirection: a.cfg.Simulation.WindDirection,
		WindSpeed:     a.cfg.Simulation.WindSpeed,
		CPUs:          a.cfg.Simulation.CPUCount,
	}
}

// runFile decodes an input tree, selects its geometry and runs the pipeline.
// A selection failure is recorded against the run before it is returned.
func (a *app) runFile(ctx context.Context, path, runID string, in pipeline.Inputs) (*pipeline.Outcome, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	log := logging.WithRun(logging.CategoryInput, runID)

	root, err := input.LoadFile(path)
	if err == nil {
		var sel input.Selection
		sel, err = a.selector.Select(root)
		if err == nil {
			log.Info("Selected %d objects (%d meshes) from %s", sel.Accepted, len(sel.Meshes), path)
			return a.controller.Run(ctx, pipeline.Request{RunID: runID, Selection: sel, Inputs: in})
		}
	}

	log.Error("Input %s rejected: %v", path, err)
	if serr := a.store.StartRun(ctx, runID, in); serr != nil {
		return nil, fmt.Errorf("%w (and start run: %v)", err, serr)
	}
	if serr := a.store.MarkFailed(ctx, runID, "Automation failed: "+err.Error()); serr != nil {
		return nil, fmt.Errorf("%w (and mark failed: %v)", err, serr)
	}
	return nil, err
}

// runIDFor derives a run id from an input file name.
func runIDFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
