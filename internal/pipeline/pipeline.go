// Package pipeline sequences one simulation run: domain construction, case
// writing, the solver call, log harvesting, result loading and annotation, then
// publication of the result bundle and the run status.
//
// A Controller is safe for concurrent use. Runs with different ids proceed in
// parallel; a second run for an id that is still in flight is refused with
// ErrRunInProgress.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cfdwind/internal/annotate"
	"cfdwind/internal/bundle"
	"cfdwind/internal/domain"
	"cfdwind/internal/foam"
	"cfdwind/internal/geom"
	"cfdwind/internal/input"
	"cfdwind/internal/logging"
	"cfdwind/internal/mesh"
	"cfdwind/internal/metrics"
	"cfdwind/internal/result"
)

// Run classification messages.
const (
	MessageSuccess = "Object found to run simulation!"
	MessageNoInput = "Automation failed: Not found appropriate object to run CFD simulation."
)

// DefaultCPUs is used when a request leaves CPUs at zero.
const DefaultCPUs = 4

var (
	// ErrRunInProgress is returned when a run with the same id is already executing.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrInvalidRequest is returned for requests rejected before any stage runs.
	ErrInvalidRequest = errors.New("invalid run request")
)

// Inputs are the user-facing simulation parameters.
type Inputs struct {
	WindDirection float64 `json:"wind_direction"`
	WindSpeed     float64 `json:"wind_speed"`
	CPUs          int     `json:"cpus"`
}

// Request is one pipeline invocation. An empty RunID is replaced with a fresh uuid.
type Request struct {
	RunID     string
	Selection input.Selection
	Inputs    Inputs
}

// Solver runs the case entry script. *foam.Runner satisfies it.
type Solver interface {
	Run(ctx context.Context, caseDir string) (*foam.RunReport, error)
}

// ResultLoader reads the flow field back out of a finished case.
// *result.Harvester satisfies it.
type ResultLoader interface {
	Load(caseDir string, reposition geom.Vector) (mesh.Mesh, error)
}

// Publisher receives harvested files and the result bundle.
type Publisher interface {
	AttachFile(ctx context.Context, runID, path string) error
	Publish(ctx context.Context, runID string, b bundle.Bundle) (string, error)
}

// StatusReporter receives per-object notes and the final run status.
type StatusReporter interface {
	AddObjectInfo(ctx context.Context, runID, objectID, message string) error
	MarkSuccess(ctx context.Context, runID, message string) error
	MarkFailed(ctx context.Context, runID, message string) error
}

// RunStarter is implemented by sinks that want to know about a run before
// any of its stages execute.
type RunStarter interface {
	StartRun(ctx context.Context, runID string, inputs any) error
}

// Outcome is what a run produced. It is returned alongside any error so
// callers can see how far the run got.
type Outcome struct {
	RunID     string
	State     State
	Success   bool
	Message   string
	CaseDir   string
	Domain    *domain.Domain
	Solver    *foam.RunReport
	Artifacts []foam.Artifact
	Bundle    *bundle.Bundle
	VersionID string
	Duration  time.Duration
}

// Controller wires the stages together.
type Controller struct {
	ExportRoot string
	Domain     domain.Options // wind fields are overwritten from each request
	Case       foam.Settings
	Solver     Solver
	Results    ResultLoader
	Publisher  Publisher
	Status     StatusReporter
	Metrics    *metrics.Metrics

	runsOnce sync.Once
	runs     *runRegistry
}

// NewController returns a controller with default domain and case settings
// and the VTK result loader.
func NewController(exportRoot string, solver Solver, pub Publisher, status StatusReporter) *Controller {
	return &Controller{
		ExportRoot: exportRoot,
		Domain:     domain.DefaultOptions(),
		Case:       foam.DefaultSettings(),
		Solver:     solver,
		Results:    result.NewHarvester(),
		Publisher:  pub,
		Status:     status,
	}
}

func (c *Controller) validate(req *Request) error {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.RunID == "." || req.RunID == ".." || strings.ContainsAny(req.RunID, `/\`) {
		return fmt.Errorf("%w: run id %q is not a directory name", ErrInvalidRequest, req.RunID)
	}
	if req.Inputs.CPUs == 0 {
		req.Inputs.CPUs = DefaultCPUs
	}
	if req.Inputs.CPUs < 0 {
		return fmt.Errorf("%w: cpu count must be positive, got %d", ErrInvalidRequest, req.Inputs.CPUs)
	}
	if c.ExportRoot == "" {
		return fmt.Errorf("%w: export root is not configured", ErrInvalidRequest)
	}
	if c.Solver == nil || c.Publisher == nil || c.Status == nil {
		return fmt.Errorf("%w: controller is missing a collaborator", ErrInvalidRequest)
	}
	return nil
}

// Run executes the full pipeline for req. The status sink hears about every
// run that gets past validation, including runs aborted for lack of input.
// Sink failures are joined onto the returned error and never retried.
func (c *Controller) Run(ctx context.Context, req Request) (*Outcome, error) {
	if err := c.validate(&req); err != nil {
		return nil, err
	}
	release, ok := c.registry().acquire(req.RunID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, req.RunID)
	}
	defer release()

	start := time.Now()
	log := logging.WithRun(logging.CategoryPipeline, req.RunID)
	out := &Outcome{
		RunID:   req.RunID,
		State:   StateCreated,
		CaseDir: filepath.Join(c.ExportRoot, req.RunID),
	}
	log.Info("Run started: %d accepted objects, wind %.1f° at %.1f m/s, %d cpus",
		req.Selection.Accepted, req.Inputs.WindDirection, req.Inputs.WindSpeed, req.Inputs.CPUs)

	var sinkErrs []error
	if starter, ok := c.Publisher.(RunStarter); ok {
		if err := starter.StartRun(ctx, req.RunID, req.Inputs); err != nil {
			sinkErrs = append(sinkErrs, fmt.Errorf("start run: %w", err))
		}
	}
	for _, obj := range req.Selection.Objects {
		if err := c.Status.AddObjectInfo(ctx, req.RunID, obj.ID, obj.Info()); err != nil {
			sinkErrs = append(sinkErrs, fmt.Errorf("object info %s: %w", obj.ID, err))
		}
	}
	c.Metrics.RecordAccepted(req.Selection.Accepted)

	stageErr := c.execute(ctx, req, out)
	out.Success, out.Message = classify(req.Selection.Accepted)

	var statusErr error
	if out.Success {
		statusErr = c.Status.MarkSuccess(ctx, req.RunID, out.Message)
	} else {
		statusErr = c.Status.MarkFailed(ctx, req.RunID, out.Message)
	}
	if statusErr != nil {
		sinkErrs = append(sinkErrs, fmt.Errorf("report status: %w", statusErr))
	}

	out.Duration = time.Since(start)
	err := errors.Join(append([]error{stageErr}, sinkErrs...)...)
	status := "succeeded"
	if !out.Success {
		status = "failed"
	}
	c.Metrics.RecordRun(status)

	if err != nil {
		log.Error("Run finished in %s at state %s: %v", out.Duration, out.State, err)
	} else {
		log.Info("Run finished in %s: %s", out.Duration, out.Message)
	}
	return out, err
}

// classify decides the reported status from the accepted object count alone.
// Stage and sink errors are returned to the caller but never change it.
func classify(accepted int) (bool, string) {
	if accepted <= 0 {
		return false, MessageNoInput
	}
	return true, MessageSuccess
}

// execute runs the stages and advances out.State. Domain and case failures
// stop the run; past the solver every stage runs and errors are collected.
func (c *Controller) execute(ctx context.Context, req Request, out *Outcome) error {
	if req.Selection.Accepted <= 0 {
		return nil
	}
	log := logging.WithRun(logging.CategoryPipeline, req.RunID)

	opts := c.Domain
	opts.WindDirection = req.Inputs.WindDirection
	opts.WindSpeed = req.Inputs.WindSpeed

	var d domain.Domain
	err := c.stage("domain", func() error {
		var err error
		d, err = domain.Build(req.Selection.Meshes, opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("build domain: %w", err)
	}
	out.Domain = &d

	if err := c.stage("case", func() error {
		return c.Case.CreateCase(d, req.Selection.Meshes, out.CaseDir, req.Inputs.CPUs)
	}); err != nil {
		return fmt.Errorf("create case: %w", err)
	}
	out.State = StateCaseWritten

	var errs []error
	err = c.stage("solve", func() error {
		report, err := c.Solver.Run(foam.WithRunID(ctx, req.RunID), out.CaseDir)
		out.Solver = report
		return err
	})
	out.State = StateSolverInvoked
	switch {
	case err != nil:
		log.Error("Solver did not run, harvesting whatever exists: %v", err)
		errs = append(errs, fmt.Errorf("run solver: %w", err))
	case out.Solver != nil && out.Solver.ExitCode != 0:
		log.Warn("Solver exited with code %d, continuing with partial artifacts", out.Solver.ExitCode)
	}

	if err := c.stage("harvest", func() error {
		return c.attachLogs(ctx, req.RunID, out)
	}); err != nil {
		errs = append(errs, err)
	}
	out.State = StateLogsHarvested

	var flow mesh.Mesh
	err = c.stage("result", func() error {
		var err error
		flow, err = c.Results.Load(out.CaseDir, d.Origin())
		return err
	})
	if err != nil {
		if errors.Is(err, result.ErrMissingResult) {
			log.Warn("No flow field to publish: %v", err)
			return errors.Join(append(errs, err)...)
		}
		return errors.Join(append(errs, fmt.Errorf("load result: %w", err))...)
	}

	b, err := assemble(req.RunID, d, flow)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("annotate: %w", err))...)
	}
	out.Bundle = &b

	if err := c.stage("publish", func() error {
		var err error
		out.VersionID, err = c.Publisher.Publish(ctx, req.RunID, b)
		return err
	}); err != nil {
		errs = append(errs, fmt.Errorf("publish: %w", err))
	}
	out.State = StateDone
	return errors.Join(errs...)
}

// attachLogs records every log artifact and attaches the present ones.
func (c *Controller) attachLogs(ctx context.Context, runID string, out *Outcome) error {
	out.Artifacts = foam.HarvestLogs(out.CaseDir)
	var errs []error
	for _, a := range out.Artifacts {
		c.Metrics.RecordArtifact(a.Name, a.Present)
		if !a.Present {
			continue
		}
		if err := c.Publisher.AttachFile(ctx, runID, a.Path); err != nil {
			errs = append(errs, fmt.Errorf("attach %s: %w", a.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.Metrics.RecordStage(name, time.Since(start))
	return err
}

// assemble builds the four top-level items: flow field, domain and subdomain
// wireframes, wind arrow.
func assemble(runID string, d domain.Domain, flow mesh.Mesh) (bundle.Bundle, error) {
	outer, err := annotate.DomainWireframe(d.Corners[:])
	if err != nil {
		return bundle.Bundle{}, err
	}
	inner, err := annotate.DomainWireframe(d.SubdomainCorners[:])
	if err != nil {
		return bundle.Bundle{}, err
	}
	arrow, err := annotate.WindArrow(d)
	if err != nil {
		return bundle.Bundle{}, err
	}
	return bundle.New(runID,
		bundle.Mesh("flow", flow),
		bundle.Group("domain", outer...),
		bundle.Group("subdomain", inner...),
		arrow,
	), nil
}
