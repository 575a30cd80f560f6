package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cfdwind/internal/foam"
	"cfdwind/internal/pipeline"
)

var (
	runID         string
	windDirection float64
	windSpeed     float64
	cpus          int
)

// runCmd runs the pipeline once for one input tree.
var runCmd = &cobra.Command{
	Use:   "run <input-file>",
	Short: "Run one wind simulation for an input object tree (JSON or YAML)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimulation,
}

func init() {
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run id (default: random uuid)")
	runCmd.Flags().Float64Var(&windDirection, "wind-direction", 0, "Wind direction, compass degrees the wind blows from")
	runCmd.Flags().Float64Var(&windSpeed, "wind-speed", 0, "Wind speed in m/s")
	runCmd.Flags().IntVar(&cpus, "cpus", 0, "Solver processes")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, metricz)
	if err != nil {
		return err
	}
	defer a.Close()

	in := a.inputs()
	if cmd.Flags().Changed("wind-direction") {
		in.WindDirection = windDirection
	}
	if cmd.Flags().Changed("wind-speed") {
		in.WindSpeed = windSpeed
	}
	if cmd.Flags().Changed("cpus") {
		in.CPUs = cpus
	}

	out, err := a.runFile(cmd.Context(), args[0], runID, in)
	if out != nil {
		printOutcome(cmd.OutOrStdout(), out)
	}
	return err
}

func printOutcome(w io.Writer, out *pipeline.Outcome) {
	status := "failed"
	if out.Success {
		status = "succeeded"
	}
	fmt.Fprintf(w, "Run %s %s (%s)\n", out.RunID, status, out.Message)
	fmt.Fprintf(w, "  state:    %s\n", out.State)
	fmt.Fprintf(w, "  case:     %s\n", out.CaseDir)
	if out.Solver != nil {
		fmt.Fprintf(w, "  solver:   exit %d in %s\n", out.Solver.ExitCode, out.Solver.Duration.Round(1e6))
	}
	if len(out.Artifacts) > 0 {
		fmt.Fprintf(w, "  logs:     %d/%d\n", len(foam.Present(out.Artifacts)), len(out.Artifacts))
	}
	if out.VersionID != "" {
		fmt.Fprintf(w, "  version:  %s\n", out.VersionID)
	}
}
