package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cfdwind/internal/config"
	"cfdwind/internal/logging"
	"cfdwind/internal/metrics"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	metricsFile string

	// Loaded in PersistentPreRunE
	cfg     *config.Config
	metricz *metrics.Registry
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cfdwind",
	Short: "Wind-flow CFD runs around building geometry",
	Long: `cfdwind turns building meshes into an OpenFOAM wind simulation case,
runs the case's Allrun script, and publishes the flow field at pedestrian
height together with the domain wireframes and a wind arrow.

Each run lives in <export root>/<run id>/ and is recorded in a local ledger.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		opts := cfg.Logging.Options()
		if verbose {
			opts.Level = "debug"
		}
		if err := logging.Initialize(opts); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if metricsFile != "" {
			cfg.Metrics.Textfile = metricsFile
		}
		metricz = metrics.NewRegistry()
		logging.BootDebug("Config loaded from %s", configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
}

// executeRoot runs the command line and then flushes metrics and logs. Cobra
// skips post-run hooks when a command fails, so this happens here instead.
func executeRoot() error {
	cfg, metricz = nil, nil
	err := rootCmd.Execute()
	if metricz != nil && cfg != nil {
		if werr := metricz.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	logging.Sync()
	return err
}

func main() {
	if err := executeRoot(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
