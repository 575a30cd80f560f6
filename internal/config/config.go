package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for its config file.
const DefaultPath = "cfdwind.yaml"

// Config holds all cfdwind configuration.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Solver     SolverConfig     `yaml:"solver"`
	Export     ExportConfig     `yaml:"export"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Input      InputConfig      `yaml:"input"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Batch      BatchConfig      `yaml:"batch"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ExportConfig sets where case directories are created.
type ExportConfig struct {
	Root string `yaml:"root"` // one <root>/<run_id>/ per run
}

// LedgerConfig configures the local run ledger.
type LedgerConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// InputConfig configures object selection.
type InputConfig struct {
	AcceptedTypes []string `yaml:"accepted_types"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // empty disables export
}

// BatchConfig configures `cfdwind batch`.
type BatchConfig struct {
	Parallel int `yaml:"parallel"`
}

// WatchConfig configures `cfdwind watch`.
type WatchConfig struct {
	Inbox    string `yaml:"inbox"`
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Simulation: DefaultSimulationConfig(),
		Solver:     DefaultSolverConfig(),
		Export: ExportConfig{
			Root: "exports",
		},
		Ledger: LedgerConfig{
			DatabasePath: "data/cfdwind.db",
		},
		Input: InputConfig{
			AcceptedTypes: []string{
				"Objects.Geometry.Brep",
				"Objects.Geometry.Box",
				"Objects.Geometry.Mesh",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Batch: BatchConfig{
			Parallel: 2,
		},
		Watch: WatchConfig{
			Inbox:    "inbox",
			Debounce: "500ms",
		},
	}
}

// Load loads configuration from a YAML file over the defaults. A missing file
// yields the defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies CFDWIND_* environment overrides. Values that do
// not parse are ignored and left for Validate to judge the file value.
func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("CFDWIND_EXPORT_ROOT"); root != "" {
		c.Export.Root = root
	}
	if path := os.Getenv("CFDWIND_DB"); path != "" {
		c.Ledger.DatabasePath = path
	}
	if level := os.Getenv("CFDWIND_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if v := os.Getenv("CFDWIND_CPUS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Simulation.CPUCount = n
		}
	}
	if v := os.Getenv("CFDWIND_WIND_DIRECTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Simulation.WindDirection = f
		}
	}
	if v := os.Getenv("CFDWIND_WIND_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Simulation.WindSpeed = f
		}
	}
}

// GetSolverTimeout returns the solver timeout; zero means wait indefinitely.
func (c *Config) GetSolverTimeout() time.Duration {
	if c.Solver.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Solver.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// GetWatchDebounce returns the inbox debounce window.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// ValidLogFormats lists the supported logging encoders.
var ValidLogFormats = []string{"json", "console", "text"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if c.Export.Root == "" {
		return fmt.Errorf("export.root must be set")
	}
	if c.Ledger.DatabasePath == "" {
		return fmt.Errorf("ledger.database_path must be set")
	}
	if c.Solver.Shell == "" || c.Solver.EntryScript == "" {
		return fmt.Errorf("solver.shell and solver.entry_script must be set")
	}
	if c.Solver.Timeout != "" {
		if d, err := time.ParseDuration(c.Solver.Timeout); err != nil || d < 0 {
			return fmt.Errorf("invalid solver.timeout: %q", c.Solver.Timeout)
		}
	}
	if c.Solver.MaxOutputBytes < 0 {
		return fmt.Errorf("solver.max_output_bytes must be >= 0")
	}
	if c.Batch.Parallel < 1 {
		return fmt.Errorf("batch.parallel must be >= 1")
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch.debounce: %q", c.Watch.Debounce)
		}
	}
	if c.Logging.Format != "" && !slices.Contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid logging.format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}
	return nil
}
