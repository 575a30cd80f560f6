package config

import (
	"cfdwind/internal/foam"
	"cfdwind/internal/tactile"
)

// SolverConfig configures how the case entry script is run.
type SolverConfig struct {
	// Interpreter and script, run inside the case directory.
	Shell       string `yaml:"shell"`
	EntryScript string `yaml:"entry_script"`

	// Empty waits for the script to exit.
	Timeout string `yaml:"timeout"`

	// Environment variables passed through; a trailing * matches a prefix.
	AllowedEnvVars []string `yaml:"allowed_env_vars"`

	MaxOutputBytes int64 `yaml:"max_output_bytes"`
}

// DefaultSolverConfig returns `sh Allrun` with the executor's default environment.
func DefaultSolverConfig() SolverConfig {
	exec := tactile.DefaultExecutorConfig()
	return SolverConfig{
		Shell:          "sh",
		EntryScript:    "Allrun",
		AllowedEnvVars: exec.AllowedEnv,
		MaxOutputBytes: exec.MaxOutputBytes,
	}
}

// ExecutorConfig builds the tactile executor configuration.
func (c *Config) ExecutorConfig() tactile.ExecutorConfig {
	exec := tactile.DefaultExecutorConfig()
	if len(c.Solver.AllowedEnvVars) > 0 {
		exec.AllowedEnv = append([]string(nil), c.Solver.AllowedEnvVars...)
	}
	if c.Solver.MaxOutputBytes > 0 {
		exec.MaxOutputBytes = c.Solver.MaxOutputBytes
	}
	exec.DefaultTimeout = c.GetSolverTimeout()
	return exec
}

// NewRunner builds a solver runner on exec from the solver section.
func (c *Config) NewRunner(exec tactile.Executor) *foam.Runner {
	r := foam.NewRunner(exec)
	r.Shell = c.Solver.Shell
	r.Script = c.Solver.EntryScript
	r.Timeout = c.GetSolverTimeout()
	return r
}
