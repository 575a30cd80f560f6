// Package tactile runs external programs for the pipeline, chiefly the
// solver's Allrun script, and reports what happened as data.
//
// An exit status is a result, not an error: a script that ran and exited 1 is
// Success with ExitCode 1. Captured output is bounded per stream, and the
// child only sees allow-listed host variables.
package tactile

import (
	"strings"
	"time"
)

// Command is one process invocation.
type Command struct {
	Binary string   `json:"binary"`
	Args   []string `json:"args,omitempty"`

	// Dir defaults to the executor's WorkDir.
	Dir string `json:"dir,omitempty"`

	// Env is appended after the allow-listed host variables (KEY=VALUE).
	Env []string `json:"env,omitempty"`

	// Timeout and MaxOutputBytes override the executor defaults when non-zero.
	Timeout        time.Duration `json:"timeout,omitempty"`
	MaxOutputBytes int64         `json:"max_output_bytes,omitempty"`

	RunID string `json:"run_id,omitempty"`
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Binary}, c.Args...), " ")
}

// ExecutionResult describes a finished command.
type ExecutionResult struct {
	// Success is false only when the process could not be run at all.
	Success  bool `json:"success"`
	ExitCode int  `json:"exit_code"` // -1 when unknown

	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Combined string `json:"combined"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	Killed     bool   `json:"killed"`
	KillReason string `json:"kill_reason,omitempty"`

	Truncated      bool  `json:"truncated"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	Usage *ResourceUsage `json:"usage,omitempty"`
	Error string         `json:"error,omitempty"`

	// Command is the command after executor defaults were applied.
	Command Command `json:"command"`
}

// IsError reports an infrastructure failure.
func (r *ExecutionResult) IsError() bool { return !r.Success || r.Error != "" }

// IsNonZeroExit reports a command that ran and exited non-zero.
func (r *ExecutionResult) IsNonZeroExit() bool { return r.Success && r.ExitCode != 0 }

// Output prefers the combined stream.
func (r *ExecutionResult) Output() string {
	if r.Combined != "" {
		return r.Combined
	}
	return joinStreams(r.Stdout, r.Stderr)
}

func joinStreams(stdout, stderr string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	}
	return stdout + "\n" + stderr
}

// ResourceUsage is what the OS reports for the finished process.
type ResourceUsage struct {
	UserTime    time.Duration `json:"user_time"`
	SystemTime  time.Duration `json:"system_time"`
	MaxRSSBytes int64         `json:"max_rss_bytes"`
}

// CPUTime is user plus system time.
func (u ResourceUsage) CPUTime() time.Duration { return u.UserTime + u.SystemTime }

// ExecutorCapabilities describes an executor.
type ExecutorCapabilities struct {
	Name              string        `json:"name"`
	Platform          string        `json:"platform"`
	CollectsUsage     bool          `json:"collects_usage"`
	KillsProcessGroup bool          `json:"kills_process_group"`
	DefaultTimeout    time.Duration `json:"default_timeout"` // 0 = none
	MaxTimeout        time.Duration `json:"max_timeout"`     // 0 = none
}

// AuditEventType is the lifecycle stage of an AuditEvent.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent is emitted once when a command starts and once when it ends.
// Result is nil on start events.
type AuditEvent struct {
	Type    AuditEventType   `json:"type"`
	Time    time.Time        `json:"time"`
	RunID   string           `json:"run_id,omitempty"`
	Command Command          `json:"command"`
	Result  *ExecutionResult `json:"result,omitempty"`
}

// ExecutorConfig holds executor-wide defaults.
type ExecutorConfig struct {
	WorkDir string `json:"work_dir"`

	// DefaultTimeout of zero lets commands run until they exit.
	DefaultTimeout time.Duration `json:"default_timeout"`
	MaxTimeout     time.Duration `json:"max_timeout"`

	// AllowedEnv names host variables passed to the child. A trailing "*"
	// matches a prefix, e.g. "FOAM_*".
	AllowedEnv []string `json:"allowed_env"`

	MaxOutputBytes int64 `json:"max_output_bytes"`
	CollectUsage   bool  `json:"collect_usage"`
}

// DefaultExecutorConfig passes the OpenFOAM and MPI environment through and
// sets no timeout; solver runs can take hours.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		WorkDir:        ".",
		AllowedEnv:     []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "LD_LIBRARY_PATH", "WM_*", "FOAM_*", "MPI_*"},
		MaxOutputBytes: 10 << 20,
		CollectUsage:   true,
	}
}

// resolve fills the command's zero fields from the config and clamps the
// timeout to MaxTimeout.
func (c ExecutorConfig) resolve(cmd Command) Command {
	if cmd.Dir == "" {
		cmd.Dir = c.WorkDir
	}
	if cmd.Timeout == 0 {
		cmd.Timeout = c.DefaultTimeout
	}
	if c.MaxTimeout > 0 && (cmd.Timeout == 0 || cmd.Timeout > c.MaxTimeout) {
		cmd.Timeout = c.MaxTimeout
	}
	if cmd.MaxOutputBytes == 0 {
		cmd.MaxOutputBytes = c.MaxOutputBytes
	}
	cmd.Args = append([]string(nil), cmd.Args...)
	return cmd
}
