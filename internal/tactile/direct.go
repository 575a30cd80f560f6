package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"cfdwind/internal/logging"
)

const executorName = "direct"

// pipeGrace bounds the wait for output pipes once the process group is gone.
const pipeGrace = 5 * time.Second

// DirectExecutor runs commands on the host.
type DirectExecutor struct {
	config ExecutorConfig

	mu    sync.RWMutex
	audit AuditFunc
}

// NewDirectExecutor returns an executor with DefaultExecutorConfig.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig returns an executor with config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	logging.SolverDebug("Direct executor: timeout=%s max_output=%d env=%v",
		config.DefaultTimeout, config.MaxOutputBytes, config.AllowedEnv)
	return &DirectExecutor{config: config}
}

// SetAuditCallback installs fn for all later executions; nil removes it.
func (e *DirectExecutor) SetAuditCallback(fn AuditFunc) {
	e.mu.Lock()
	e.audit = fn
	e.mu.Unlock()
}

func (e *DirectExecutor) emit(typ AuditEventType, cmd Command, res *ExecutionResult) {
	e.mu.RLock()
	fn := e.audit
	e.mu.RUnlock()
	if fn == nil {
		return
	}
	fn(AuditEvent{Type: typ, Time: time.Now(), RunID: cmd.RunID, Command: cmd, Result: res})
}

func (e *DirectExecutor) Capabilities() ExecutorCapabilities {
	unix := runtime.GOOS != "windows"
	return ExecutorCapabilities{
		Name:              executorName,
		Platform:          runtime.GOOS,
		CollectsUsage:     unix && e.config.CollectUsage,
		KillsProcessGroup: unix,
		DefaultTimeout:    e.config.DefaultTimeout,
		MaxTimeout:        e.config.MaxTimeout,
	}
}

func (e *DirectExecutor) Validate(cmd Command) error {
	switch {
	case cmd.Binary == "":
		return errors.New("binary is required")
	case cmd.Timeout < 0:
		return fmt.Errorf("negative timeout %s", cmd.Timeout)
	case cmd.MaxOutputBytes < 0:
		return fmt.Errorf("negative output limit %d", cmd.MaxOutputBytes)
	}
	return nil
}

// Execute runs cmd and waits for it. Cancelling ctx or hitting the timeout
// kills the whole process group and is reported as Killed.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	log := logging.WithRun(logging.CategorySolver, cmd.RunID)
	if err := e.Validate(cmd); err != nil {
		log.Warn("Rejected command %q: %v", cmd.String(), err)
		return nil, err
	}
	cmd = e.config.resolve(cmd)
	log.Info("Executing: %s (dir=%s)", cmd.String(), cmd.Dir)

	res := &ExecutionResult{ExitCode: -1, Command: cmd}
	e.emit(AuditEventStart, cmd, nil)

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
	}
	defer cancel()

	proc := exec.CommandContext(runCtx, cmd.Binary, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = e.environment(cmd.Env)
	setupProcessGroup(proc)
	proc.Cancel = func() error { return killProcessGroup(proc) }
	proc.WaitDelay = pipeGrace

	var stdout, stderr bytes.Buffer
	out := &cappedWriter{w: &stdout, limit: cmd.MaxOutputBytes}
	errw := &cappedWriter{w: &stderr, limit: cmd.MaxOutputBytes}
	proc.Stdout, proc.Stderr = out, errw

	res.StartedAt = time.Now()
	err := proc.Run()
	res.FinishedAt = time.Now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)

	res.Stdout, res.Stderr = stdout.String(), stderr.String()
	res.Combined = joinStreams(res.Stdout, res.Stderr)
	if dropped := out.dropped + errw.dropped; dropped > 0 {
		res.Truncated, res.TruncatedBytes = true, dropped
		log.Warn("Output truncated, %d bytes dropped", dropped)
	}

	if !e.classify(res, err, runCtx.Err(), proc) {
		log.Error("Could not run %s: %v", cmd.Binary, err)
		e.emit(AuditEventError, cmd, res)
		return res, nil
	}

	typ := AuditEventComplete
	if res.Killed {
		typ = AuditEventKilled
		log.Warn("Killed %s: %s", cmd.Binary, res.KillReason)
	}
	e.emit(typ, cmd, res)
	log.Info("Finished %s: exit=%d duration=%s output=%dB", cmd.Binary, res.ExitCode, res.Duration, len(res.Combined))
	return res, nil
}

// classify fills the outcome fields of res and reports whether the process
// actually ran.
func (e *DirectExecutor) classify(res *ExecutionResult, runErr, ctxErr error, proc *exec.Cmd) bool {
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		res.ExitCode = 0
	case errors.Is(ctxErr, context.DeadlineExceeded):
		res.Killed = true
		res.KillReason = fmt.Sprintf("timeout after %s", res.Command.Timeout)
	case errors.Is(ctxErr, context.Canceled):
		res.Killed = true
		res.KillReason = "context canceled"
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.Error = runErr.Error()
		return false
	}
	res.Success = true
	if res.Killed && proc.ProcessState != nil {
		res.ExitCode = proc.ProcessState.ExitCode()
	}
	if e.config.CollectUsage {
		res.Usage = processUsage(proc)
	}
	return true
}

// environment returns the allow-listed host variables followed by extra.
func (e *DirectExecutor) environment(extra []string) []string {
	host := os.Environ()
	var env []string
	for _, name := range e.config.AllowedEnv {
		prefix, wildcard := strings.CutSuffix(name, "*")
		if !wildcard {
			prefix = name + "="
		}
		for _, kv := range host {
			if strings.HasPrefix(kv, prefix) && (wildcard || len(kv) > len(prefix)) {
				env = append(env, kv)
			}
		}
	}
	return append(env, extra...)
}

// cappedWriter keeps the first limit bytes and counts the rest. It never
// reports a short write, so the child is not killed by SIGPIPE.
type cappedWriter struct {
	w       io.Writer
	limit   int64
	written int64
	dropped int64
}

func (c *cappedWriter) Write(p []byte) (int, error) {
	keep := min(int64(len(p)), max(c.limit-c.written, 0))
	c.dropped += int64(len(p)) - keep
	if keep == 0 {
		return len(p), nil
	}
	n, err := c.w.Write(p[:keep])
	c.written += int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}
