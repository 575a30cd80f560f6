//go:build !windows

package tactile

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

func processUsage(proc *exec.Cmd) *ResourceUsage {
	if proc.ProcessState == nil {
		return nil
	}
	ru, ok := proc.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok || ru == nil {
		return nil
	}
	return &ResourceUsage{
		UserTime:    time.Duration(ru.Utime.Nano()),
		SystemTime:  time.Duration(ru.Stime.Nano()),
		MaxRSSBytes: maxRSSBytes(ru),
	}
}

// setupProcessGroup puts the child in its own group so mpirun ranks and
// other grandchildren are killed with it.
func setupProcessGroup(proc *exec.Cmd) {
	if proc.SysProcAttr == nil {
		proc.SysProcAttr = &syscall.SysProcAttr{}
	}
	proc.SysProcAttr.Setpgid = true
}

func killProcessGroup(proc *exec.Cmd) error {
	if proc.Process == nil {
		return nil
	}
	if pgid, err := syscall.Getpgid(proc.Process.Pid); err == nil && pgid > 0 {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
	if err := proc.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
