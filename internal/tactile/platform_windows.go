//go:build windows

package tactile

import (
	"os/exec"
	"strconv"
)

func processUsage(*exec.Cmd) *ResourceUsage { return nil }

func setupProcessGroup(*exec.Cmd) {}

// killProcessGroup kills the process tree with taskkill.
func killProcessGroup(proc *exec.Cmd) error {
	if proc.Process == nil {
		return nil
	}
	if err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(proc.Process.Pid)).Run(); err != nil {
		return proc.Process.Kill()
	}
	return nil
}
