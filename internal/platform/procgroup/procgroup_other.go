//go:build !unix

package procgroup

import (
	"os"
	"os/exec"
	"time"
)

func setup(cmd *exec.Cmd) {
	// No process groups here; Terminate falls back to the root process only.
}

func terminate(pid int, exited <-chan struct{}, grace, wait time.Duration) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	_ = proc.Signal(os.Interrupt)

	select {
	case <-exited:
		return nil
	case <-time.After(grace):
	}

	_ = proc.Kill()

	select {
	case <-exited:
		return nil
	case <-time.After(wait):
		return ErrKillTimeout
	}
}
