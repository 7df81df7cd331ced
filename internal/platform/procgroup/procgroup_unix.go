//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"time"
)

func setup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	// The child becomes a group leader with PGID = PID, so signalling -pid
	// reaches every descendant it forks.
	cmd.SysProcAttr.Setpgid = true
}

func terminate(pid int, exited <-chan struct{}, grace, wait time.Duration) error {
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		return err
	}

	select {
	case <-exited:
		return nil
	case <-time.After(grace):
	}

	if err := signalGroup(pid, syscall.SIGKILL); err != nil {
		return err
	}

	select {
	case <-exited:
		return nil
	case <-time.After(wait):
		return ErrKillTimeout
	}
}

// signalGroup signals the whole group, falling back to the single pid when
// group delivery is not permitted. ESRCH means everything already exited.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if err == nil || err == syscall.ESRCH {
		return nil
	}
	if err := syscall.Kill(pid, sig); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}
