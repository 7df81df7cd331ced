// Package procgroup starts external media tools in their own process group
// and terminates the whole group on teardown. yt-dlp and ffmpeg both fork
// helper processes; killing only the tracked parent PID leaks children.
package procgroup

import (
	"errors"
	"os/exec"
	"time"
)

// ErrKillTimeout is returned when the process group survived both SIGTERM and
// the SIGKILL escalation within the allowed wait.
var ErrKillTimeout = errors.New("procgroup: process group did not exit")

// Setup configures cmd to start as the leader of a new process group.
// Must be called before cmd.Start; required for Terminate to reap the group.
func Setup(cmd *exec.Cmd) {
	setup(cmd)
}

// Terminate sends SIGTERM to the process group led by pid, waits up to grace
// for exited to be closed, then escalates to SIGKILL and waits up to wait.
// The caller owns cmd.Wait and must close exited when it returns. A pid whose
// group is already gone is not an error.
func Terminate(pid int, exited <-chan struct{}, grace, wait time.Duration) error {
	if pid <= 0 {
		return nil
	}
	return terminate(pid, exited, grace, wait)
}
