//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func startStub(t *testing.T, script string) (*exec.Cmd, chan struct{}) {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", script)
	Setup(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start stub: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	return cmd, exited
}

func TestTerminate_killsGroupChildren(t *testing.T) {
	// The shell forks a sleeping child; both must die with the group.
	cmd, exited := startStub(t, "sleep 30 & wait")

	if err := Terminate(cmd.Process.Pid, exited, 2*time.Second, 2*time.Second); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(3 * time.Second):
		t.Fatal("process did not exit after Terminate")
	}

	// The group leader must be gone; ESRCH confirms nothing is left to signal.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.Signal(0)); err != syscall.ESRCH {
		t.Errorf("expected empty process group (ESRCH), got %v", err)
	}
}

func TestTerminate_escalatesToKill(t *testing.T) {
	// Stub traps SIGTERM, so only the SIGKILL escalation can end it.
	cmd, exited := startStub(t, "trap '' TERM; sleep 30")

	if err := Terminate(cmd.Process.Pid, exited, 100*time.Millisecond, 3*time.Second); err != nil {
		t.Fatalf("Terminate with escalation: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("process survived SIGKILL escalation")
	}
}

func TestTerminate_alreadyExited(t *testing.T) {
	cmd, exited := startStub(t, "exit 0")
	<-exited

	if err := Terminate(cmd.Process.Pid, exited, time.Second, time.Second); err != nil {
		t.Errorf("Terminate on exited process should be nil, got %v", err)
	}
}

func TestTerminate_zeroPid(t *testing.T) {
	if err := Terminate(0, nil, time.Second, time.Second); err != nil {
		t.Errorf("Terminate(0) should be a no-op, got %v", err)
	}
}
