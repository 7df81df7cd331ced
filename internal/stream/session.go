package stream

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the live state of one transcoding pipeline for one ContentID.
// It exclusively owns its child process and its output directory. All state
// transitions are driven by the manager's supervisor goroutine plus the
// drain triggers funnelled through beginDrain; the order
// Starting -> Ready -> Draining -> Terminated (Ready optional) is never
// violated and Terminated is absorbing.
type Session struct {
	// ContentID keys this session in the registry.
	ContentID ContentID

	// ID distinguishes generations of sessions for the same content in logs.
	ID string

	// OutputDir is the per-content directory owned by this session for its
	// whole lifetime. Removed on termination.
	OutputDir string

	// CreatedAt is when the session entered Starting.
	CreatedAt time.Time

	log *slog.Logger

	mu         sync.Mutex
	state      State
	lastAccess time.Time
	cmd        *exec.Cmd
	failure    error // why the session never became ready; nil after Ready

	ready    chan struct{} // closed on Starting -> Ready
	stopping chan struct{} // closed when draining begins
	exited   chan struct{} // closed once the writer process has been reaped
	done     chan struct{} // closed on Terminated
}

func newSession(id ContentID, outputDir string, log *slog.Logger) *Session {
	now := time.Now().UTC()
	s := &Session{
		ContentID:  id,
		ID:         uuid.NewString(),
		OutputDir:  outputDir,
		CreatedAt:  now,
		lastAccess: now,
		state:      StateStarting,
		ready:      make(chan struct{}),
		stopping:   make(chan struct{}),
		exited:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.log = log.With(
		slog.String("content_id", string(id)),
		slog.String("session_id", s.ID),
	)
	return s
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Touch records a delivery access. Every successful playlist or segment read
// goes through here so the idle reaper only stops sessions nobody consumes.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now().UTC()
}

// LastAccessed returns the time of the most recent delivery access.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Done is closed once the session is Terminated: processes reaped and output
// directory removed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// AwaitReady blocks until the session becomes Ready, fails, or ctx expires.
// A session that entered draining before readiness yields an error wrapping
// ErrSessionFailed plus the recorded cause.
func (s *Session) AwaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.stopping:
		return s.failureErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attach hands ownership of the started writer process to the session.
func (s *Session) attach(cmd *exec.Cmd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd = cmd
}

// writerPID returns the writer's process id, or 0 when no process is owned.
func (s *Session) writerPID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// markReady transitions Starting -> Ready. Reports false if the session left
// Starting first.
func (s *Session) markReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStarting {
		return false
	}
	s.state = StateReady
	close(s.ready)
	return true
}

// everReady reports whether the session reached Ready at some point.
func (s *Session) everReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// beginDrain moves the session into Draining and wakes the supervisor to run
// teardown. cause records why a not-yet-ready session failed; it is ignored
// once Ready has been reached. Reports false if draining already began.
func (s *Session) beginDrain(cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDraining || s.state == StateTerminated {
		return false
	}
	if s.state == StateStarting && cause != nil {
		s.failure = cause
	}
	s.state = StateDraining
	close(s.stopping)
	return true
}

// finishTerminate transitions Draining -> Terminated. Called exactly once by
// the supervisor after process reaping and directory removal.
func (s *Session) finishTerminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateTerminated
	s.cmd = nil
	close(s.done)
}

// failureErr builds the error surfaced to readiness waiters.
func (s *Session) failureErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return errors.Join(ErrSessionFailed, s.failure)
	}
	return ErrSessionFailed
}
