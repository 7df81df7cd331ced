package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"vr-gallery/internal/platform/metrics"
	"vr-gallery/internal/platform/procgroup"
)

// Config tunes the session manager. Zero values take the documented defaults.
type Config struct {
	// DataDir is the root under which each session gets its per-content
	// output directory.
	DataDir string

	// ReadyTimeout bounds how long a Starting session may take to produce its
	// first playlist before it is torn down. Default 30s.
	ReadyTimeout time.Duration

	// PollInterval is the playlist polling cadence during Starting.
	// Default 200ms.
	PollInterval time.Duration

	// ResolveTimeout bounds one locator invocation. Default 20s.
	ResolveTimeout time.Duration

	// KillGrace is the SIGTERM-to-SIGKILL escalation grace on teardown.
	// Default 3s.
	KillGrace time.Duration

	// IdleTimeout is how long a Ready session may go without delivery access
	// before the reaper stops it. Zero disables reaping.
	IdleTimeout time.Duration

	// ReapInterval is the reaper sweep cadence. Default 30s.
	ReapInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DataDir == "" {
		c.DataDir = "streams"
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 20 * time.Second
	}
	if c.KillGrace <= 0 {
		c.KillGrace = 3 * time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
	return c
}

// Manager supervises transcoding sessions: it owns the registry, runs one
// supervisor goroutine per session, and is the only component that transitions
// sessions or touches their processes and directories.
type Manager struct {
	cfg      Config
	locator  Locator
	writer   Writer
	registry *Registry
	log      *slog.Logger
	metrics  *metrics.Metrics

	wg sync.WaitGroup // live supervisor goroutines
}

// NewManager returns a Manager using the given locator and writer. Metrics
// may be nil to disable recording (e.g. in tests).
func NewManager(cfg Config, locator Locator, writer Writer, log *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		locator:  locator,
		writer:   writer,
		registry: NewRegistry(),
		log:      log,
		metrics:  m,
	}
}

// segmentNameRe matches the only segment names the writer produces. Anything
// else (traversal attempts included) is treated as not found.
var segmentNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+\.ts$`)

// Playlist ensures a session exists for id, waits for it to become ready, and
// returns the current playlist bytes. The wait is bounded by ReadyTimeout on
// top of ctx so a stuck session yields an error rather than a hung client.
func (m *Manager) Playlist(ctx context.Context, id ContentID) ([]byte, error) {
	s := m.acquire(id)

	wctx, cancel := context.WithTimeout(ctx, m.cfg.ReadyTimeout)
	defer cancel()
	if err := s.AwaitReady(wctx); err != nil {
		if wctx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionFailed, ErrReadinessTimeout)
		}
		return nil, err
	}

	b, err := os.ReadFile(filepath.Join(s.OutputDir, PlaylistName))
	if err != nil {
		// Ready but unreadable means teardown won the race; report the
		// session, not the file.
		return nil, s.failureErr()
	}
	s.Touch()
	m.metrics.IncPlaylistsServed()
	return b, nil
}

// Segment opens the named media segment for id. Only an existing session is
// consulted; a segment request never starts a pipeline. Rotated-out or never
// written names yield ErrSegmentNotFound regardless of session state.
func (m *Manager) Segment(id ContentID, name string) (io.ReadCloser, error) {
	if !segmentNameRe.MatchString(name) {
		return nil, ErrSegmentNotFound
	}
	s, ok := m.registry.Get(id)
	if !ok {
		return nil, ErrSegmentNotFound
	}
	f, err := os.Open(filepath.Join(s.OutputDir, name))
	if err != nil {
		return nil, ErrSegmentNotFound
	}
	s.Touch()
	m.metrics.IncSegmentsServed()
	return f, nil
}

// Stop requests teardown of the session for id. It reports whether a live
// session existed; stopping an absent session has no side effects.
func (m *Manager) Stop(id ContentID) bool {
	s, ok := m.registry.Get(id)
	if !ok {
		return false
	}
	if s.beginDrain(nil) {
		s.log.Info("stop requested")
	}
	return true
}

// Await blocks until the session for id is fully terminated, or returns
// immediately when none exists. Used by tests and shutdown paths that need
// the cleanup ordering guarantee.
func (m *Manager) Await(ctx context.Context, id ContentID) error {
	s, ok := m.registry.Get(id)
	if !ok {
		return nil
	}
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveSessions returns the number of non-terminated sessions.
func (m *Manager) ActiveSessions() int {
	return m.registry.Len()
}

// acquire returns the live session for id, creating and supervising a new one
// when none exists. Because terminated sessions are unregistered only after
// their directory is gone, a fresh generation can never race a prior writer
// on the same path.
func (m *Manager) acquire(id ContentID) *Session {
	s, created := m.registry.GetOrCreate(id, func() *Session {
		return newSession(id, filepath.Join(m.cfg.DataDir, string(id)), m.log)
	})
	if created {
		m.metrics.IncSessionsStarted()
		s.log.Info("session starting", slog.String("output_dir", s.OutputDir))
		m.wg.Add(1)
		go m.supervise(s)
	}
	return s
}

// supervise owns one session's whole lifecycle: launch, readiness detection,
// and teardown. It is the only goroutine that performs teardown, so kill,
// directory removal, and registry cleanup happen exactly once and in order.
func (m *Manager) supervise(s *Session) {
	defer m.wg.Done()

	if err := m.launch(s); err != nil {
		s.log.Warn("session startup failed", slog.String("error", err.Error()))
		s.beginDrain(err)
	} else {
		m.watchReadiness(s)
	}

	<-s.stopping
	m.teardown(s)
}

// launch resolves upstream URLs and spawns the writer. Any failure aborts
// startup before or at the spawn; nothing survives for teardown beyond an
// (possibly created) output directory.
func (m *Manager) launch(s *Session) error {
	rctx, cancel := context.WithTimeout(context.Background(), m.cfg.ResolveTimeout)
	defer cancel()

	streams, err := m.locator.Locate(rctx, s.ContentID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	cmd, err := m.writer.Start(streams, s.OutputDir)
	if err != nil {
		return err
	}
	s.attach(cmd)
	s.log.Info("transcoder spawned", slog.Int("pid", cmd.Process.Pid))

	go func() {
		waitErr := cmd.Wait()
		close(s.exited)
		cause := fmt.Errorf("transcoder exited before ready")
		if waitErr != nil {
			cause = fmt.Errorf("transcoder exited before ready: %v", waitErr)
		}
		if s.beginDrain(cause) {
			s.log.Info("transcoder exited", slog.Any("error", waitErr))
		}
	}()

	return nil
}

// watchReadiness polls the output directory until the playlist has content,
// the readiness bound expires, or draining begins. Polling is the one
// cross-process readiness signal the writer offers.
func (m *Manager) watchReadiness(s *Session) {
	playlist := filepath.Join(s.OutputDir, PlaylistName)
	deadline := time.NewTimer(m.cfg.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(m.cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if fi, err := os.Stat(playlist); err == nil && fi.Size() > 0 {
				if s.markReady() {
					s.log.Info("session ready",
						slog.Duration("startup", time.Since(s.CreatedAt)))
				}
				return
			}
		case <-deadline.C:
			s.beginDrain(ErrReadinessTimeout)
			return
		case <-s.stopping:
			return
		}
	}
}

// teardown reaps the process group, removes the output directory, clears the
// registry entry, and marks the session Terminated, in that order. Directory
// removal failures are logged, not fatal. The registry entry outlives the
// directory so no new generation starts against a half-removed path.
func (m *Manager) teardown(s *Session) {
	s.log.Info("session draining")

	if pid := s.writerPID(); pid > 0 {
		if err := procgroup.Terminate(pid, s.exited, m.cfg.KillGrace, 2*m.cfg.KillGrace); err != nil {
			s.log.Warn("process group termination", slog.String("error", err.Error()))
		}
	}

	if err := os.RemoveAll(s.OutputDir); err != nil {
		s.log.Warn("output dir removal failed", slog.String("error", err.Error()))
	}

	m.registry.Remove(s.ContentID, s)
	s.finishTerminate()

	if !s.everReady() {
		m.metrics.IncSessionsFailed()
	}
	s.log.Info("session terminated")
}

// Run drives the idle reaper until ctx is cancelled. With IdleTimeout zero it
// just waits for cancellation.
func (m *Manager) Run(ctx context.Context) error {
	if m.cfg.IdleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}

	tick := time.NewTicker(m.cfg.ReapInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			m.reapIdle(time.Now().UTC())
		}
	}
}

// reapIdle stops Ready sessions whose last delivery access is older than the
// idle window. Starting sessions are left to the readiness bound.
func (m *Manager) reapIdle(now time.Time) int {
	n := 0
	for _, s := range m.registry.Snapshot() {
		if s.State() != StateReady {
			continue
		}
		if now.Sub(s.LastAccessed()) <= m.cfg.IdleTimeout {
			continue
		}
		if s.beginDrain(nil) {
			s.log.Info("session reaped idle",
				slog.Time("last_accessed", s.LastAccessed()))
			m.metrics.IncSessionsReaped()
			n++
		}
	}
	return n
}

// Shutdown drains every live session and waits for their supervisors to
// finish teardown, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, s := range m.registry.Snapshot() {
		s.beginDrain(nil)
	}

	doneCh := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
