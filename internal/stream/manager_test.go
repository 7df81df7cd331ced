//go:build unix

package stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"vr-gallery/internal/platform/procgroup"
)

// locatorFunc adapts a function to the Locator interface.
type locatorFunc func(ctx context.Context, id ContentID) (Streams, error)

func (f locatorFunc) Locate(ctx context.Context, id ContentID) (Streams, error) {
	return f(ctx, id)
}

func okLocator() Locator {
	return locatorFunc(func(ctx context.Context, id ContentID) (Streams, error) {
		return Streams{VideoURL: "https://example.com/v", AudioURL: "https://example.com/a"}, nil
	})
}

// stubWriter stands in for ffmpeg with a shell script parameterized by the
// session's output directory.
type stubWriter struct {
	mu     sync.Mutex
	starts int
	script func(dir string) string
}

func (w *stubWriter) Start(streams Streams, dir string) (*exec.Cmd, error) {
	w.mu.Lock()
	w.starts++
	w.mu.Unlock()

	cmd := exec.Command("/bin/sh", "-c", w.script(dir))
	procgroup.Setup(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	return cmd, nil
}

func (w *stubWriter) startCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.starts
}

// readyAfter writes the playlist after the given delay, then lingers like a
// live transcoder until killed.
func readyAfter(delay string) func(dir string) string {
	return func(dir string) string {
		playlist := filepath.Join(dir, PlaylistName)
		return fmt.Sprintf("sleep %s; printf '#EXTM3U\\n#EXTINF:4.0,\\nseg_00001.ts\\n' > %s; sleep 60", delay, playlist)
	}
}

func neverReady(dir string) string {
	return "sleep 60"
}

func testManager(t *testing.T, cfg Config, loc Locator, w Writer) *Manager {
	t.Helper()
	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 3 * time.Second
	}
	if cfg.KillGrace == 0 {
		cfg.KillGrace = 500 * time.Millisecond
	}
	m := NewManager(cfg, loc, w, testLogger(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func awaitTerminated(t *testing.T, m *Manager, id ContentID) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Await(ctx, id); err != nil {
		t.Fatalf("session %q did not terminate: %v", id, err)
	}
}

func TestManager_Playlist_blocks_until_ready(t *testing.T) {
	w := &stubWriter{script: readyAfter("0.3")}
	m := testManager(t, Config{}, okLocator(), w)

	start := time.Now()
	b, err := m.Playlist(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Errorf("Playlist returned before the playlist existed (%v)", elapsed)
	}
	if string(b[:7]) != "#EXTM3U" {
		t.Errorf("unexpected playlist content: %q", b)
	}

	s, ok := m.registry.Get("abc")
	if !ok {
		t.Fatal("session should be registered")
	}
	if got := s.State(); got != StateReady {
		t.Errorf("expected ready state, got %v", got)
	}
}

func TestManager_concurrent_requests_share_one_session(t *testing.T) {
	w := &stubWriter{script: readyAfter("0.05")}
	m := testManager(t, Config{}, okLocator(), w)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Playlist(context.Background(), "abc")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if n := w.startCount(); n != 1 {
		t.Errorf("expected exactly 1 writer spawn, got %d", n)
	}
	if n := m.ActiveSessions(); n != 1 {
		t.Errorf("expected 1 registered session, got %d", n)
	}
}

func TestManager_two_requests_close_apart(t *testing.T) {
	w := &stubWriter{script: readyAfter("0.05")}
	m := testManager(t, Config{}, okLocator(), w)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = m.Playlist(context.Background(), "abc")
	}()
	time.Sleep(5 * time.Millisecond)
	go func() {
		defer wg.Done()
		_, _ = m.Playlist(context.Background(), "abc")
	}()
	wg.Wait()

	if n := w.startCount(); n != 1 {
		t.Errorf("expected 1 writer spawn, got %d", n)
	}

	if !m.Stop("abc") {
		t.Fatal("Stop should report a live session")
	}
	awaitTerminated(t, m, "abc")
	if _, ok := m.registry.Get("abc"); ok {
		t.Error("no residual registry entry expected after stop")
	}
}

func TestManager_stop_cleans_up_everything(t *testing.T) {
	w := &stubWriter{script: readyAfter("0.05")}
	m := testManager(t, Config{}, okLocator(), w)

	if _, err := m.Playlist(context.Background(), "abc"); err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	s, _ := m.registry.Get("abc")
	pid := s.writerPID()
	if pid <= 0 {
		t.Fatal("expected a live writer pid")
	}

	if !m.Stop("abc") {
		t.Fatal("Stop should report stopped")
	}
	awaitTerminated(t, m, "abc")

	if got := s.State(); got != StateTerminated {
		t.Errorf("expected terminated, got %v", got)
	}
	if _, err := os.Stat(s.OutputDir); !os.IsNotExist(err) {
		t.Errorf("output dir should be removed, stat err=%v", err)
	}
	if _, ok := m.registry.Get("abc"); ok {
		t.Error("registry entry should be cleared")
	}
	// The entire process group must be gone.
	if err := syscall.Kill(-pid, syscall.Signal(0)); err != syscall.ESRCH {
		t.Errorf("expected empty process group, kill(0) err=%v", err)
	}
}

func TestManager_stop_absent_session(t *testing.T) {
	w := &stubWriter{script: readyAfter("0.05")}
	m := testManager(t, Config{}, okLocator(), w)

	if m.Stop("nope") {
		t.Error("Stop on absent session should report false")
	}
	if n := w.startCount(); n != 0 {
		t.Errorf("Stop must not spawn anything, got %d spawns", n)
	}
}

func TestManager_locator_failure_spawns_nothing(t *testing.T) {
	loc := locatorFunc(func(ctx context.Context, id ContentID) (Streams, error) {
		return Streams{}, fmt.Errorf("%w: audio: no formats", ErrResolution)
	})
	w := &stubWriter{script: readyAfter("0.05")}
	m := testManager(t, Config{}, loc, w)

	_, err := m.Playlist(context.Background(), "xyz")
	if !errors.Is(err, ErrSessionFailed) {
		t.Errorf("expected ErrSessionFailed, got %v", err)
	}
	if !errors.Is(err, ErrResolution) {
		t.Errorf("error should carry the resolution cause, got %v", err)
	}
	if n := w.startCount(); n != 0 {
		t.Errorf("no writer may be spawned after resolution failure, got %d", n)
	}
	awaitTerminated(t, m, "xyz")
	if _, ok := m.registry.Get("xyz"); ok {
		t.Error("failed session should leave no registry entry")
	}
}

func TestManager_readiness_timeout_tears_down(t *testing.T) {
	w := &stubWriter{script: neverReady}
	m := testManager(t, Config{ReadyTimeout: 150 * time.Millisecond}, okLocator(), w)

	_, err := m.Playlist(context.Background(), "abc")
	if !errors.Is(err, ErrSessionFailed) {
		t.Errorf("expected ErrSessionFailed, got %v", err)
	}
	if !errors.Is(err, ErrReadinessTimeout) {
		t.Errorf("expected ErrReadinessTimeout cause, got %v", err)
	}

	awaitTerminated(t, m, "abc")
	if _, ok := m.registry.Get("abc"); ok {
		t.Error("stuck session must not linger in the registry")
	}
}

func TestManager_writer_exit_drains_session(t *testing.T) {
	w := &stubWriter{script: func(dir string) string {
		playlist := filepath.Join(dir, PlaylistName)
		return fmt.Sprintf("printf '#EXTM3U\\n' > %s; sleep 0.2", playlist)
	}}
	m := testManager(t, Config{}, okLocator(), w)

	if _, err := m.Playlist(context.Background(), "abc"); err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	s, _ := m.registry.Get("abc")

	awaitTerminated(t, m, "abc")
	if got := s.State(); got != StateTerminated {
		t.Errorf("expected terminated after writer exit, got %v", got)
	}
	if _, err := os.Stat(s.OutputDir); !os.IsNotExist(err) {
		t.Error("output dir should be removed after writer exit")
	}
}

func TestManager_Segment(t *testing.T) {
	w := &stubWriter{script: readyAfter("0.05")}
	m := testManager(t, Config{}, okLocator(), w)

	if _, err := m.Playlist(context.Background(), "abc"); err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	s, _ := m.registry.Get("abc")
	if err := os.WriteFile(filepath.Join(s.OutputDir, "seg_00001.ts"), []byte("segdata"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("existing_segment", func(t *testing.T) {
		before := s.LastAccessed()
		time.Sleep(time.Millisecond)
		f, err := m.Segment("abc", "seg_00001.ts")
		if err != nil {
			t.Fatalf("Segment: %v", err)
		}
		defer f.Close()
		if !s.LastAccessed().After(before) {
			t.Error("segment read should touch lastAccessedAt")
		}
	})

	t.Run("rotated_out_segment", func(t *testing.T) {
		if _, err := m.Segment("abc", "seg_99999.ts"); !errors.Is(err, ErrSegmentNotFound) {
			t.Errorf("expected ErrSegmentNotFound, got %v", err)
		}
	})

	t.Run("traversal_name_rejected", func(t *testing.T) {
		for _, name := range []string{"../secret.ts", "a/b.ts", "seg_00001.mp4", ".."} {
			if _, err := m.Segment("abc", name); !errors.Is(err, ErrSegmentNotFound) {
				t.Errorf("name %q: expected ErrSegmentNotFound, got %v", name, err)
			}
		}
	})

	t.Run("absent_session", func(t *testing.T) {
		if _, err := m.Segment("ghost", "seg_00001.ts"); !errors.Is(err, ErrSegmentNotFound) {
			t.Errorf("expected ErrSegmentNotFound, got %v", err)
		}
	})
}

func TestManager_reapIdle(t *testing.T) {
	w := &stubWriter{script: readyAfter("0.05")}
	m := testManager(t, Config{IdleTimeout: 50 * time.Millisecond}, okLocator(), w)

	if _, err := m.Playlist(context.Background(), "abc"); err != nil {
		t.Fatalf("Playlist: %v", err)
	}

	if n := m.reapIdle(time.Now().UTC()); n != 0 {
		t.Errorf("freshly accessed session must not be reaped, got %d", n)
	}

	time.Sleep(80 * time.Millisecond)
	if n := m.reapIdle(time.Now().UTC()); n != 1 {
		t.Errorf("expected 1 reaped session, got %d", n)
	}
	awaitTerminated(t, m, "abc")
}

func TestManager_Shutdown_drains_all(t *testing.T) {
	w := &stubWriter{script: readyAfter("0.05")}
	m := testManager(t, Config{}, okLocator(), w)

	for _, id := range []ContentID{"one", "two"} {
		if _, err := m.Playlist(context.Background(), id); err != nil {
			t.Fatalf("Playlist(%s): %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := m.ActiveSessions(); n != 0 {
		t.Errorf("expected 0 sessions after shutdown, got %d", n)
	}
}
