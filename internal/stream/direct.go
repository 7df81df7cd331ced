package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"vr-gallery/internal/platform/procgroup"
)

// DirectStreamer pipes a single progressive transcode straight to the client,
// bypassing the session machinery. One invocation serves one client; the
// process dies with the request.
type DirectStreamer interface {
	Stream(ctx context.Context, id ContentID, w io.Writer) error
}

// YtdlpDirect implements DirectStreamer by running yt-dlp with stdout piped
// to the response, the original delivery mode of the gallery.
type YtdlpDirect struct {
	// Path is the yt-dlp executable, defaulting to "yt-dlp" on PATH.
	Path string

	// Cookies optionally names a cookies file.
	Cookies string

	// Format overrides the yt-dlp format selector. Empty selects a high
	// resolution mp4 with merged audio.
	Format string

	// KillGrace bounds the SIGTERM-to-SIGKILL escalation when the client
	// disconnects mid-stream. Zero means 3s.
	KillGrace time.Duration

	Log *slog.Logger
}

const defaultDirectFormat = "bv*[height>=1440][ext=mp4]+ba[ext=m4a]/bestvideo[ext=mp4]+bestaudio/best[ext=mp4]"

// Stream runs the tool until its output is exhausted or ctx is cancelled.
// Cancellation kills the whole process group; yt-dlp forks downloader and
// muxer helpers that a plain parent kill would leave behind.
func (d *YtdlpDirect) Stream(ctx context.Context, id ContentID, w io.Writer) error {
	bin := d.Path
	if bin == "" {
		bin = "yt-dlp"
	}
	format := d.Format
	if format == "" {
		format = defaultDirectFormat
	}
	grace := d.KillGrace
	if grace <= 0 {
		grace = 3 * time.Second
	}

	args := []string{"--no-playlist"}
	if d.Cookies != "" {
		args = append(args, "--cookies", d.Cookies)
	}
	args = append(args, "-f", format, "-o", "-", watchURL(id))

	var stderr bytes.Buffer
	cmd := exec.Command(bin, args...)
	procgroup.Setup(cmd)
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	var waitErr error
	exited := make(chan struct{})
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()

	select {
	case <-ctx.Done():
		if err := procgroup.Terminate(cmd.Process.Pid, exited, grace, 2*grace); err != nil && d.Log != nil {
			d.Log.Warn("direct stream kill",
				slog.String("content_id", string(id)),
				slog.String("error", err.Error()))
		}
		return ctx.Err()
	case <-exited:
		if waitErr != nil {
			return fmt.Errorf("%s: %v: %s", bin, waitErr, lastLine(stderr.Bytes()))
		}
		return nil
	}
}
