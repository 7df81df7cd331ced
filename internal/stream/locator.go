package stream

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Locator resolves a ContentID to upstream media URLs. A failure of either
// the video or the audio resolution aborts the whole call; the session
// supervisor never spawns a transcoder from a partial pair.
type Locator interface {
	Locate(ctx context.Context, id ContentID) (Streams, error)
}

// YtdlpLocator resolves stream URLs by invoking yt-dlp with --get-url.
// The tool prints one resolved URL per line on stdout and exits non-zero
// with diagnostics on stderr when resolution fails.
type YtdlpLocator struct {
	// Path is the yt-dlp executable, defaulting to "yt-dlp" on PATH.
	Path string

	// Cookies optionally names a cookies file passed to yt-dlp.
	Cookies string

	// MaxHeight caps the selected video rendition height. Zero means 1440,
	// the headset-friendly cap the gallery targets.
	MaxHeight int
}

const defaultMaxHeight = 1440

// watchURL maps a ContentID to the external platform's watch page URL.
func watchURL(id ContentID) string {
	return "https://www.youtube.com/watch?v=" + string(id)
}

// Locate resolves the best video stream at or below MaxHeight and the best
// audio stream, concurrently. The first failure cancels the sibling lookup.
func (l *YtdlpLocator) Locate(ctx context.Context, id ContentID) (Streams, error) {
	height := l.MaxHeight
	if height <= 0 {
		height = defaultMaxHeight
	}

	videoSel := fmt.Sprintf("bv*[height<=%d][ext=mp4]/bv*[height<=%d]/bestvideo", height, height)
	audioSel := "ba[ext=m4a]/bestaudio"

	var streams Streams
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := l.resolve(gctx, id, videoSel)
		if err != nil {
			return fmt.Errorf("video: %w", err)
		}
		streams.VideoURL = u
		return nil
	})
	g.Go(func() error {
		u, err := l.resolve(gctx, id, audioSel)
		if err != nil {
			return fmt.Errorf("audio: %w", err)
		}
		streams.AudioURL = u
		return nil
	})

	if err := g.Wait(); err != nil {
		return Streams{}, fmt.Errorf("%w: %w", ErrResolution, err)
	}
	return streams, nil
}

// resolve runs one yt-dlp --get-url invocation and returns the first
// non-empty stdout line.
func (l *YtdlpLocator) resolve(ctx context.Context, id ContentID, selector string) (string, error) {
	bin := l.Path
	if bin == "" {
		bin = "yt-dlp"
	}

	args := []string{"--no-playlist", "--quiet"}
	if l.Cookies != "" {
		args = append(args, "--cookies", l.Cookies)
	}
	args = append(args, "-f", selector, "--get-url", watchURL(id))

	out, err := exec.CommandContext(ctx, bin, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s: %s", bin, lastLine(exitErr.Stderr))
		}
		return "", fmt.Errorf("%s: %w", bin, err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s: no URL in output", bin)
}

// lastLine returns the final non-empty line of diagnostic output, which for
// yt-dlp carries the actual error message.
func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
