package stream

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"vr-gallery/internal/platform/procgroup"
)

// PlaylistName is the playlist file each session's writer maintains inside
// its output directory. Its first non-empty appearance is the readiness
// signal.
const PlaylistName = "index.m3u8"

// segmentPattern names the rotating media segment files.
const segmentPattern = "seg_%05d.ts"

// Writer spawns the long-running transcoding pipeline for one session.
// The returned command has been started in its own process group; the caller
// owns Wait and teardown.
type Writer interface {
	Start(streams Streams, outputDir string) (*exec.Cmd, error)
}

// FFmpegWriter produces an HLS rendition with ffmpeg: fixed codec profile,
// fixed segment duration, and a bounded sliding playlist window with evicted
// segments deleted from disk. The process has no natural end for live-style
// input; it runs until killed or the upstream input is exhausted.
type FFmpegWriter struct {
	// Path is the ffmpeg executable, defaulting to "ffmpeg" on PATH.
	Path string

	// SegmentSeconds is the target duration of each media segment.
	// Zero means 4.
	SegmentSeconds int

	// WindowSize is the number of segments kept in the playlist.
	// Zero means 6.
	WindowSize int

	// VideoBitrate and AudioBitrate are ffmpeg bitrate strings.
	// Empty means "8M" and "160k".
	VideoBitrate string
	AudioBitrate string
}

// Start launches the transcoder writing into outputDir. ffmpeg diagnostics go
// to transcode.log inside the output directory, which disappears with the
// session.
func (w *FFmpegWriter) Start(streams Streams, outputDir string) (*exec.Cmd, error) {
	bin := w.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	segSeconds := w.SegmentSeconds
	if segSeconds <= 0 {
		segSeconds = 4
	}
	window := w.WindowSize
	if window <= 0 {
		window = 6
	}
	vb := w.VideoBitrate
	if vb == "" {
		vb = "8M"
	}
	ab := w.AudioBitrate
	if ab == "" {
		ab = "160k"
	}

	args := []string{
		"-hide_banner", "-loglevel", "warning", "-y",
		"-i", streams.VideoURL,
		"-i", streams.AudioURL,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "libx264", "-preset", "veryfast", "-b:v", vb,
		"-c:a", "aac", "-b:a", ab,
		"-f", "hls",
		"-hls_time", strconv.Itoa(segSeconds),
		"-hls_list_size", strconv.Itoa(window),
		"-hls_flags", "delete_segments+independent_segments",
		"-hls_segment_filename", filepath.Join(outputDir, segmentPattern),
		filepath.Join(outputDir, PlaylistName),
	}

	cmd := exec.Command(bin, args...)
	procgroup.Setup(cmd)

	logFile, err := os.Create(filepath.Join(outputDir, "transcode.log"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	cmd.Stderr = logFile
	cmd.Stdout = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	// The process holds its own handle now; closing ours does not affect it.
	logFile.Close()

	return cmd, nil
}
