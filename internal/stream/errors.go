package stream

import "errors"

var (
	// ErrResolution is returned when the external resolver could not produce a
	// usable URL for the video or audio stream. Nothing is spawned.
	ErrResolution = errors.New("could not resolve upstream media")

	// ErrSpawn is returned when the transcoder process could not be launched.
	ErrSpawn = errors.New("could not launch transcoder")

	// ErrSessionFailed is surfaced to callers waiting on readiness when the
	// session entered draining or terminated before becoming ready.
	ErrSessionFailed = errors.New("session failed before becoming ready")

	// ErrReadinessTimeout is recorded when the first playlist artifact did not
	// appear within the configured bound. It always accompanies
	// ErrSessionFailed when surfaced to waiters.
	ErrReadinessTimeout = errors.New("timed out waiting for first playlist")

	// ErrSegmentNotFound is returned for segment names with no backing file.
	// Segments rotate out of the playlist window and are deleted, so this is
	// an expected per-request condition, not a session failure.
	ErrSegmentNotFound = errors.New("segment not found")
)
