package stream

// ContentID identifies a piece of source media on the external platform.
// It is the sole key into the session registry and the on-disk output
// directory namespace.
type ContentID string

// State is the lifecycle phase of a transcoding session.
type State int32

const (
	// StateStarting covers locator resolution and transcoder launch up to the
	// first playlist artifact appearing on disk.
	StateStarting State = iota

	// StateReady means the playlist exists and delivery may begin.
	StateReady

	// StateDraining means teardown is in progress: a stop was requested, the
	// transcoder exited, or startup failed.
	StateDraining

	// StateTerminated is absorbing: processes reaped, output directory
	// removed, registry entry cleared. A terminated session is never reused.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Streams holds the resolved upstream elementary stream URLs for one
// ContentID. Both must be present; the locator never returns a partial pair.
type Streams struct {
	VideoURL string
	AudioURL string
}
