// Package playback provides the per-guild playback session state machine.
package playback

// State represents the playback session state.
type State int

const (
	StateIdle     State = iota // No current track, sink not in use
	StateStarting              // Stream being opened / sink being commanded
	StatePlaying               // Track is playing
	StatePaused                // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
