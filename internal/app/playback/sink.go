package playback

import "io"

// Sink is the voice output the session plays into. Implementations wrap the
// guild's voice connection; the session never touches the connection directly.
type Sink interface {
	// IsConnected reports whether the sink is attached to a voice channel.
	IsConnected() bool
	// IsPlaying reports whether the sink is currently consuming a stream.
	IsPlaying() bool
	// Play starts consuming the stream and invokes onComplete exactly once
	// when consumption stops, whether by natural end, stop or error. The
	// sink owns closing the stream. onComplete must be invoked after Play
	// has returned, never from inside it: the callback re-enters the
	// session's transition lock and would deadlock the caller.
	Play(stream io.ReadCloser, onComplete func(err error)) error
	// Pause suspends consumption without discarding the stream.
	Pause() error
	// Resume continues a paused stream.
	Resume() error
	// Stop aborts the current stream. The completion callback still fires.
	Stop() error
	// Disconnect detaches from the voice channel, stopping any stream.
	Disconnect() error
}
