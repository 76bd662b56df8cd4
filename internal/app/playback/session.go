package playback

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/hiraico/subwoofer/internal/domain/track"
)

var (
	// ErrNotConnected is returned when an operation needs a connected sink.
	ErrNotConnected = errors.New("not connected to a voice channel")
	// ErrNothingPlaying is returned when an operation needs a current track.
	ErrNothingPlaying = errors.New("nothing is playing")
	// ErrNotPaused is returned when resuming a session that is not paused.
	ErrNotPaused = errors.New("playback is not paused")
	// ErrAlreadyPaused is returned when pausing an already-paused session.
	ErrAlreadyPaused = errors.New("playback is already paused")
	// ErrQueueEmpty is returned by PlayNext when there is nothing to play.
	ErrQueueEmpty = errors.New("queue is empty")
)

// Queue is the track source the session advances through.
type Queue interface {
	PopFront() (track.Track, bool)
	ReplenishIfNeeded(ctx context.Context, prevTrackID string) error
}

// StreamOpener opens the audio stream for a track.
type StreamOpener interface {
	OpenStream(ctx context.Context, trackID string) (io.ReadCloser, error)
}

// Announcer is the session's outbound surface for playback announcements.
// The now-playing refresher and the chat gateway sit behind it.
type Announcer interface {
	// NowPlayingStarted ensures a now-playing surface and refresh loop
	// exist after a track starts. Idempotent.
	NowPlayingStarted(ctx context.Context)
	// NowPlayingTransition refreshes the surface after a natural track
	// transition, recreating it when it has scrolled out of view.
	NowPlayingTransition(ctx context.Context)
	// AnnouncePlaybackEnded tells the guild the queue ran out.
	AnnouncePlaybackEnded(ctx context.Context)
	// AnnounceAutoplayError reports a failed replenishment attempt.
	AnnounceAutoplayError(ctx context.Context, err error)
	// TeardownNowPlaying cancels the refresh loop and removes the surface.
	TeardownNowPlaying(ctx context.Context)
}

// Session is the per-guild playback state machine. It advances through the
// queue, tracks elapsed time across pause and resume, and drives the
// now-playing surface through the Announcer.
type Session struct {
	guildID  string
	queue    Queue
	streams  StreamOpener
	announce Announcer

	// advanceMu serializes track transitions so a user command and the
	// completion callback cannot both pop the queue.
	advanceMu sync.Mutex

	mu            sync.Mutex
	state         State
	current       *track.Track
	startedAt     time.Time
	pausedElapsed time.Duration
	paused        bool
	stopping      bool
}

// NewSession creates a playback session for a guild.
func NewSession(guildID string, queue Queue, streams StreamOpener, announce Announcer) *Session {
	return &Session{
		guildID:  guildID,
		queue:    queue,
		streams:  streams,
		announce: announce,
		state:    StateIdle,
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns a copy of the currently-playing track.
func (s *Session) Current() (track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return track.Track{}, false
	}
	return *s.current, true
}

// Paused reports whether playback is paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Elapsed returns how long the current track has been playing, excluding
// time spent paused. It is zero when nothing is playing and never negative.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	if s.current == nil {
		return 0
	}
	elapsed := s.pausedElapsed
	if !s.paused {
		elapsed += time.Since(s.startedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// PlayNext pops the queue head and starts it on the sink. It replenishes the
// queue first so an empty queue with autoplay on still produces a track.
// When nothing is playable it signals the end of playback and returns
// ErrQueueEmpty. A sink that is already playing makes this a no-op.
func (s *Session) PlayNext(ctx context.Context, sink Sink) error {
	if sink == nil || !sink.IsConnected() {
		return ErrNotConnected
	}

	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()

	if sink.IsPlaying() {
		return nil
	}

	if err := s.queue.ReplenishIfNeeded(ctx, s.currentID()); err != nil {
		zlog.Warn().Msgf("autoplay replenishment failed: guild=%s err=%v", s.guildID, err)
		s.announce.AnnounceAutoplayError(ctx, err)
	}

	next, ok := s.queue.PopFront()
	if !ok {
		s.mu.Lock()
		s.current = nil
		s.paused = false
		s.pausedElapsed = 0
		s.state = StateIdle
		s.mu.Unlock()

		s.announce.AnnouncePlaybackEnded(ctx)
		return ErrQueueEmpty
	}

	s.mu.Lock()
	s.current = &next
	s.startedAt = time.Now()
	s.pausedElapsed = 0
	s.paused = false
	s.stopping = false
	s.state = StateStarting
	s.mu.Unlock()

	stream, err := s.streams.OpenStream(ctx, next.ID)
	if err != nil {
		s.mu.Lock()
		s.current = nil
		s.state = StateIdle
		s.mu.Unlock()
		return errors.Wrapf(err, "failed to open stream for track %s", next.ID)
	}

	if err := sink.Play(stream, func(playErr error) {
		s.onPlaybackFinished(sink, next.ID, playErr)
	}); err != nil {
		// The sink rejected the stream, so it never took ownership of it
		// and the completion callback will not fire. Leave the track
		// current so the operator can see what broke, but freeze the
		// clock since nothing is actually playing.
		_ = stream.Close()
		s.mu.Lock()
		s.pausedElapsed = s.elapsedLocked()
		s.paused = true
		s.mu.Unlock()
		zlog.Error().Msgf("sink rejected stream: guild=%s track=%s err=%v", s.guildID, next.ID, err)
		return nil
	}

	s.mu.Lock()
	s.state = StatePlaying
	s.mu.Unlock()

	zlog.Info().Msgf("playback started: guild=%s track=%s title=%s", s.guildID, next.ID, next.Title)
	s.announce.NowPlayingStarted(ctx)
	return nil
}

func (s *Session) currentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// onPlaybackFinished is the sink completion callback. It advances to the
// next track unless the session was stopped or the sink disconnected while
// the track was playing.
func (s *Session) onPlaybackFinished(sink Sink, finishedID string, playErr error) {
	if playErr != nil {
		zlog.Error().Msgf("playback error: guild=%s track=%s err=%v", s.guildID, finishedID, playErr)
	}

	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()

	ctx := context.Background()

	if stopping || !sink.IsConnected() {
		zlog.Debug().Msgf("playback finished after stop/disconnect, not advancing: guild=%s", s.guildID)
		return
	}

	if err := s.PlayNext(ctx, sink); err != nil && !errors.Is(err, ErrQueueEmpty) {
		zlog.Error().Msgf("failed to advance playback: guild=%s err=%v", s.guildID, err)
	}
	s.announce.NowPlayingTransition(ctx)
}

// Skip aborts the current track. The sink's completion callback then
// advances to the next queued track.
func (s *Session) Skip(sink Sink) error {
	if sink == nil || !sink.IsConnected() {
		return ErrNotConnected
	}
	if !sink.IsPlaying() {
		return ErrNothingPlaying
	}

	zlog.Info().Msgf("skipping track: guild=%s", s.guildID)
	return sink.Stop()
}

// Pause suspends playback and freezes the elapsed clock.
func (s *Session) Pause(sink Sink) error {
	if sink == nil || !sink.IsConnected() {
		return ErrNotConnected
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	if s.paused {
		s.mu.Unlock()
		return ErrAlreadyPaused
	}
	s.pausedElapsed = s.elapsedLocked()
	s.paused = true
	s.state = StatePaused
	s.mu.Unlock()

	return sink.Pause()
}

// Resume continues paused playback. The elapsed clock picks up where Pause
// froze it.
func (s *Session) Resume(sink Sink) error {
	if sink == nil || !sink.IsConnected() {
		return ErrNotConnected
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	if !s.paused {
		s.mu.Unlock()
		return ErrNotPaused
	}
	s.startedAt = time.Now()
	s.paused = false
	s.state = StatePlaying
	s.mu.Unlock()

	return sink.Resume()
}

// StopAndDisconnect stops playback, detaches the sink from the voice channel
// and tears down the now-playing surface. The queue is retained so playback
// can resume later. The stopping flag keeps the sink's completion callback
// from advancing to the next track.
func (s *Session) StopAndDisconnect(ctx context.Context, sink Sink) error {
	if sink == nil {
		return ErrNotConnected
	}

	s.mu.Lock()
	s.stopping = true
	s.current = nil
	s.paused = false
	s.pausedElapsed = 0
	s.state = StateIdle
	s.mu.Unlock()

	err := sink.Disconnect()
	s.announce.TeardownNowPlaying(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to disconnect sink")
	}

	zlog.Info().Msgf("playback stopped and disconnected: guild=%s", s.guildID)
	return nil
}

// HandleExternalDisconnect resets session state after the sink was detached
// by something other than a stop command. The queue is retained.
func (s *Session) HandleExternalDisconnect(ctx context.Context) {
	s.mu.Lock()
	s.current = nil
	s.paused = false
	s.pausedElapsed = 0
	s.state = StateIdle
	s.mu.Unlock()

	s.announce.TeardownNowPlaying(ctx)
	zlog.Info().Msgf("voice disconnected externally: guild=%s", s.guildID)
}
