// Package nowplaying maintains one status message per guild showing the
// current track, keeping it fresh and visible near the bottom of the channel.
package nowplaying

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/hiraico/subwoofer/internal/domain/track"
)

const (
	// DefaultInterval is how often the periodic refresh fires.
	DefaultInterval = 4 * time.Second
	// DefaultWindow is the accumulated message weight beyond which the
	// status message is considered scrolled out of view.
	DefaultWindow = 24
)

// MessageRef identifies the now-playing message in a channel.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Status is the payload rendered into the now-playing message.
type Status struct {
	Track     track.Track
	Elapsed   time.Duration
	Paused    bool
	CoverPath string
}

// Presenter renders status messages into the guild's text channel.
type Presenter interface {
	Send(ctx context.Context, channelID string, status Status, attachCover bool) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, status Status, attachCover bool) error
	Delete(ctx context.Context, ref MessageRef) error
	// MessagesAfter lists the messages posted after ref in its channel,
	// newest last.
	MessagesAfter(ctx context.Context, ref MessageRef) ([]MessageInfo, error)
}

// Trigger is a user command the refresher can respond to directly.
type Trigger interface {
	ChannelID() string
	// Respond posts the status as the command's response and returns the
	// resulting message.
	Respond(ctx context.Context, status Status, attachCover bool) (MessageRef, error)
	// Inform posts a plain text response.
	Inform(ctx context.Context, text string) error
}

// Playback exposes the session state the refresher renders.
type Playback interface {
	Current() (track.Track, bool)
	Elapsed() time.Duration
	Paused() bool
}

// Artwork resolves a track's cover art to a local file.
type Artwork interface {
	CoverArtFile(ctx context.Context, coverID, guildID string) (string, error)
}

// Options tunes the refresher loop.
type Options struct {
	Interval time.Duration
	Window   int
}

// Refresher owns a guild's now-playing message and the background loop that
// keeps it current.
type Refresher struct {
	guildID   string
	playback  Playback
	presenter Presenter
	art       Artwork
	interval  time.Duration
	window    int

	mu          sync.Mutex
	ref         *MessageRef
	lastTrackID string
	taskID      uuid.UUID
}

// New creates a refresher for a guild. Zero Options fields fall back to the
// defaults.
func New(guildID string, playback Playback, presenter Presenter, art Artwork, opts Options) *Refresher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Refresher{
		guildID:   guildID,
		playback:  playback,
		presenter: presenter,
		art:       art,
		interval:  opts.Interval,
		window:    opts.Window,
	}
}

// UpdateOrCreate refreshes the now-playing message. With a trigger the status
// is posted as that command's response; without one the existing message is
// edited in place. forceCreate recreates the message at the bottom of the
// channel, deleting the previous one.
func (r *Refresher) UpdateOrCreate(ctx context.Context, trigger Trigger, forceCreate bool) error {
	current, ok := r.playback.Current()
	if !ok {
		if trigger != nil {
			return trigger.Inform(ctx, "Nothing is currently playing.")
		}
		return nil
	}

	r.mu.Lock()
	prev := r.ref
	trackChanged := r.lastTrackID != current.ID
	r.mu.Unlock()

	if trigger == nil && prev == nil && !forceCreate {
		// Nothing to edit and no channel to post to. Callers must create
		// the message through a trigger first.
		zlog.Error().Msgf("now-playing update without a message or trigger: guild=%s", r.guildID)
		return nil
	}

	status := r.buildStatus(ctx, current)

	switch {
	case forceCreate:
		channelID := ""
		if trigger != nil {
			channelID = trigger.ChannelID()
		} else if prev != nil {
			channelID = prev.ChannelID
		}
		if channelID == "" {
			zlog.Error().Msgf("now-playing recreate without a channel: guild=%s", r.guildID)
			return nil
		}
		if prev != nil {
			if err := r.presenter.Delete(ctx, *prev); err != nil {
				zlog.Debug().Msgf("failed to delete stale now-playing message: guild=%s err=%v", r.guildID, err)
			}
		}
		ref, err := r.presenter.Send(ctx, channelID, status, true)
		if err != nil {
			return errors.Wrap(err, "failed to send now-playing message")
		}
		r.remember(ref, current.ID)

	case trigger != nil:
		// Re-attaching the cover is only needed when the track changed or
		// this is the first message.
		attach := trackChanged || prev == nil
		ref, err := trigger.Respond(ctx, status, attach)
		if err != nil {
			return errors.Wrap(err, "failed to respond with now-playing status")
		}
		if prev != nil && *prev != ref {
			if err := r.presenter.Delete(ctx, *prev); err != nil {
				zlog.Debug().Msgf("failed to delete stale now-playing message: guild=%s err=%v", r.guildID, err)
			}
		}
		r.remember(ref, current.ID)

	default:
		if err := r.presenter.Edit(ctx, *prev, status, trackChanged); err != nil {
			return errors.Wrap(err, "failed to edit now-playing message")
		}
		r.mu.Lock()
		r.lastTrackID = current.ID
		r.mu.Unlock()
	}

	return nil
}

func (r *Refresher) remember(ref MessageRef, trackID string) {
	r.mu.Lock()
	r.ref = &ref
	r.lastTrackID = trackID
	r.mu.Unlock()
}

func (r *Refresher) buildStatus(ctx context.Context, current track.Track) Status {
	elapsed := r.playback.Elapsed()
	if current.Duration > 0 && elapsed > current.Duration {
		elapsed = current.Duration
	}

	coverPath := ""
	if r.art != nil {
		path, err := r.art.CoverArtFile(ctx, current.CoverID, r.guildID)
		if err != nil {
			zlog.Debug().Msgf("cover art unavailable: guild=%s cover=%s err=%v", r.guildID, current.CoverID, err)
		} else {
			coverPath = path
		}
	}

	return Status{
		Track:     current,
		Elapsed:   elapsed,
		Paused:    r.playback.Paused(),
		CoverPath: coverPath,
	}
}

// Scrolled reports whether enough chatter accumulated below the now-playing
// message to push it out of view.
func (r *Refresher) Scrolled(ctx context.Context) bool {
	r.mu.Lock()
	prev := r.ref
	r.mu.Unlock()
	if prev == nil {
		return false
	}

	msgs, err := r.presenter.MessagesAfter(ctx, *prev)
	if err != nil {
		zlog.Debug().Msgf("failed to inspect channel history: guild=%s err=%v", r.guildID, err)
		return false
	}
	return totalWeight(msgs) >= r.window
}

// EnsureStarted launches the periodic refresh loop if one is not already
// running. The loop edits the message every interval and recreates it when
// it scrolls out of view; it terminates itself once nothing is playing.
func (r *Refresher) EnsureStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taskID != uuid.Nil {
		return
	}
	id := uuid.New()
	r.taskID = id
	go r.run(id)

	zlog.Debug().Msgf("now-playing refresh loop started: guild=%s task=%s", r.guildID, id)
}

func (r *Refresher) run(id uuid.UUID) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		live := r.taskID == id
		r.mu.Unlock()
		if !live {
			return
		}

		ctx := context.Background()
		if _, ok := r.playback.Current(); !ok {
			r.stopTask(id)
			return
		}
		if r.playback.Paused() {
			// Nothing moves while paused; re-rendering would just spend
			// presenter calls on identical content.
			continue
		}

		if err := r.UpdateOrCreate(ctx, nil, r.Scrolled(ctx)); err != nil {
			zlog.Warn().Msgf("now-playing refresh failed: guild=%s err=%v", r.guildID, err)
		}
	}
}

func (r *Refresher) stopTask(id uuid.UUID) {
	r.mu.Lock()
	if r.taskID == id {
		r.taskID = uuid.Nil
	}
	r.mu.Unlock()
}

// Running reports whether the refresh loop is active.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.taskID != uuid.Nil
}

// Teardown cancels the refresh loop and deletes the now-playing message.
func (r *Refresher) Teardown(ctx context.Context) {
	r.mu.Lock()
	r.taskID = uuid.Nil
	prev := r.ref
	r.ref = nil
	r.lastTrackID = ""
	r.mu.Unlock()

	if prev != nil {
		if err := r.presenter.Delete(ctx, *prev); err != nil {
			zlog.Debug().Msgf("failed to delete now-playing message: guild=%s err=%v", r.guildID, err)
		}
	}
}
