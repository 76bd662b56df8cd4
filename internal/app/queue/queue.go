// Package queue provides the per-guild track queue with autoplay
// replenishment.
package queue

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/hiraico/subwoofer/internal/app/autoplay"
	"github.com/hiraico/subwoofer/internal/domain/track"
)

// Artwork defines the catalog operation used to pre-warm cover art.
type Artwork interface {
	CoverArtFile(ctx context.Context, coverID, guildID string) (string, error)
}

// Policy supplies the guild's current autoplay mode and playlist source.
type Policy interface {
	AutoplayPolicy() (autoplay.Mode, string)
}

// Engine owns one guild's ordered track queue. Insertion order is playback
// order; the currently-playing track is never part of the queue.
type Engine struct {
	mu       sync.Mutex
	guildID  string
	items    []track.Track
	art      Artwork
	selector *autoplay.Selector
	policy   Policy
}

// New creates a queue engine for a guild.
func New(guildID string, art Artwork, selector *autoplay.Selector, policy Policy) *Engine {
	return &Engine{
		guildID:  guildID,
		items:    make([]track.Track, 0),
		art:      art,
		selector: selector,
		policy:   policy,
	}
}

// Enqueue appends a track to the tail of the queue and pre-warms its cover
// art in the background. Prewarm failures are ignored.
func (e *Engine) Enqueue(t track.Track) {
	e.mu.Lock()
	e.items = append(e.items, t)
	e.mu.Unlock()

	e.prewarmArt(t)
}

func (e *Engine) prewarmArt(t track.Track) {
	if e.art == nil || t.CoverID == "" {
		return
	}
	go func() {
		if _, err := e.art.CoverArtFile(context.Background(), t.CoverID, e.guildID); err != nil {
			zlog.Debug().Msgf("cover art prewarm failed: guild=%s cover=%s err=%v", e.guildID, t.CoverID, err)
		}
	}()
}

// Clear removes all tracks from the queue. The currently-playing track is
// unaffected.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = e.items[:0]
}

// Len returns the number of queued tracks.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

// Tracks returns a copy of the queued tracks in playback order.
func (e *Engine) Tracks() []track.Track {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]track.Track, len(e.items))
	copy(out, e.items)
	return out
}

// PopFront removes and returns the head of the queue.
func (e *Engine) PopFront() (track.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.items) == 0 {
		return track.Track{}, false
	}
	t := e.items[0]
	e.items = e.items[1:]
	return t, true
}

// Restore replaces the queue contents with a persisted snapshot.
func (e *Engine) Restore(tracks []track.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append(e.items[:0], tracks...)
}

// ReplenishIfNeeded adds exactly one autoplay track when the queue is empty
// and the guild's autoplay mode is active. It is a no-op on a non-empty
// queue or with autoplay off. prevTrackID seeds similar-mode selection and
// may be empty. Replenishment adds at most one track per call; the caller
// re-invokes it after consuming that track if the queue empties again.
func (e *Engine) ReplenishIfNeeded(ctx context.Context, prevTrackID string) error {
	e.mu.Lock()
	if len(e.items) > 0 {
		e.mu.Unlock()
		return nil
	}
	mode, sourceID := e.policy.AutoplayPolicy()
	if mode == autoplay.ModeOff {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	// The catalog call may suspend; don't hold the guild queue lock across it.
	picked, err := e.selector.Pick(ctx, mode, autoplay.Request{
		PrevTrackID: prevTrackID,
		SourceID:    sourceID,
	})
	if err != nil {
		return errors.Wrap(err, "autoplay replenishment failed")
	}
	if picked == nil {
		return nil
	}

	e.mu.Lock()
	if len(e.items) > 0 {
		// Something was enqueued while we were asking the catalog; the
		// queue no longer needs replenishing.
		e.mu.Unlock()
		zlog.Debug().Msgf("discarding autoplay pick, queue refilled concurrently: guild=%s", e.guildID)
		return nil
	}
	e.items = append(e.items, *picked)
	e.mu.Unlock()

	zlog.Info().Msgf("autoplay queued track: guild=%s mode=%s id=%s title=%s",
		e.guildID, mode, picked.ID, picked.Title)
	e.prewarmArt(*picked)
	return nil
}
