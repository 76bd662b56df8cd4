// Package guild coordinates per-guild playback state. The registry owns one
// coordinator per guild and bridges durable settings to the live components.
package guild

import (
	"context"
	"io"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/hiraico/subwoofer/internal/app/autoplay"
	"github.com/hiraico/subwoofer/internal/app/nowplaying"
	"github.com/hiraico/subwoofer/internal/app/playback"
	"github.com/hiraico/subwoofer/internal/app/queue"
	"github.com/hiraico/subwoofer/internal/domain/track"
	"github.com/hiraico/subwoofer/internal/infra/settings"
	"github.com/hiraico/subwoofer/internal/infra/subsonic"
)

// Catalog is the full music catalog surface the coordinator depends on.
// *subsonic.Client satisfies it.
type Catalog interface {
	autoplay.Catalog
	Search(ctx context.Context, query string, opts subsonic.SearchOptions) ([]track.Track, error)
	ListPlaylists(ctx context.Context) ([]track.PlaylistSource, error)
	OpenStream(ctx context.Context, trackID string) (io.ReadCloser, error)
	CoverArtFile(ctx context.Context, coverID, guildID string) (string, error)
}

// Notifier posts plain announcements into a guild's channel.
type Notifier interface {
	Announce(ctx context.Context, guildID, text string) error
}

// Guild is the playback coordinator for a single guild.
type Guild struct {
	ID      string
	Queue   *queue.Engine
	Session *playback.Session
	Display *nowplaying.Refresher

	mu       sync.Mutex
	mode     autoplay.Mode
	sourceID string
}

// AutoplayPolicy returns the guild's autoplay mode and playlist source.
func (g *Guild) AutoplayPolicy() (autoplay.Mode, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode, g.sourceID
}

// SetAutoplay updates the guild's autoplay mode and playlist source.
func (g *Guild) SetAutoplay(mode autoplay.Mode, sourceID string) {
	g.mu.Lock()
	g.mode = mode
	g.sourceID = sourceID
	g.mu.Unlock()

	zlog.Info().Msgf("autoplay policy changed: guild=%s mode=%s source=%s", g.ID, mode, sourceID)
}

// snapshot converts the guild's live state into a durable record.
func (g *Guild) snapshot() settings.Record {
	mode, sourceID := g.AutoplayPolicy()
	queued := g.Queue.Tracks()

	rec := settings.Record{
		Mode:     mode.String(),
		SourceID: sourceID,
		Queue:    make([]settings.QueuedTrack, 0, len(queued)),
	}
	for _, t := range queued {
		rec.Queue = append(rec.Queue, settings.QueuedTrack{
			ID:       t.ID,
			Title:    t.Title,
			Artist:   t.Artist,
			Album:    t.Album,
			CoverID:  t.CoverID,
			Duration: int64(t.Duration / time.Second),
			AddedBy:  t.AddedBy,
		})
	}
	return rec
}

// restore applies a persisted record to the guild's live state.
func (g *Guild) restore(rec settings.Record) {
	g.SetAutoplay(autoplay.ParseMode(rec.Mode), rec.SourceID)

	tracks := make([]track.Track, 0, len(rec.Queue))
	for _, q := range rec.Queue {
		tracks = append(tracks, track.Track{
			ID:       q.ID,
			Title:    q.Title,
			Artist:   q.Artist,
			Album:    q.Album,
			CoverID:  q.CoverID,
			Duration: time.Duration(q.Duration) * time.Second,
			AddedBy:  q.AddedBy,
		})
	}
	g.Queue.Restore(tracks)
}

// announcer adapts the now-playing refresher and the guild notifier to the
// playback session's announcement surface.
type announcer struct {
	guildID string
	display *nowplaying.Refresher
	notify  Notifier
}

func (a *announcer) NowPlayingStarted(ctx context.Context) {
	a.display.EnsureStarted()
}

func (a *announcer) NowPlayingTransition(ctx context.Context) {
	if err := a.display.UpdateOrCreate(ctx, nil, a.display.Scrolled(ctx)); err != nil {
		zlog.Warn().Msgf("failed to refresh now-playing after transition: guild=%s err=%v", a.guildID, err)
	}
}

func (a *announcer) AnnouncePlaybackEnded(ctx context.Context) {
	a.say(ctx, "Playback queue is empty. Playback has ended.")
}

func (a *announcer) AnnounceAutoplayError(ctx context.Context, err error) {
	a.say(ctx, "Failed to fetch a track for autoplay.")
}

func (a *announcer) TeardownNowPlaying(ctx context.Context) {
	a.display.Teardown(ctx)
}

func (a *announcer) say(ctx context.Context, text string) {
	if a.notify == nil {
		zlog.Info().Msgf("announcement dropped, no notifier: guild=%s text=%s", a.guildID, text)
		return
	}
	if err := a.notify.Announce(ctx, a.guildID, text); err != nil {
		zlog.Warn().Msgf("failed to announce: guild=%s err=%v", a.guildID, err)
	}
}
