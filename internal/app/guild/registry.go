package guild

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/hiraico/subwoofer/internal/app/autoplay"
	"github.com/hiraico/subwoofer/internal/app/nowplaying"
	"github.com/hiraico/subwoofer/internal/app/playback"
	"github.com/hiraico/subwoofer/internal/app/queue"
	"github.com/hiraico/subwoofer/internal/domain/track"
	"github.com/hiraico/subwoofer/internal/infra/settings"
	"github.com/hiraico/subwoofer/internal/infra/subsonic"
)

// PresenterFactory builds the now-playing presenter for a guild. The chat
// gateway supplies it.
type PresenterFactory func(guildID string) nowplaying.Presenter

// Options configures the registry.
type Options struct {
	// RandomSettings is the provider-specific configuration for random
	// autoplay, decoded per guildless deployment config.
	RandomSettings map[string]any
	// Refresh tunes every guild's now-playing loop.
	Refresh nowplaying.Options
}

// Registry owns all per-guild coordinators and their durable settings.
type Registry struct {
	catalog    Catalog
	notify     Notifier
	presenters PresenterFactory
	store      *settings.Store
	opts       Options

	mu      sync.Mutex
	guilds  map[string]*Guild
	records map[string]settings.Record
}

// NewRegistry creates a registry and loads persisted guild settings.
func NewRegistry(catalog Catalog, notify Notifier, presenters PresenterFactory, store *settings.Store, opts Options) (*Registry, error) {
	records, err := store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load guild settings")
	}

	return &Registry{
		catalog:    catalog,
		notify:     notify,
		presenters: presenters,
		store:      store,
		opts:       opts,
		guilds:     make(map[string]*Guild),
		records:    records,
	}, nil
}

// Guild returns the coordinator for a guild, creating it on first use. A
// persisted settings record is applied once at creation; guilds without one
// start with autoplay off and an empty queue.
func (r *Registry) Guild(guildID string) (*Guild, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.guilds[guildID]; ok {
		return g, nil
	}

	g := &Guild{ID: guildID}

	selector, err := autoplay.NewSelector(r.catalog, r.opts.RandomSettings)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build autoplay selector")
	}
	g.Queue = queue.New(guildID, r.catalog, selector, g)

	var presenter nowplaying.Presenter
	if r.presenters != nil {
		presenter = r.presenters(guildID)
	}

	ann := &announcer{guildID: guildID, notify: r.notify}
	g.Session = playback.NewSession(guildID, g.Queue, r.catalog, ann)
	g.Display = nowplaying.New(guildID, g.Session, presenter, r.catalog, r.opts.Refresh)
	ann.display = g.Display

	if rec, ok := r.records[guildID]; ok {
		g.restore(rec)
	}
	r.guilds[guildID] = g

	zlog.Info().Msgf("guild coordinator created: guild=%s", guildID)
	return g, nil
}

// SaveAll persists every guild's settings and queue snapshot. Records for
// guilds never touched this run are carried over untouched.
func (r *Registry) SaveAll() error {
	r.mu.Lock()
	for id, g := range r.guilds {
		r.records[id] = g.snapshot()
	}
	records := make(map[string]settings.Record, len(r.records))
	for id, rec := range r.records {
		records[id] = rec
	}
	r.mu.Unlock()

	return r.store.Save(records)
}

// RunAutosave persists settings on the given interval until ctx is done,
// then writes one final snapshot.
func (r *Registry) RunAutosave(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.SaveAll(); err != nil {
				zlog.Error().Msgf("final settings save failed: %v", err)
			}
			return
		case <-ticker.C:
			if err := r.SaveAll(); err != nil {
				zlog.Error().Msgf("periodic settings save failed: %v", err)
			}
		}
	}
}

// Page is a window into a paginated result set.
type Page struct {
	Offset int
	Size   int
}

// Next returns the page immediately after this one.
func (p Page) Next() Page {
	return Page{Offset: p.Offset + p.Size, Size: p.Size}
}

// SearchTracks queries the catalog for tracks matching query, one page at a
// time.
func (r *Registry) SearchTracks(ctx context.Context, query string, page Page) ([]track.Track, error) {
	return r.catalog.Search(ctx, query, subsonic.SearchOptions{
		SongCount:  page.Size,
		SongOffset: page.Offset,
	})
}

// Playlists lists the catalog's playlists, for autoplay source selection.
func (r *Registry) Playlists(ctx context.Context) ([]track.PlaylistSource, error) {
	return r.catalog.ListPlaylists(ctx)
}
