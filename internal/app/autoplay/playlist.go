package autoplay

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/hiraico/subwoofer/internal/domain/track"
)

// PlaylistProvider draws random tracks from a configured catalog playlist.
// It caches the playlist's remaining tracks and re-fetches from the catalog
// exactly once per call when the cache is absent, stale, or exhausted.
type PlaylistProvider struct {
	mu      sync.Mutex
	catalog Catalog
	source  *track.PlaylistSource
	rng     *rand.Rand
}

// NewPlaylistProvider creates a PlaylistProvider.
func NewPlaylistProvider(catalog Catalog) *PlaylistProvider {
	return &PlaylistProvider{
		catalog: catalog,
		rng:     rand.New(rand.NewSource(seed())),
	}
}

// seed derives an RNG seed from crypto/rand with a time fallback.
func seed() int64 {
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		return int64(binary.LittleEndian.Uint64(buf[:]))
	}
	return time.Now().UnixNano()
}

// Next draws one track at a uniformly random index from the remaining
// playlist entries.
func (p *PlaylistProvider) Next(ctx context.Context, req Request) (*track.Track, error) {
	if req.SourceID == "" {
		return nil, errors.New("no autoplay playlist configured")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == nil || p.source.ID != req.SourceID || p.source.Exhausted() {
		source, err := p.catalog.GetPlaylist(ctx, req.SourceID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch autoplay playlist")
		}
		zlog.Debug().Msgf("autoplay playlist refreshed: id=%s name=%s tracks=%d",
			source.ID, source.Name, len(source.Tracks))
		p.source = source
	}

	t, ok := p.source.DrawRandom(p.rng)
	if !ok {
		return nil, ErrNoCandidate
	}

	t.AddedBy = fmt.Sprintf("Autoplay (Playlist: %s)", p.source.Name)
	zlog.Debug().Msgf("autoplay playlist picked: id=%s title=%s remaining=%d",
		t.ID, t.Title, len(p.source.Tracks))
	return &t, nil
}

// Name returns the provider name.
func (p *PlaylistProvider) Name() string {
	return "playlist"
}
