package autoplay

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/hiraico/subwoofer/internal/domain/track"
)

// SimilarProvider asks the catalog for a track similar to the previous one.
// With no previous track to seed from (first-ever playback) it behaves
// exactly like the random provider.
type SimilarProvider struct {
	catalog  Catalog
	fallback *RandomProvider
}

// NewSimilarProvider creates a SimilarProvider.
func NewSimilarProvider(catalog Catalog, fallback *RandomProvider) *SimilarProvider {
	return &SimilarProvider{catalog: catalog, fallback: fallback}
}

// Next retrieves one track similar to req.PrevTrackID.
func (p *SimilarProvider) Next(ctx context.Context, req Request) (*track.Track, error) {
	if req.PrevTrackID == "" {
		zlog.Debug().Msg("autoplay similar has no seed track, falling back to random")
		return p.fallback.Next(ctx, req)
	}

	tracks, err := p.catalog.SimilarTracks(ctx, req.PrevTrackID, 1)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get similar tracks")
	}
	if len(tracks) == 0 {
		return nil, ErrNoCandidate
	}

	t := tracks[0]
	t.AddedBy = "Autoplay (Similar)"
	zlog.Debug().Msgf("autoplay similar picked: id=%s title=%s seed=%s", t.ID, t.Title, req.PrevTrackID)
	return &t, nil
}

// Name returns the provider name.
func (p *SimilarProvider) Name() string {
	return "similar"
}
