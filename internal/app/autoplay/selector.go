package autoplay

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/hiraico/subwoofer/internal/domain/track"
)

// Selector routes a replenishment request to the provider for the guild's
// current autoplay mode.
type Selector struct {
	providers map[Mode]Provider
}

// NewSelector builds a selector with one provider per active mode. The
// random provider is configured from the settings map; similar and playlist
// providers share the same catalog.
func NewSelector(catalog Catalog, randomSettings map[string]any) (*Selector, error) {
	random, err := NewRandomProvider(catalog, randomSettings)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create random provider")
	}

	return &Selector{
		providers: map[Mode]Provider{
			ModeRandom:          random,
			ModeSimilar:         NewSimilarProvider(catalog, random),
			ModePlaylistShuffle: NewPlaylistProvider(catalog),
		},
	}, nil
}

// Pick selects exactly one track for the given mode. ModeOff yields no track
// and no error.
func (s *Selector) Pick(ctx context.Context, mode Mode, req Request) (*track.Track, error) {
	if mode == ModeOff {
		return nil, nil
	}

	provider, ok := s.providers[mode]
	if !ok {
		return nil, errors.Newf("no provider for autoplay mode %s", mode)
	}
	return provider.Next(ctx, req)
}
