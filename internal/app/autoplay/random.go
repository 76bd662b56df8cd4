package autoplay

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/hiraico/subwoofer/internal/domain/track"
	"github.com/hiraico/subwoofer/internal/infra/subsonic"
)

// RandomProviderConfig holds optional catalog filters for random selection.
type RandomProviderConfig struct {
	Genre    string `yaml:"genre" mapstructure:"genre"`
	FromYear int    `yaml:"from_year" mapstructure:"from_year" validate:"gte=0"`
	ToYear   int    `yaml:"to_year" mapstructure:"to_year" validate:"gte=0"`
}

// RandomProvider asks the catalog for one random track.
type RandomProvider struct {
	catalog Catalog
	config  *RandomProviderConfig
}

// NewRandomProvider creates a RandomProvider from a free-form settings map.
func NewRandomProvider(catalog Catalog, settings map[string]any) (*RandomProvider, error) {
	var config RandomProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	if config.FromYear > 0 && config.ToYear > 0 && config.FromYear > config.ToYear {
		return nil, errors.New("from_year must not be after to_year")
	}

	return &RandomProvider{catalog: catalog, config: &config}, nil
}

// Next retrieves one random track from the catalog.
func (p *RandomProvider) Next(ctx context.Context, req Request) (*track.Track, error) {
	tracks, err := p.catalog.RandomTracks(ctx, 1, subsonic.RandomOptions{
		Genre:    p.config.Genre,
		FromYear: p.config.FromYear,
		ToYear:   p.config.ToYear,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get random tracks")
	}
	if len(tracks) == 0 {
		return nil, ErrNoCandidate
	}

	t := tracks[0]
	t.AddedBy = "Autoplay (Random)"
	zlog.Debug().Msgf("autoplay random picked: id=%s title=%s", t.ID, t.Title)
	return &t, nil
}

// Name returns the provider name.
func (p *RandomProvider) Name() string {
	return "random"
}
