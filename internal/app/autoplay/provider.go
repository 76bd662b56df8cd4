// Package autoplay provides track selection strategies for replenishing an
// empty queue.
package autoplay

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/hiraico/subwoofer/internal/domain/track"
	"github.com/hiraico/subwoofer/internal/infra/subsonic"
)

// ErrNoCandidate is returned when a provider cannot supply a track.
var ErrNoCandidate = errors.New("autoplay provider returned no tracks")

// Mode represents an autoplay mode.
type Mode int

const (
	ModeOff             Mode = iota // Autoplay disabled
	ModeRandom                      // One random catalog track
	ModeSimilar                     // One track similar to the previous one
	ModePlaylistShuffle             // One random draw from a configured playlist
)

// String returns the string representation of the mode. This is also the
// persisted form.
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeRandom:
		return "random"
	case ModeSimilar:
		return "similar"
	case ModePlaylistShuffle:
		return "playlist"
	default:
		return "unknown"
	}
}

// ParseMode parses a persisted mode name. Unknown names fall back to ModeOff
// so settings files written by newer versions still load.
func ParseMode(s string) Mode {
	switch s {
	case "random":
		return ModeRandom
	case "similar":
		return ModeSimilar
	case "playlist":
		return ModePlaylistShuffle
	default:
		return ModeOff
	}
}

// Request carries the context a provider needs to pick a track.
type Request struct {
	PrevTrackID string // Track that just finished (may be empty)
	SourceID    string // Configured playlist source (playlist-shuffle mode)
}

// Provider is the interface for autoplay track providers. Implementations
// return exactly one track per call with its attribution label already
// stamped, or ErrNoCandidate.
type Provider interface {
	Next(ctx context.Context, req Request) (*track.Track, error)
	Name() string
}

// Catalog defines the catalog operations needed by autoplay providers.
type Catalog interface {
	RandomTracks(ctx context.Context, count int, opts subsonic.RandomOptions) ([]track.Track, error)
	SimilarTracks(ctx context.Context, trackID string, count int) ([]track.Track, error)
	GetPlaylist(ctx context.Context, playlistID string) (*track.PlaylistSource, error)
}
