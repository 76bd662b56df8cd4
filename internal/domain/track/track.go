// Package track provides the Track and PlaylistSource domain entities.
package track

import (
	"fmt"
	"math/rand"
	"time"
)

// Track represents a single playable audio item returned from the catalog.
// Fields are immutable once the track has been constructed from catalog data;
// AddedBy is stamped exactly once after retrieval, before the track is
// enqueued.
type Track struct {
	ID       string        // Catalog track ID
	Title    string        // Track title
	Artist   string        // Artist name
	Album    string        // Album name
	CoverID  string        // Cover art ID
	Duration time.Duration // Track duration
	AddedBy  string        // Attribution label ("added by X" / "Autoplay (Random)" / ...)
}

// DurationPrintable returns the track duration as `mm:ss`.
func (t *Track) DurationPrintable() string {
	secs := int(t.Duration.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// PlaylistSource represents a catalog playlist used as an autoplay source.
// Tracks holds the remaining (not yet drawn) entries; the slice shrinks as
// tracks are drawn and the source must be re-fetched once exhausted.
type PlaylistSource struct {
	ID       string        // Catalog playlist ID
	Name     string        // Playlist display name
	Duration time.Duration // Total playlist duration
	Tracks   []Track       // Remaining tracks
}

// Exhausted returns true if no tracks remain to be drawn.
func (p *PlaylistSource) Exhausted() bool {
	return len(p.Tracks) == 0
}

// DrawRandom removes and returns a track at a uniformly random index from
// the remaining list. Returns false if the source is exhausted.
func (p *PlaylistSource) DrawRandom(rng *rand.Rand) (Track, bool) {
	if len(p.Tracks) == 0 {
		return Track{}, false
	}
	i := rng.Intn(len(p.Tracks))
	t := p.Tracks[i]
	p.Tracks = append(p.Tracks[:i], p.Tracks[i+1:]...)
	return t, true
}

// DurationPrintable returns the playlist duration as `dd:hh:mm:ss`, omitting
// leading zero day/hour segments.
func (p *PlaylistSource) DurationPrintable() string {
	secs := int(p.Duration.Seconds())
	days := secs / 86400
	hours := (secs % 86400) / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60

	out := ""
	if days > 0 {
		out += fmt.Sprintf("%2d:", days)
	}
	if hours > 0 {
		out += fmt.Sprintf("%02d:", hours)
	}
	return out + fmt.Sprintf("%02d:%02d", minutes, seconds)
}
