// Package settings provides durable per-guild settings storage.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Record is the persisted settings for one guild. Unknown fields in a loaded
// file are ignored field-by-field, and fields missing from older records keep
// their zero values, so the schema can evolve without migration.
type Record struct {
	Mode     string        `json:"mode"`      // autoplay mode name ("off", "random", ...)
	SourceID string        `json:"source_id"` // autoplay playlist source (playlist-shuffle mode)
	Queue    []QueuedTrack `json:"queue"`     // last-persisted queue snapshot
}

// QueuedTrack is a persisted queue entry.
type QueuedTrack struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	CoverID  string `json:"cover_id"`
	Duration int64  `json:"duration_sec"`
	AddedBy  string `json:"added_by"`
}

// Store reads and writes guild settings to a single JSON file.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads all guild records from disk. A missing file is not an error and
// yields an empty map.
func (s *Store) Load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			zlog.Info().Msgf("no guild settings file at %s, starting empty", s.path)
			return map[string]Record{}, nil
		}
		return nil, errors.Wrap(err, "failed to read settings file")
	}

	records := make(map[string]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, "failed to parse settings file")
	}

	zlog.Info().Msgf("loaded settings for %d guilds", len(records))
	return records, nil
}

// Save writes all guild records to disk. The write goes through a temp file
// and rename so a crash mid-write cannot truncate the previous snapshot.
func (s *Store) Save(records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode settings")
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "failed to create settings dir")
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write settings file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "failed to replace settings file")
	}

	zlog.Debug().Msgf("saved settings for %d guilds", len(records))
	return nil
}
