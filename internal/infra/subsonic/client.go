// Package subsonic provides a client for the Subsonic REST API.
package subsonic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/hiraico/subwoofer/internal/domain/track"
)

const apiVersion = "1.15.0"

// CoverNotFoundPath is returned when the catalog has no art for a cover ID.
const CoverNotFoundPath = "resources/cover_not_found.jpg"

// Config represents Subsonic client configuration.
type Config struct {
	ServerURL     string
	Username      string
	Password      string
	ClientName    string
	CoverCacheDir string
}

// Client is a Subsonic REST API client.
type Client struct {
	baseURL       string
	username      string
	password      string
	clientName    string
	coverCacheDir string
	httpClient    *http.Client
}

// SearchOptions holds paging parameters for a search request.
type SearchOptions struct {
	ArtistCount  int
	ArtistOffset int
	AlbumCount   int
	AlbumOffset  int
	SongCount    int
	SongOffset   int
}

// RandomOptions holds optional filters for a random songs request.
type RandomOptions struct {
	Genre    string
	FromYear int
	ToYear   int
}

// songJSON is a song entry in a Subsonic response.
type songJSON struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Album    string `json:"album"`
	Artist   string `json:"artist"`
	CoverArt string `json:"coverArt"`
	Duration int    `json:"duration"` // seconds
}

// playlistJSON is a playlist entry in a Subsonic response.
type playlistJSON struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	SongCount int        `json:"songCount"`
	Duration  int        `json:"duration"` // seconds
	Entry     []songJSON `json:"entry"`
}

type songContainer struct {
	Song []songJSON `json:"song"`
}

// envelope is the common "subsonic-response" wrapper.
type envelope struct {
	Response struct {
		Status string `json:"status"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		SearchResult3 *songContainer `json:"searchResult3"`
		RandomSongs   *songContainer `json:"randomSongs"`
		SimilarSongs2 *songContainer `json:"similarSongs2"`
		Playlists     *struct {
			Playlist []playlistJSON `json:"playlist"`
		} `json:"playlists"`
		Playlist *playlistJSON `json:"playlist"`
	} `json:"subsonic-response"`
}

// New creates a new Subsonic client.
func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("subsonic server URL is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("subsonic credentials are required")
	}

	clientName := cfg.ClientName
	if clientName == "" {
		clientName = "subwoofer"
	}
	cacheDir := cfg.CoverCacheDir
	if cacheDir == "" {
		cacheDir = "cache"
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.ServerURL, "/"),
		username:      cfg.Username,
		password:      cfg.Password,
		clientName:    clientName,
		coverCacheDir: cacheDir,
		httpClient:    &http.Client{Timeout: 20 * time.Second},
	}, nil
}

// baseParams returns the authentication parameters common to all requests.
func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("u", c.username)
	params.Set("p", c.password)
	params.Set("v", apiVersion)
	params.Set("c", c.clientName)
	params.Set("f", "json")
	return params
}

// get performs a GET against a Subsonic REST endpoint and decodes the
// response envelope, mapping API error codes to errors.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*envelope, error) {
	reqURL := c.baseURL + "/rest/" + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}

	if apiErr := env.Response.Error; apiErr != nil {
		msg := errorMessage(apiErr.Code)
		zlog.Warn().Msgf("subsonic API request responded with error code %d: %s", apiErr.Code, msg)
		return nil, errors.Newf("subsonic API error %d: %s", apiErr.Code, msg)
	}

	return &env, nil
}

// errorMessage maps a Subsonic API error code to a description.
func errorMessage(code int) string {
	switch code {
	case 0:
		return "Generic Error."
	case 10:
		return "Required Parameter Missing."
	case 20:
		return "Incompatible Subsonic REST protocol version. Client must upgrade."
	case 30:
		return "Incompatible Subsonic REST protocol version. Server must upgrade."
	case 40:
		return "Wrong username or password."
	case 41:
		return "Token authentication not supported for LDAP users."
	case 50:
		return "User is not authorized for the given operation."
	case 60:
		return "The trial period for the Subsonic server is over."
	case 70:
		return "The requested data was not found."
	default:
		return "Unknown Error Code."
	}
}

// toTrack converts a song entry to a domain track, filling defaults for
// missing tags the way older Subsonic servers omit them.
func toTrack(s songJSON) track.Track {
	t := track.Track{
		ID:       s.ID,
		Title:    s.Title,
		Album:    s.Album,
		Artist:   s.Artist,
		CoverID:  s.CoverArt,
		Duration: time.Duration(s.Duration) * time.Second,
	}
	if t.Title == "" {
		t.Title = "Unknown Track"
	}
	if t.Album == "" {
		t.Album = "Unknown Album"
	}
	if t.Artist == "" {
		t.Artist = "Unknown Artist"
	}
	return t
}

func toTracks(songs []songJSON) []track.Track {
	tracks := make([]track.Track, 0, len(songs))
	for _, s := range songs {
		tracks = append(tracks, toTrack(s))
	}
	return tracks
}

// Search sends a search3 request and returns the matching songs.
// Reference: http://www.subsonic.org/pages/api.jsp#search3
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]track.Track, error) {
	params := c.baseParams()
	params.Set("query", query)
	params.Set("artistCount", strconv.Itoa(opts.ArtistCount))
	params.Set("artistOffset", strconv.Itoa(opts.ArtistOffset))
	params.Set("albumCount", strconv.Itoa(opts.AlbumCount))
	params.Set("albumOffset", strconv.Itoa(opts.AlbumOffset))
	params.Set("songCount", strconv.Itoa(opts.SongCount))
	params.Set("songOffset", strconv.Itoa(opts.SongOffset))

	env, err := c.get(ctx, "search3.view", params)
	if err != nil {
		return nil, err
	}
	if env.Response.SearchResult3 == nil {
		return []track.Track{}, nil
	}
	return toTracks(env.Response.SearchResult3.Song), nil
}

// RandomTracks requests random songs, optionally filtered by genre and year.
// Reference: http://www.subsonic.org/pages/api.jsp#getRandomSongs
func (c *Client) RandomTracks(ctx context.Context, count int, opts RandomOptions) ([]track.Track, error) {
	params := c.baseParams()
	if count > 0 {
		params.Set("size", strconv.Itoa(count))
	}
	if opts.Genre != "" {
		params.Set("genre", opts.Genre)
	}
	if opts.FromYear > 0 {
		params.Set("fromYear", strconv.Itoa(opts.FromYear))
	}
	if opts.ToYear > 0 {
		params.Set("toYear", strconv.Itoa(opts.ToYear))
	}

	env, err := c.get(ctx, "getRandomSongs.view", params)
	if err != nil {
		return nil, err
	}
	if env.Response.RandomSongs == nil {
		return []track.Track{}, nil
	}
	return toTracks(env.Response.RandomSongs.Song), nil
}

// SimilarTracks requests songs similar to the given track.
// Reference: http://www.subsonic.org/pages/api.jsp#getSimilarSongs2
func (c *Client) SimilarTracks(ctx context.Context, trackID string, count int) ([]track.Track, error) {
	if trackID == "" {
		return nil, errors.New("track ID is required")
	}

	params := c.baseParams()
	params.Set("id", trackID)
	params.Set("count", strconv.Itoa(count))

	env, err := c.get(ctx, "getSimilarSongs2.view", params)
	if err != nil {
		return nil, err
	}
	if env.Response.SimilarSongs2 == nil {
		return []track.Track{}, nil
	}
	return toTracks(env.Response.SimilarSongs2.Song), nil
}

// ListPlaylists returns the playlists visible to the configured user.
// Track lists are not populated; fetch a playlist by ID for its entries.
func (c *Client) ListPlaylists(ctx context.Context) ([]track.PlaylistSource, error) {
	env, err := c.get(ctx, "getPlaylists", c.baseParams())
	if err != nil {
		return nil, err
	}
	if env.Response.Playlists == nil {
		return []track.PlaylistSource{}, nil
	}

	playlists := make([]track.PlaylistSource, 0, len(env.Response.Playlists.Playlist))
	for _, p := range env.Response.Playlists.Playlist {
		playlists = append(playlists, track.PlaylistSource{
			ID:       p.ID,
			Name:     p.Name,
			Duration: time.Duration(p.Duration) * time.Second,
		})
	}
	return playlists, nil
}

// GetPlaylist fetches a playlist and its full track list.
func (c *Client) GetPlaylist(ctx context.Context, playlistID string) (*track.PlaylistSource, error) {
	if playlistID == "" {
		return nil, errors.New("playlist ID is required")
	}

	params := c.baseParams()
	params.Set("id", playlistID)

	env, err := c.get(ctx, "getPlaylist", params)
	if err != nil {
		return nil, err
	}
	if env.Response.Playlist == nil {
		return nil, errors.New("playlist not present in response")
	}

	p := env.Response.Playlist
	return &track.PlaylistSource{
		ID:       p.ID,
		Name:     p.Name,
		Duration: time.Duration(p.Duration) * time.Second,
		Tracks:   toTracks(p.Entry),
	}, nil
}

// OpenStream opens the audio byte stream for a track. The caller owns the
// returned reader and must close it.
func (c *Client) OpenStream(ctx context.Context, trackID string) (io.ReadCloser, error) {
	if trackID == "" {
		return nil, errors.New("track ID is required")
	}

	params := c.baseParams()
	params.Set("id", trackID)
	params.Set("raw", "true")

	reqURL := c.baseURL + "/rest/stream.view?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	// Error responses come back as a JSON envelope instead of audio bytes.
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		var env envelope
		if err := json.Unmarshal(body, &env); err == nil && env.Response.Error != nil {
			return nil, errors.Newf("subsonic API error %d: %s",
				env.Response.Error.Code, errorMessage(env.Response.Error.Code))
		}
		return nil, errors.New("stream request returned no audio")
	}

	return resp.Body, nil
}

// CoverArtFile fetches cover art and caches it on disk per guild, returning
// the local file path. Returns a placeholder path when the catalog has no
// art for the cover ID.
func (c *Client) CoverArtFile(ctx context.Context, coverID, guildID string) (string, error) {
	if coverID == "" {
		return CoverNotFoundPath, nil
	}

	targetPath := filepath.Join(c.coverCacheDir, guildID, coverID+".jpg")
	if _, err := os.Stat(targetPath); err == nil {
		return targetPath, nil
	}

	params := c.baseParams()
	params.Set("id", coverID)
	params.Set("size", "300")

	reqURL := c.baseURL + "/rest/getCoverArt?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response body")
	}

	// A JSON body means the catalog reported an error (typically code 70,
	// data not found); fall back to the placeholder.
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Response.Error != nil {
		zlog.Warn().Msgf("subsonic API request responded with error code %d: %s",
			env.Response.Error.Code, errorMessage(env.Response.Error.Code))
		return CoverNotFoundPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return "", errors.Wrap(err, "failed to create cover cache dir")
	}
	if err := os.WriteFile(targetPath, body, 0644); err != nil {
		return "", errors.Wrap(err, "failed to write cover art file")
	}

	return targetPath, nil
}
