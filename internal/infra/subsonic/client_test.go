package subsonic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		ServerURL:     server.URL,
		Username:      "bot",
		Password:      "hunter2",
		CoverCacheDir: t.TempDir(),
	})
	require.NoError(t, err)
	return client
}

func TestSearch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/search3.view", r.URL.Path)
		assert.Equal(t, "bot", r.URL.Query().Get("u"))
		assert.Equal(t, "json", r.URL.Query().Get("f"))
		assert.Equal(t, "daft punk", r.URL.Query().Get("query"))
		assert.Equal(t, "10", r.URL.Query().Get("songCount"))
		assert.Equal(t, "20", r.URL.Query().Get("songOffset"))

		fmt.Fprint(w, `{"subsonic-response": {"status": "ok", "searchResult3": {
			"song": [
				{"id": "s-1", "title": "One More Time", "artist": "Daft Punk", "album": "Discovery", "coverArt": "c-1", "duration": 320},
				{"id": "s-2", "title": "Aerodynamic", "artist": "Daft Punk", "album": "Discovery", "coverArt": "c-1", "duration": 207}
			]
		}}}`)
	})

	tracks, err := client.Search(context.Background(), "daft punk", SearchOptions{SongCount: 10, SongOffset: 20})
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "s-1", tracks[0].ID)
	assert.Equal(t, "One More Time", tracks[0].Title)
	assert.Equal(t, 320*time.Second, tracks[0].Duration)
}

func TestSearch_NoResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"subsonic-response": {"status": "ok", "searchResult3": {}}}`)
	})

	tracks, err := client.Search(context.Background(), "nothing", SearchOptions{SongCount: 10})
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestSearch_MissingTagsFilled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"subsonic-response": {"status": "ok", "searchResult3": {
			"song": [{"id": "s-1", "duration": 100}]
		}}}`)
	})

	tracks, err := client.Search(context.Background(), "x", SearchOptions{SongCount: 1})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Unknown Track", tracks[0].Title)
	assert.Equal(t, "Unknown Artist", tracks[0].Artist)
	assert.Equal(t, "Unknown Album", tracks[0].Album)
}

func TestRandomTracks_Filters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/getRandomSongs.view", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("size"))
		assert.Equal(t, "jazz", r.URL.Query().Get("genre"))
		assert.Equal(t, "1970", r.URL.Query().Get("fromYear"))

		fmt.Fprint(w, `{"subsonic-response": {"status": "ok", "randomSongs": {
			"song": [{"id": "s-9", "title": "So What", "artist": "Miles Davis", "duration": 545}]
		}}}`)
	})

	tracks, err := client.RandomTracks(context.Background(), 1, RandomOptions{Genre: "jazz", FromYear: 1970})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "s-9", tracks[0].ID)
}

func TestSimilarTracks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/getSimilarSongs2.view", r.URL.Path)
		assert.Equal(t, "s-1", r.URL.Query().Get("id"))
		assert.Equal(t, "1", r.URL.Query().Get("count"))

		fmt.Fprint(w, `{"subsonic-response": {"status": "ok", "similarSongs2": {
			"song": [{"id": "s-2", "title": "Similar Song", "artist": "A", "duration": 200}]
		}}}`)
	})

	tracks, err := client.SimilarTracks(context.Background(), "s-1", 1)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "s-2", tracks[0].ID)
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"subsonic-response": {"status": "failed", "error": {"code": 40, "message": "Wrong username or password."}}}`)
	})

	_, err := client.Search(context.Background(), "x", SearchOptions{SongCount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error 40")
}

func TestGetPlaylist(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/getPlaylist", r.URL.Path)
		assert.Equal(t, "p-1", r.URL.Query().Get("id"))

		fmt.Fprint(w, `{"subsonic-response": {"status": "ok", "playlist": {
			"id": "p-1", "name": "Late Night", "songCount": 2, "duration": 500,
			"entry": [
				{"id": "s-1", "title": "A", "artist": "AA", "duration": 250},
				{"id": "s-2", "title": "B", "artist": "BB", "duration": 250}
			]
		}}}`)
	})

	playlist, err := client.GetPlaylist(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Late Night", playlist.Name)
	assert.Equal(t, 500*time.Second, playlist.Duration)
	require.Len(t, playlist.Tracks, 2)
	assert.Equal(t, "s-1", playlist.Tracks[0].ID)
}

func TestListPlaylists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/getPlaylists", r.URL.Path)

		fmt.Fprint(w, `{"subsonic-response": {"status": "ok", "playlists": {
			"playlist": [
				{"id": "p-1", "name": "Late Night", "songCount": 12, "duration": 3000},
				{"id": "p-2", "name": "Workout", "songCount": 30, "duration": 7200}
			]
		}}}`)
	})

	playlists, err := client.ListPlaylists(context.Background())
	require.NoError(t, err)
	require.Len(t, playlists, 2)
	assert.Equal(t, "Workout", playlists[1].Name)
}

func TestOpenStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/stream.view", r.URL.Path)
		assert.Equal(t, "s-1", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("audio-bytes"))
	})

	stream, err := client.OpenStream(context.Background(), "s-1")
	require.NoError(t, err)
	defer stream.Close()

	buf := make([]byte, 32)
	n, _ := stream.Read(buf)
	assert.Equal(t, "audio-bytes", string(buf[:n]))
}

func TestOpenStream_Error(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"subsonic-response": {"status": "failed", "error": {"code": 70, "message": "not found"}}}`)
	})

	_, err := client.OpenStream(context.Background(), "s-1")
	assert.Error(t, err)
}

func TestCoverArtFile_CachesOnDisk(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/rest/getCoverArt", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	})

	path, err := client.CoverArtFile(context.Background(), "c-1", "guild-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(client.coverCacheDir, "guild-1", "c-1.jpg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	// Second request is served from the filesystem cache.
	_, err = client.CoverArtFile(context.Background(), "c-1", "guild-1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCoverArtFile_Fallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"subsonic-response": {"status": "failed", "error": {"code": 70, "message": "not found"}}}`)
	})

	path, err := client.CoverArtFile(context.Background(), "c-1", "guild-1")
	require.NoError(t, err)
	assert.Equal(t, CoverNotFoundPath, path)

	// Empty cover IDs short-circuit to the placeholder without a request.
	path, err = client.CoverArtFile(context.Background(), "", "guild-1")
	require.NoError(t, err)
	assert.Equal(t, CoverNotFoundPath, path)
}
