package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"setlist/internal/core"
)

func fullTrackJSON(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        "Song " + id,
		"uri":         "spotify:track:" + id,
		"duration_ms": 180000,
		"artists":     []map[string]any{{"id": "a1", "name": "Artist"}},
		"album":       map[string]any{"id": "al1", "name": "Album"},
		"external_urls": map[string]string{
			"spotify": "https://open.spotify.com/track/" + id,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"status": status, "message": message}})
}

type fakeRefresher struct {
	calls int32
	token *oauth2.Token
	err   error
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) (*oauth2.Token, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.token, f.err
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	limited  int
}

func (r *countingRecorder) RecordRequest(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[outcome]++
}

func (r *countingRecorder) RecordRateLimited(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limited++
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := core.DefaultConfig().Spotify
	cfg.BaseURL = server.URL
	cfg.RequestsPerMinute = 0
	cfg.TrackCacheSize = 16

	client := NewClient(&cfg, zap.NewNop(), append([]Option{WithHTTPClient(server.Client())}, opts...)...)
	client.SetTokens("access-1", "refresh-1")
	return client
}

func TestSearchArtists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "artist" {
			t.Errorf("type = %q, expected artist", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q, expected 5", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"artists": map[string]any{
				"items": []map[string]any{{
					"id":            "art1",
					"name":          "Floating Points",
					"popularity":    61,
					"genres":        []string{"electronica"},
					"followers":     map[string]any{"total": 1234},
					"images":        []map[string]any{{"url": "https://i.scdn.co/x", "height": 640, "width": 640}},
					"external_urls": map[string]string{"spotify": "https://open.spotify.com/artist/art1"},
				}},
				"total": 1,
			},
		})
	})

	client := newTestClient(t, mux)

	profiles, err := client.SearchArtists(context.Background(), "floating points", 5)
	if err != nil {
		t.Fatalf("SearchArtists() error = %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("got %d profiles, expected 1", len(profiles))
	}

	p := profiles[0]
	if p.ID != "art1" || p.Name != "Floating Points" || p.Popularity != 61 || p.Followers != 1234 {
		t.Errorf("unexpected profile: %+v", p)
	}
	if len(p.Images) != 1 || p.Images[0].Height != 640 || len(p.Genres) != 1 {
		t.Errorf("images/genres not converted: %+v", p)
	}
	if p.ExternalURL == "" {
		t.Error("external URL missing")
	}

	if _, err := client.SearchArtists(context.Background(), "  ", 5); !core.IsValidation(err) {
		t.Errorf("blank query should be a ValidationError, got %v", err)
	}
}

func TestArtistTopTracks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/artists/art1/top-tracks", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("country"); got != "DE" {
			t.Errorf("country = %q, expected DE", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tracks": []map[string]any{fullTrackJSON("t1"), fullTrackJSON("t2")},
		})
	})

	client := newTestClient(t, mux)

	tracks, err := client.ArtistTopTracks(context.Background(), "art1", "DE")
	if err != nil {
		t.Fatalf("ArtistTopTracks() error = %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, expected 2", len(tracks))
	}

	track := tracks[0]
	if track.ID != "t1" || track.URI != "spotify:track:t1" || track.Artist != "Artist" || track.Album != "Album" {
		t.Errorf("unexpected track: %+v", track)
	}
	if track.Duration != 3*time.Minute {
		t.Errorf("Duration = %v, expected 3m", track.Duration)
	}
	if track.Duplicate {
		t.Error("the gateway never flags duplicates")
	}
}

func TestAlbumTracks_RefetchesFullTracks(t *testing.T) {
	var lookups int32

	mux := http.NewServeMux()
	mux.HandleFunc("/albums/al1/tracks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{"id": "t1"}, {"id": "t2"}, {"id": "gone"}},
		})
	})
	mux.HandleFunc("/tracks", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&lookups, 1)
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		tracks := make([]any, 0, len(ids))
		for _, id := range ids {
			if id == "gone" {
				tracks = append(tracks, nil)
				continue
			}
			tracks = append(tracks, fullTrackJSON(id))
		}
		writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
	})

	client := newTestClient(t, mux)

	tracks, err := client.AlbumTracks(context.Background(), "al1", 0)
	if err != nil {
		t.Fatalf("AlbumTracks() error = %v", err)
	}
	if len(tracks) != 2 || tracks[0].ID != "t1" || tracks[1].ID != "t2" {
		t.Errorf("AlbumTracks() = %+v, expected t1 and t2 with the null dropped", tracks)
	}

	// Second listing is served from the track cache except the unknown id.
	if _, err := client.AlbumTracks(context.Background(), "al1", 0); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&lookups); got != 2 {
		t.Errorf("track lookups = %d, expected 2", got)
	}
}

func TestTracks_ChunksLookups(t *testing.T) {
	var sizes []int
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/tracks", func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		mu.Lock()
		sizes = append(sizes, len(ids))
		mu.Unlock()
		tracks := make([]any, 0, len(ids))
		for _, id := range ids {
			tracks = append(tracks, fullTrackJSON(id))
		}
		writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
	})

	client := newTestClient(t, mux)

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = "id" + string(rune('A'+i%26)) + string(rune('a'+i/26))
	}

	tracks, err := client.Tracks(context.Background(), ids)
	if err != nil {
		t.Fatalf("Tracks() error = %v", err)
	}
	if len(tracks) != 120 {
		t.Errorf("got %d tracks, expected 120", len(tracks))
	}
	for i := range tracks {
		if tracks[i].ID != ids[i] {
			t.Fatalf("order lost at %d", i)
		}
	}
	if len(sizes) != 3 || sizes[0] != 50 || sizes[2] != 20 {
		t.Errorf("lookup sizes = %v, expected [50 50 20]", sizes)
	}
}

func TestArtistCatalog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/artists/art1/top-tracks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"tracks": []map[string]any{fullTrackJSON("t1"), fullTrackJSON("t2")}})
	})
	mux.HandleFunc("/artists/art1/albums", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("include_groups"); got != "album,single" {
			t.Errorf("include_groups = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{"id": "new", "name": "Newest", "release_date": "2024-01-01", "album_group": "album"},
				{"id": "broken", "name": "Broken", "release_date": "2023-01-01", "album_group": "single"},
			},
		})
	})
	mux.HandleFunc("/albums/new/tracks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{{"id": "t2"}, {"id": "t3"}}})
	})
	mux.HandleFunc("/albums/broken/tracks", func(w http.ResponseWriter, _ *http.Request) {
		writeAPIError(w, http.StatusInternalServerError, "boom")
	})
	mux.HandleFunc("/tracks", func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		tracks := make([]any, 0, len(ids))
		for _, id := range ids {
			tracks = append(tracks, fullTrackJSON(id))
		}
		writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
	})

	client := newTestClient(t, mux)

	catalog, err := client.ArtistCatalog(context.Background(), "art1", "", 2)
	if err != nil {
		t.Fatalf("ArtistCatalog() error = %v", err)
	}

	var ids []string
	for _, track := range catalog {
		ids = append(ids, track.ID)
	}
	if strings.Join(ids, ",") != "t1,t2,t3" {
		t.Errorf("catalog = %v, expected top tracks then new album tracks without repeats", ids)
	}

	latest := client.LatestAlbumTracks(context.Background(), "art1")
	if len(latest) != 2 {
		t.Errorf("LatestAlbumTracks() returned %d tracks, expected 2", len(latest))
	}
	if got := client.LatestAlbumTracks(context.Background(), "unknown"); got != nil {
		t.Errorf("LatestAlbumTracks() on failure = %v, expected nothing", got)
	}
}

func TestArtistCatalog_UsesFetchConfig(t *testing.T) {
	fetch := core.FetchConfig{
		AlbumLimit:      5,
		AlbumTrackLimit: 7,
		IncludeGroups:   []string{"single", "appears_on"},
	}

	var albumTrackIDs []string
	mux := http.NewServeMux()
	mux.HandleFunc("/artists/art1/top-tracks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"tracks": []map[string]any{fullTrackJSON("t1")}})
	})
	mux.HandleFunc("/artists/art1/albums", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if got := query.Get("include_groups"); got != "single,appears_on" {
			t.Errorf("include_groups = %q, expected single,appears_on", got)
		}
		if got := query.Get("limit"); got != "5" {
			t.Errorf("album limit = %q, expected 5", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{"id": "old", "name": "Old", "release_date": "2019-05-01", "album_group": "single"},
				{"id": "new", "name": "New", "release_date": "2024-03-01", "album_group": "appears_on"},
			},
		})
	})
	mux.HandleFunc("/albums/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "7" {
			t.Errorf("album track limit = %q, expected 7", got)
		}
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/albums/"), "/tracks")
		albumTrackIDs = append(albumTrackIDs, id)
		writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{{"id": id + "-1"}}})
	})
	mux.HandleFunc("/tracks", func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		tracks := make([]any, 0, len(ids))
		for _, id := range ids {
			tracks = append(tracks, fullTrackJSON(id))
		}
		writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
	})

	client := newTestClient(t, mux, WithFetchConfig(&fetch))

	catalog, err := client.ArtistCatalog(context.Background(), "art1", "", 1)
	if err != nil {
		t.Fatalf("ArtistCatalog() error = %v", err)
	}
	if len(catalog) != 2 || catalog[1].ID != "new-1" {
		t.Errorf("catalog = %+v, expected the top track then the newest release", catalog)
	}

	latest := client.LatestAlbumTracks(context.Background(), "art1")
	if len(latest) != 1 || latest[0].ID != "new-1" {
		t.Errorf("LatestAlbumTracks() = %+v, expected the 2024 release", latest)
	}
	if strings.Join(albumTrackIDs, ",") != "new,new" {
		t.Errorf("albums fetched = %v, expected only the newest", albumTrackIDs)
	}
}

func TestCreatePlaylist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "user1", "display_name": "DJ", "country": "CH"})
	})
	mux.HandleFunc("/users/user1/playlists", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, expected POST", r.Method)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "Fest 2024" || body["public"] != false {
			t.Errorf("unexpected body: %v", body)
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":            "pl1",
			"name":          "Fest 2024",
			"uri":           "spotify:playlist:pl1",
			"external_urls": map[string]string{"spotify": "https://open.spotify.com/playlist/pl1"},
		})
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	user, err := client.CurrentUser(ctx)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if user.ID != "user1" || user.Country != "CH" {
		t.Errorf("unexpected user: %+v", user)
	}

	playlist, err := client.CreatePlaylist(ctx, user.ID, "Fest 2024", "lineup", false)
	if err != nil {
		t.Fatalf("CreatePlaylist() error = %v", err)
	}
	if playlist.ID != "pl1" || playlist.URL != "https://open.spotify.com/playlist/pl1" {
		t.Errorf("unexpected playlist: %+v", playlist)
	}

	if _, err := client.CreatePlaylist(ctx, user.ID, " ", "", true); !core.IsValidation(err) {
		t.Errorf("blank name should be a ValidationError, got %v", err)
	}
}

func TestAddItems(t *testing.T) {
	var calls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/playlists/pl1/tracks", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)

		raw, _ := io.ReadAll(r.Body)
		var body struct {
			URIs []string `json:"uris"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("invalid body %s: %v", raw, err)
		}
		if len(body.URIs) != 2 || body.URIs[0] != "spotify:track:a" {
			t.Errorf("uris = %v", body.URIs)
		}

		if n == 1 {
			w.Header().Set("Retry-After", "2")
			writeAPIError(w, http.StatusTooManyRequests, "API rate limit exceeded")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"snapshot_id": "s1"})
	})

	client := newTestClient(t, mux)
	uris := []string{"spotify:track:a", "spotify:track:b"}

	err := client.AddItems(context.Background(), "pl1", uris)
	var limited *core.RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.RetryAfter != 2*time.Second || limited.Status != 429 {
		t.Errorf("RateLimitedError = %+v", limited)
	}
	if !strings.Contains(limited.Message, "rate limit") {
		t.Errorf("message = %q, expected the API message", limited.Message)
	}

	if err := client.AddItems(context.Background(), "pl1", uris); err != nil {
		t.Errorf("second AddItems() error = %v", err)
	}
}

func TestAddTracksToPlaylist_RetriesThroughGateway(t *testing.T) {
	var calls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/playlists/pl1/tracks", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			writeAPIError(w, http.StatusTooManyRequests, "slow down")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"snapshot_id": "s"})
	})

	submit := core.DefaultConfig().Submit
	submit.DefaultRetryAfter = time.Millisecond
	submit.BatchDelay = 0
	recorder := &countingRecorder{}
	client := newTestClient(t, mux, WithSubmitConfig(&submit), WithRecorder(recorder))

	submitted, err := client.AddTracksToPlaylist(context.Background(), "pl1", makeURIs(3))
	if err != nil {
		t.Fatalf("AddTracksToPlaylist() error = %v", err)
	}
	if submitted != 3 || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("submitted %d in %d calls, expected 3 in 2", submitted, calls)
	}
	if recorder.limited != 1 || recorder.outcomes["rate_limited"] != 1 || recorder.outcomes["ok"] != 1 {
		t.Errorf("recorder = %+v", recorder)
	}
}

func TestAuthExpired_RefreshesOnce(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			writeAPIError(w, http.StatusUnauthorized, "The access token expired")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "user1"})
	})

	refresher := &fakeRefresher{token: &oauth2.Token{AccessToken: "access-2"}}
	var persisted []string
	client := newTestClient(t, mux,
		WithRefresher(refresher),
		WithTokenListener(func(access, refresh string) { persisted = []string{access, refresh} }))

	user, err := client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if user.ID != "user1" {
		t.Errorf("user = %+v", user)
	}
	if refresher.calls != 1 {
		t.Errorf("refresh calls = %d, expected 1", refresher.calls)
	}
	if len(persisted) != 2 || persisted[0] != "access-2" || persisted[1] != "refresh-1" {
		t.Errorf("listener got %v, expected the new access token and the kept refresh token", persisted)
	}
}

func TestAuthExpired_SurfacesWhenRefreshFails(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeAPIError(w, http.StatusUnauthorized, "The access token expired")
	})

	tests := []struct {
		name      string
		refresher *fakeRefresher
	}{
		{name: "no refresher", refresher: nil},
		{name: "refresh rejected", refresher: &fakeRefresher{err: errors.New("invalid_grant")}},
		{name: "still unauthorized", refresher: &fakeRefresher{token: &oauth2.Token{AccessToken: "access-3"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atomic.StoreInt32(&calls, 0)
			var opts []Option
			if tt.refresher != nil {
				opts = append(opts, WithRefresher(tt.refresher))
			}
			client := newTestClient(t, mux, opts...)

			_, err := client.CurrentUser(context.Background())
			var expired *core.AuthExpiredError
			if !errors.As(err, &expired) {
				t.Fatalf("expected AuthExpiredError, got %v", err)
			}
			if got := atomic.LoadInt32(&calls); got > 2 {
				t.Errorf("made %d calls, expected at most one retry", got)
			}
		})
	}
}

func TestClearTokens(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") != "" {
			t.Error("no credential should be attached after clearing")
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "x"})
	})

	client := newTestClient(t, mux)
	client.ClearTokens()

	if _, err := client.CurrentUser(context.Background()); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("no request should reach the API without a token")
	}
}

func TestExternalServiceError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/artists/art1/top-tracks", func(w http.ResponseWriter, _ *http.Request) {
		writeAPIError(w, http.StatusBadGateway, "upstream")
	})

	client := newTestClient(t, mux)

	_, err := client.ArtistTopTracks(context.Background(), "art1", "")
	var external *core.ExternalServiceError
	if !errors.As(err, &external) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if external.Status != http.StatusBadGateway || external.Op != "artist top tracks" {
		t.Errorf("ExternalServiceError = %+v", external)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in       string
		expected time.Duration
	}{
		{in: "2", expected: 2 * time.Second},
		{in: " 10 ", expected: 10 * time.Second},
		{in: "", expected: 0},
		{in: "-1", expected: 0},
		{in: "Wed, 21 Oct 2015 07:28:00 GMT", expected: 0},
	}

	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.expected {
			t.Errorf("parseRetryAfter(%q) = %v, expected %v", tt.in, got, tt.expected)
		}
	}
}

func TestAlbumTypes(t *testing.T) {
	if got := albumTypes(nil); len(got) != 2 {
		t.Errorf("default groups = %v, expected album and single", got)
	}
	if got := albumTypes([]string{"Compilation", "bogus", "appears_on"}); len(got) != 2 {
		t.Errorf("albumTypes() = %v, expected two known groups", got)
	}
}
