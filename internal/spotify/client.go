// Package spotify is the gateway to the Spotify Web API: artist search, catalogue lookups,
// playlist creation and rate-limited item submission.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"setlist/internal/core"
	"setlist/internal/throttle"
)

const (
	// DefaultBaseURL is the public Web API root
	DefaultBaseURL = "https://api.spotify.com/v1/"
	// MaxTracksPerLookup is the id limit of the several-tracks endpoint
	MaxTracksPerLookup = 50
	// RequestTimeout bounds a single HTTP round trip
	RequestTimeout = 30 * time.Second
	// pacerBurst is how many calls may go out back to back
	pacerBurst = 10
)

// Recorder receives per-call telemetry. internal/http.Metrics implements it.
type Recorder interface {
	RecordRequest(op, outcome string, duration time.Duration)
	RecordRateLimited(op string)
}

// Refresher trades a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport underneath the bearer-token layer.
func WithHTTPClient(base *http.Client) Option {
	return func(c *Client) {
		c.base = base
	}
}

// WithRefresher enables the refresh-and-retry on 401.
func WithRefresher(r Refresher) Option {
	return func(c *Client) {
		c.refresher = r
	}
}

// WithRecorder receives per-call telemetry.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithTokenListener is called with the new pair after every token change the client makes
// on its own, so the caller can persist it.
func WithTokenListener(fn func(access, refresh string)) Option {
	return func(c *Client) {
		c.onTokens = fn
	}
}

// WithFetchConfig sets the album groups and page sizes used for catalogue lookups.
func WithFetchConfig(cfg *core.FetchConfig) Option {
	return func(c *Client) {
		c.fetchConfig = cfg
	}
}

// WithSubmitConfig tunes the batch submitter behind AddTracksToPlaylist.
func WithSubmitConfig(cfg *core.SubmitConfig) Option {
	return func(c *Client) {
		c.submitConfig = cfg
	}
}

// Client is a paced, token-refreshing Spotify Web API client.
type Client struct {
	config       *core.SpotifyConfig
	submitConfig *core.SubmitConfig
	fetchConfig  *core.FetchConfig
	logger       *zap.Logger
	base         *http.Client
	api          *spotify.Client
	rest         *resty.Client
	pacer        *throttle.Pacer
	tracks       *lru.Cache[string, core.Track]
	refresher    Refresher
	recorder     Recorder
	onTokens     func(access, refresh string)
	submitter    *Submitter

	mu      sync.RWMutex
	access  string
	refresh string
	// refreshMu serialises refresh attempts so concurrent 401s trade the token once.
	refreshMu sync.Mutex
}

func NewClient(config *core.SpotifyConfig, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		config:   config,
		logger:   logger.Named("spotify"),
		base:     &http.Client{Timeout: RequestTimeout},
		pacer:    throttle.New(config.RequestsPerMinute, pacerBurst),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.tracks = newTrackCache(config.TrackCacheSize)
	if c.fetchConfig == nil {
		c.fetchConfig = &core.DefaultConfig().Fetch
	}

	transport := c.base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	authorised := &http.Client{
		Transport: &oauth2.Transport{Source: tokenSource{c}, Base: transport},
		Timeout:   c.base.Timeout,
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	c.api = spotify.New(authorised, spotify.WithBaseURL(baseURL))
	c.rest = resty.NewWithClient(authorised).
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Accept", "application/json")

	submitConfig := c.submitConfig
	if submitConfig == nil {
		submitConfig = &core.DefaultConfig().Submit
	}
	c.submitter = NewSubmitter(submitConfig, c, c.logger, WithRateLimitHook(c.recorder.RecordRateLimited))

	return c
}

func newTrackCache(size int) *lru.Cache[string, core.Track] {
	if size <= 0 {
		return nil
	}
	cache, err := lru.New[string, core.Track](size)
	if err != nil {
		return nil
	}
	return cache
}

// SetTokens installs the credential pair. An empty refresh token keeps the previous one.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.access = access
	if refresh != "" {
		c.refresh = refresh
	}
}

// ClearTokens forgets the credential pair; later calls fail with core.ErrNotAuthenticated.
func (c *Client) ClearTokens() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.access = ""
	c.refresh = ""
}

func (c *Client) tokens() (access, refresh string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access, c.refresh
}

// tokenSource hands the current access token to oauth2.Transport on every request.
type tokenSource struct {
	c *Client
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	access, _ := ts.c.tokens()
	if access == "" {
		return nil, core.ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}, nil
}

// do runs one API call. A 401 triggers a single refresh-and-retry when a refresh token
// is available.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	access, _ := c.tokens()
	if access == "" {
		return core.ErrNotAuthenticated
	}

	err := c.call(ctx, op, fn)

	var expired *core.AuthExpiredError
	if !errors.As(err, &expired) {
		return err
	}

	if refreshErr := c.refreshAfter(ctx, access); refreshErr != nil {
		c.logger.Warn("Token refresh failed",
			zap.String("op", op),
			zap.Error(refreshErr))
		return err
	}

	return c.call(ctx, op, fn)
}

func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	start := time.Now()
	err := classify(op, fn(ctx))
	c.recorder.RecordRequest(op, outcome(err), time.Since(start))

	if err != nil {
		c.logger.Debug("Spotify call failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

// refreshAfter trades the refresh token unless another caller already replaced stale.
func (c *Client) refreshAfter(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	access, refresh := c.tokens()
	if access != stale && access != "" {
		return nil
	}
	if refresh == "" || c.refresher == nil {
		return core.ErrNoRefreshToken
	}

	token, err := c.refresher.Refresh(ctx, refresh)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	c.SetTokens(token.AccessToken, token.RefreshToken)
	access, refresh = c.tokens()
	if c.onTokens != nil {
		c.onTokens(access, refresh)
	}

	c.logger.Info("Access token refreshed")
	return nil
}

// classify maps library and transport errors onto the core taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		expired  *core.AuthExpiredError
		limited  *core.RateLimitedError
		external *core.ExternalServiceError
	)
	if errors.As(err, &expired) || errors.As(err, &limited) || errors.As(err, &external) {
		return err
	}
	if errors.Is(err, core.ErrNotAuthenticated) {
		return core.ErrNotAuthenticated
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return core.StatusError(op, apiErr.Status, 0, apiErr.Message)
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) {
		return core.StatusError(op, apiErrPtr.Status, 0, apiErrPtr.Message)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func outcome(err error) string {
	var (
		expired  *core.AuthExpiredError
		limited  *core.RateLimitedError
		external *core.ExternalServiceError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &expired):
		return "unauthorized"
	case errors.As(err, &limited):
		return "rate_limited"
	case errors.As(err, &external):
		return "api_error"
	default:
		return "transport_error"
	}
}

// CurrentUser returns the authorised account.
func (c *Client) CurrentUser(ctx context.Context) (core.User, error) {
	var user core.User
	err := c.do(ctx, "current user", func(ctx context.Context) error {
		u, err := c.api.CurrentUser(ctx)
		if err != nil {
			return err
		}
		user = core.User{ID: u.ID, DisplayName: u.DisplayName, Country: u.Country}
		return nil
	})
	return user, err
}

// SearchArtists looks up artist profiles by name.
func (c *Client) SearchArtists(ctx context.Context, query string, limit int) ([]core.ArtistProfile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &core.ValidationError{Field: "query", Reason: "must not be blank"}
	}
	if limit <= 0 {
		limit = 10
	}

	var profiles []core.ArtistProfile
	err := c.do(ctx, "search artists", func(ctx context.Context) error {
		results, err := c.api.Search(ctx, query, spotify.SearchTypeArtist, spotify.Limit(limit))
		if err != nil {
			return err
		}
		profiles = profiles[:0]
		if results.Artists == nil {
			return nil
		}
		for i := range results.Artists.Artists {
			profiles = append(profiles, convertArtist(&results.Artists.Artists[i]))
		}
		return nil
	})
	return profiles, err
}

// ArtistTopTracks returns the artist's most popular tracks in market.
func (c *Client) ArtistTopTracks(ctx context.Context, artistID, market string) ([]core.Track, error) {
	if market == "" {
		market = c.config.Market
	}

	var tracks []core.Track
	err := c.do(ctx, "artist top tracks", func(ctx context.Context) error {
		top, err := c.api.GetArtistsTopTracks(ctx, spotify.ID(artistID), market)
		if err != nil {
			return err
		}
		tracks = make([]core.Track, 0, len(top))
		for i := range top {
			track := convertTrack(&top[i])
			c.remember(track)
			tracks = append(tracks, track)
		}
		return nil
	})
	return tracks, err
}

// ArtistAlbums lists the artist's releases of the given groups in API order. Nil groups
// and a zero limit fall back to the fetch configuration.
func (c *Client) ArtistAlbums(ctx context.Context, artistID string, includeGroups []string, limit int) ([]core.Album, error) {
	if includeGroups == nil {
		includeGroups = c.fetchConfig.IncludeGroups
	}
	if limit <= 0 {
		limit = c.fetchConfig.AlbumLimit
	}
	if limit <= 0 {
		limit = 20
	}

	var albums []core.Album
	err := c.do(ctx, "artist albums", func(ctx context.Context) error {
		page, err := c.api.GetArtistAlbums(ctx, spotify.ID(artistID), albumTypes(includeGroups),
			spotify.Limit(limit), spotify.Market(c.config.Market))
		if err != nil {
			return err
		}
		albums = make([]core.Album, 0, len(page.Albums))
		for i := range page.Albums {
			albums = append(albums, convertAlbum(&page.Albums[i]))
		}
		return nil
	})
	return albums, err
}

// AlbumTracks lists an album and re-fetches the full track records for it.
func (c *Client) AlbumTracks(ctx context.Context, albumID string, limit int) ([]core.Track, error) {
	if limit <= 0 {
		limit = c.fetchConfig.AlbumTrackLimit
	}
	if limit <= 0 {
		limit = 50
	}

	var ids []string
	err := c.do(ctx, "album tracks", func(ctx context.Context) error {
		page, err := c.api.GetAlbumTracks(ctx, spotify.ID(albumID),
			spotify.Limit(limit), spotify.Market(c.config.Market))
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(page.Tracks))
		for i := range page.Tracks {
			if page.Tracks[i].ID != "" {
				ids = append(ids, string(page.Tracks[i].ID))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c.Tracks(ctx, ids)
}

// Tracks returns full records for ids in order, dropping ids the API doesn't know.
// Lookups are served from the cache when possible.
func (c *Client) Tracks(ctx context.Context, ids []string) ([]core.Track, error) {
	found := make(map[string]core.Track, len(ids))
	var missing []spotify.ID

	for _, id := range ids {
		if track, ok := c.cached(id); ok {
			found[id] = track
			continue
		}
		missing = append(missing, spotify.ID(id))
	}

	for start := 0; start < len(missing); start += MaxTracksPerLookup {
		end := min(start+MaxTracksPerLookup, len(missing))
		chunk := missing[start:end]

		err := c.do(ctx, "tracks", func(ctx context.Context) error {
			full, err := c.api.GetTracks(ctx, chunk)
			if err != nil {
				return err
			}
			for _, ft := range full {
				if ft == nil {
					continue
				}
				track := convertTrack(ft)
				c.remember(track)
				found[track.ID] = track
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	tracks := make([]core.Track, 0, len(ids))
	for _, id := range ids {
		if track, ok := found[id]; ok {
			tracks = append(tracks, track)
		}
	}
	return tracks, nil
}

// LatestAlbumTracks returns the tracks of the artist's newest release. It is best-effort:
// any failure is logged and yields no tracks.
func (c *Client) LatestAlbumTracks(ctx context.Context, artistID string) []core.Track {
	albums, err := c.newestAlbums(ctx, artistID)
	if err != nil {
		c.logger.Warn("Failed to list latest album",
			zap.String("artist_id", artistID),
			zap.Error(err))
		return nil
	}
	if len(albums) == 0 {
		return nil
	}

	tracks, err := c.AlbumTracks(ctx, albums[0].ID, 0)
	if err != nil {
		c.logger.Warn("Failed to fetch latest album tracks",
			zap.String("artist_id", artistID),
			zap.String("album", albums[0].Name),
			zap.Error(err))
		return nil
	}
	return tracks
}

// ArtistCatalog returns the artist's top tracks followed by the tracks of the newest
// extraAlbums releases that aren't already among them. A failing album is skipped.
func (c *Client) ArtistCatalog(ctx context.Context, artistID, market string, extraAlbums int) ([]core.Track, error) {
	var (
		top    []core.Track
		albums []core.Album
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		top, err = c.ArtistTopTracks(gctx, artistID, market)
		return err
	})
	if extraAlbums > 0 {
		g.Go(func() error {
			var err error
			albums, err = c.newestAlbums(gctx, artistID)
			if err != nil {
				c.logger.Warn("Failed to list albums for catalogue",
					zap.String("artist_id", artistID),
					zap.Error(err))
				albums = nil
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	catalog := append([]core.Track(nil), top...)
	seen := make(map[string]struct{}, len(top))
	for _, track := range top {
		seen[track.ID] = struct{}{}
	}

	for i, album := range albums {
		if i >= extraAlbums {
			break
		}
		tracks, err := c.AlbumTracks(ctx, album.ID, 0)
		if err != nil {
			c.logger.Warn("Skipping album",
				zap.String("artist_id", artistID),
				zap.String("album", album.Name),
				zap.Error(err))
			continue
		}
		for _, track := range tracks {
			if _, ok := seen[track.ID]; ok {
				continue
			}
			seen[track.ID] = struct{}{}
			catalog = append(catalog, track)
		}
	}

	return catalog, nil
}

// newestAlbums lists the configured album groups and orders them by release date, newest
// first. The API groups releases by type, so its own order is not chronological.
func (c *Client) newestAlbums(ctx context.Context, artistID string) ([]core.Album, error) {
	albums, err := c.ArtistAlbums(ctx, artistID, nil, 0)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(albums, func(a, b core.Album) int {
		return strings.Compare(b.ReleaseDate, a.ReleaseDate)
	})
	return albums, nil
}

// CreatePlaylist creates an empty playlist owned by userID.
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (core.Playlist, error) {
	if strings.TrimSpace(name) == "" {
		return core.Playlist{}, &core.ValidationError{Field: "playlist name", Reason: "must not be blank"}
	}

	var playlist core.Playlist
	err := c.do(ctx, "create playlist", func(ctx context.Context) error {
		created, err := c.api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
		if err != nil {
			return err
		}
		playlist = core.Playlist{
			ID:   string(created.ID),
			Name: created.Name,
			URL:  created.ExternalURLs["spotify"],
			URI:  string(created.URI),
		}
		return nil
	})
	if err != nil {
		return core.Playlist{}, err
	}

	c.logger.Info("Playlist created",
		zap.String("playlist_id", playlist.ID),
		zap.String("name", playlist.Name))
	return playlist, nil
}

// AddTracksToPlaylist submits uris in rate-limited batches.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, uris []string) (int, error) {
	return c.submitter.Submit(ctx, playlistID, uris)
}

type apiErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// AddItems issues one add-items request. The Retry-After header of a 429 is carried on
// the returned *core.RateLimitedError.
func (c *Client) AddItems(ctx context.Context, playlistID string, uris []string) error {
	return c.do(ctx, "add items", func(ctx context.Context) error {
		var apiErr apiErrorBody
		resp, err := c.rest.R().
			SetContext(ctx).
			SetPathParam("id", playlistID).
			SetBody(map[string][]string{"uris": uris}).
			SetError(&apiErr).
			Post("/playlists/{id}/tracks")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return core.StatusError("add items", resp.StatusCode(),
				parseRetryAfter(resp.Header().Get("Retry-After")), apiErr.Error.Message)
		}
		return nil
	})
}

func (c *Client) cached(id string) (core.Track, bool) {
	if c.tracks == nil {
		return core.Track{}, false
	}
	return c.tracks.Get(id)
}

func (c *Client) remember(track core.Track) {
	if c.tracks != nil && track.ID != "" {
		c.tracks.Add(track.ID, track)
	}
}

// PacerStats exposes the request pacer for monitoring.
func (c *Client) PacerStats() throttle.Stats {
	return c.pacer.Stats()
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, string, time.Duration) {}
func (nopRecorder) RecordRateLimited(string)                     {}
