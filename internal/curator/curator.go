// Package curator drives the user-facing workflows: resolving lineup names to artists,
// fetching their catalogue into the current project and publishing the result.
package curator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"setlist/internal/core"
	"setlist/internal/i18n"
	"setlist/internal/playlist"
	"setlist/internal/spotify"
	"setlist/internal/store"
	"setlist/pkg/fuzzy"
	"setlist/pkg/lineup"
)

// Catalog is the read side of the gateway.
type Catalog interface {
	SearchArtists(ctx context.Context, query string, limit int) ([]core.ArtistProfile, error)
	ArtistCatalog(ctx context.Context, artistID, market string, extraAlbums int) ([]core.Track, error)
}

// Publisher is the write side of the gateway.
type Publisher interface {
	CurrentUser(ctx context.Context) (core.User, error)
	CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (core.Playlist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, uris []string) (int, error)
}

// Recorder receives workflow telemetry. internal/http.Metrics implements it.
type Recorder interface {
	RecordTracksAdded(added, duplicates int)
	RecordPublish(outcome string)
	SetPlaylistSize(size int)
}

// AddReport summarises one catalogue fetch.
type AddReport struct {
	Artist     string
	Added      int
	Duplicates int
}

// Resolution is the outcome of ResolveArtist. Candidates is set when the caller must pick.
type Resolution struct {
	Name       string
	Confirmed  *core.ArtistProfile
	Report     AddReport
	Candidates []core.ArtistProfile
}

// ImportReport lists the lineup names added and the ones already present.
type ImportReport struct {
	Added   []string
	Skipped []string
}

// PublishReport is the created playlist and how many tracks reached it.
type PublishReport struct {
	Playlist  core.Playlist
	Submitted int
}

// Option configures a Curator.
type Option func(*Curator)

// WithNotifier receives every rendered notification.
func WithNotifier(fn func(message string)) Option {
	return func(c *Curator) {
		c.notify = fn
	}
}

// WithRecorder receives track and publish telemetry.
func WithRecorder(r Recorder) Option {
	return func(c *Curator) {
		c.recorder = r
	}
}

// Curator runs the user-facing workflows on top of the store and the Spotify gateway.
type Curator struct {
	store      *store.Store
	catalog    Catalog
	publisher  Publisher
	config     *core.Config
	localizer  *i18n.Localizer
	logger     *zap.Logger
	normalizer *fuzzy.Normalizer
	parser     *lineup.Parser
	notify     func(message string)
	recorder   Recorder
}

// New builds a Curator. Notifications are logged until WithNotifier replaces the sink.
func New(st *store.Store, catalog Catalog, publisher Publisher, config *core.Config, logger *zap.Logger, opts ...Option) *Curator {
	c := &Curator{
		store:      st,
		catalog:    catalog,
		publisher:  publisher,
		config:     config,
		localizer:  i18n.NewLocalizer(config.App.Language),
		logger:     logger.Named("curator"),
		normalizer: fuzzy.NewNormalizer(),
		parser:     lineup.NewParser(),
		recorder:   nopRecorder{},
	}
	c.notify = func(message string) {
		c.logger.Info("Notification", zap.String("message", message))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveArtist searches for name. A single match is confirmed and fetched right away;
// several matches are returned ranked by how closely they match name.
func (c *Curator) ResolveArtist(ctx context.Context, name string) (Resolution, error) {
	name = strings.TrimSpace(name)
	resolution := Resolution{Name: name}

	project, err := c.store.CurrentProject()
	if err != nil {
		c.fail(err, "")
		return resolution, err
	}

	// Resolving a name that isn't in the lineup yet adds it first.
	if err := c.store.AddArtistTo(project.ID, name); err != nil && !alreadyListed(err, name) {
		c.fail(err, "")
		return resolution, err
	}

	profiles, err := remote(c, func() ([]core.ArtistProfile, error) {
		return c.catalog.SearchArtists(ctx, name, c.config.Fetch.SearchLimit)
	})
	if err != nil {
		c.fail(err, "error.search_failed", name)
		return resolution, fmt.Errorf("search for %s: %w", name, err)
	}

	switch len(profiles) {
	case 0:
		c.notify(c.localizer.T("error.no_artist_match", name))
		return resolution, &core.NotFoundError{Kind: "artist match", Key: name}
	case 1:
		report, err := c.confirmAndFetch(ctx, project.ID, name, profiles[0])
		resolution.Confirmed = &profiles[0]
		resolution.Report = report
		return resolution, err
	}

	resolution.Candidates = c.rank(name, profiles)
	lines := []string{c.localizer.T("prompt.choose_artist", name)}
	for _, p := range resolution.Candidates {
		lines = append(lines, c.localizer.T("format.artist_choice", p.ID, p.Name, p.Followers))
	}
	c.notify(strings.Join(lines, "\n"))
	return resolution, nil
}

// rank orders candidates by name similarity, then by followers.
func (c *Curator) rank(name string, profiles []core.ArtistProfile) []core.ArtistProfile {
	type scored struct {
		profile core.ArtistProfile
		score   float64
	}

	ranked := make([]scored, len(profiles))
	for i, p := range profiles {
		ranked[i] = scored{profile: p, score: c.normalizer.ArtistSimilarity(name, p.Name)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].profile.Followers > ranked[j].profile.Followers
	})

	out := make([]core.ArtistProfile, len(ranked))
	for i, r := range ranked {
		out[i] = r.profile
	}
	return out
}

// ConfirmAndFetch binds name to profile and loads the artist's catalogue into the project
// that was current when the call started, even if the user switches meanwhile.
func (c *Curator) ConfirmAndFetch(ctx context.Context, name string, profile core.ArtistProfile) (AddReport, error) {
	project, err := c.store.CurrentProject()
	if err != nil {
		c.fail(err, "")
		return AddReport{Artist: name}, err
	}
	return c.confirmAndFetch(ctx, project.ID, name, profile)
}

func (c *Curator) confirmAndFetch(ctx context.Context, projectID, name string, profile core.ArtistProfile) (AddReport, error) {
	report := AddReport{Artist: name}

	if err := c.store.ConfirmArtistIn(projectID, name, profile); err != nil {
		c.fail(err, "")
		return report, err
	}
	c.notify(c.localizer.T("success.artist_confirmed", name))

	tracks, err := remote(c, func() ([]core.Track, error) {
		return c.catalog.ArtistCatalog(ctx, profile.ID, c.config.Spotify.Market, c.config.Fetch.ExtraAlbums)
	})
	if err != nil {
		c.fail(err, "error.fetch_failed", name)
		return report, fmt.Errorf("fetch tracks for %s: %w", name, err)
	}

	processed, err := c.store.AddArtistTracksTo(projectID, name, tracks)
	if err != nil {
		if core.IsNotFound(err) {
			c.logger.Info("Dropping fetched tracks, project or artist is gone",
				zap.String("project_id", projectID),
				zap.String("artist", name))
		}
		c.fail(err, "")
		return report, err
	}

	for _, track := range processed {
		if track.Duplicate {
			report.Duplicates++
		} else {
			report.Added++
		}
	}

	c.recorder.RecordTracksAdded(report.Added, report.Duplicates)
	if updated, err := c.store.Project(projectID); err == nil {
		c.recorder.SetPlaylistSize(len(updated.OrderedTracks))
	}

	c.logger.Info("Artist catalogue added",
		zap.String("project_id", projectID),
		zap.String("artist", name),
		zap.Int("added", report.Added),
		zap.Int("duplicates", report.Duplicates))
	c.notify(c.localizer.T("success.tracks_added", report.Added, name, report.Duplicates))
	return report, nil
}

// ImportLineup adds every artist named in text. Names already in the lineup are skipped.
func (c *Curator) ImportLineup(text string) (ImportReport, error) {
	var report ImportReport

	for _, name := range c.parser.Parse(text) {
		err := c.store.AddArtist(name)
		switch {
		case err == nil:
			report.Added = append(report.Added, name)
		case core.IsValidation(err):
			report.Skipped = append(report.Skipped, name)
		default:
			c.fail(err, "")
			return report, err
		}
	}

	c.notify(c.localizer.T("success.lineup_imported", len(report.Added), len(report.Skipped)))
	return report, nil
}

// Publish creates a playlist from the current project and uploads its ordered tracks.
// The playlist is recorded on the project before the upload, so a failed upload still
// leaves it reachable.
func (c *Curator) Publish(ctx context.Context, public bool) (PublishReport, error) {
	var report PublishReport

	project, err := c.store.CurrentProject()
	if err != nil {
		c.fail(err, "")
		return report, err
	}

	uris := playlist.URIs(playlist.OrderedTracks(&project))
	if len(uris) == 0 {
		err := &core.ValidationError{Field: "project", Reason: "no tracks to publish"}
		c.notify(c.localizer.T("error.nothing_to_publish"))
		return report, err
	}

	c.store.SetLoading(true)
	defer c.store.SetLoading(false)

	user, err := c.publisher.CurrentUser(ctx)
	if err != nil {
		c.recorder.RecordPublish("failed")
		c.fail(err, "")
		return report, fmt.Errorf("current user: %w", err)
	}

	created, err := c.publisher.CreatePlaylist(ctx, user.ID, project.Title, project.Description, public)
	if err != nil {
		c.recorder.RecordPublish("failed")
		c.fail(err, "error.publish_create", project.Title)
		return report, fmt.Errorf("create playlist %s: %w", project.Title, err)
	}
	report.Playlist = created

	if err := c.store.SetPublishedPlaylist(project.ID, created.ID, created.URL); err != nil {
		c.logger.Warn("Failed to record published playlist",
			zap.String("project_id", project.ID),
			zap.Error(err))
	}

	report.Submitted, err = c.publisher.AddTracksToPlaylist(ctx, created.ID, uris)
	if err != nil {
		c.recorder.RecordPublish("partial")
		var batchErr *spotify.BatchError
		if errors.As(err, &batchErr) {
			c.store.SetError(err.Error())
			c.notify(c.localizer.T("error.publish_batch", batchErr.Batch, batchErr.Submitted, created.URL))
		} else {
			c.fail(err, "")
		}
		return report, fmt.Errorf("add tracks to %s: %w", created.ID, err)
	}

	c.recorder.RecordPublish("ok")
	c.logger.Info("Playlist published",
		zap.String("project_id", project.ID),
		zap.String("playlist_id", created.ID),
		zap.Int("tracks", report.Submitted))
	c.notify(c.localizer.T("success.published", report.Submitted, created.URL))
	return report, nil
}

// remote wraps a gateway call with the store's loading and error flags.
func remote[T any](c *Curator, fn func() (T, error)) (T, error) {
	c.store.SetLoading(true)
	defer c.store.SetLoading(false)

	result, err := fn()
	if err != nil {
		c.store.SetError(err.Error())
		return result, err
	}
	c.store.SetError("")
	return result, nil
}

// fail notifies about err. When key is set the contextual message is used unless the
// error has a more specific rendering of its own (auth, rate limit).
func (c *Curator) fail(err error, key string, args ...interface{}) {
	c.store.SetError(err.Error())

	message := c.Describe(err)
	if key != "" && !isSpecific(err) {
		message = c.localizer.T(key, args...)
	}
	c.notify(message)
}

func isSpecific(err error) bool {
	var (
		expired *core.AuthExpiredError
		limited *core.RateLimitedError
	)
	return errors.Is(err, core.ErrNotAuthenticated) || errors.As(err, &expired) || errors.As(err, &limited)
}

func alreadyListed(err error, name string) bool {
	var validation *core.ValidationError
	return name != "" && errors.As(err, &validation) && validation.Field == "artist"
}

// Describe renders err as a localized notification.
func (c *Curator) Describe(err error) string {
	var (
		validation *core.ValidationError
		notFound   *core.NotFoundError
		index      *core.IndexError
		expired    *core.AuthExpiredError
		limited    *core.RateLimitedError
		external   *core.ExternalServiceError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrNotAuthenticated), errors.Is(err, core.ErrNoRefreshToken):
		return c.localizer.T("error.not_authenticated")
	case errors.Is(err, core.ErrNoProject):
		return c.localizer.T("error.no_project")
	case errors.As(err, &validation):
		return c.localizer.T("error.invalid", validation.Field, validation.Reason)
	case errors.As(err, &notFound):
		return c.localizer.T("error.not_found", notFound.Kind, notFound.Key)
	case errors.As(err, &index):
		return c.localizer.T("error.index", index.Kind, index.Index)
	case errors.As(err, &expired):
		return c.localizer.T("error.auth_expired")
	case errors.As(err, &limited):
		return c.localizer.T("error.rate_limited", limited.RetryAfter)
	case errors.As(err, &external):
		return c.localizer.T("error.spotify", external.Op, external.Status)
	default:
		return c.localizer.T("error.generic")
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordTracksAdded(int, int) {}
func (nopRecorder) RecordPublish(string)       {}
func (nopRecorder) SetPlaylistSize(int)        {}
