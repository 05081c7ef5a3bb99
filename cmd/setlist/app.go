package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"setlist/internal/core"
	"setlist/internal/curator"
	httpserver "setlist/internal/http"
	"setlist/internal/i18n"
	"setlist/internal/spotify"
	"setlist/internal/storage"
	"setlist/internal/store"
)

// app holds the wired services for one command invocation.
type app struct {
	db        *storage.DB
	store     *store.Store
	auth      *spotify.Authenticator
	spotify   *spotify.Client
	curator   *curator.Curator
	metrics   *httpserver.Metrics
	registry  *prometheus.Registry
	localizer *i18n.Localizer
}

// tokenSink receives the credential pair whenever the stored one changes.
type tokenSink interface {
	SetTokens(access, refresh string)
	ClearTokens()
}

// openStorage opens the session database without decoding the saved state.
func openStorage() (*storage.DB, *storage.SnapshotStore, error) {
	if err := validateConfig(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	db, err := storage.Open(config.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, storage.NewSnapshotStore(db, config.Storage.Key), nil
}

func newApp() (*app, error) {
	db, snapshot, err := openStorage()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := httpserver.NewMetrics(registry)

	st := store.New(snapshot, logger,
		store.WithPersistFailures(metrics.PersistFailures))
	if err := st.Load(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load saved session: %w", err)
	}

	auth := spotify.NewAuthenticator(&config.Spotify, logger)
	client := spotify.NewClient(&config.Spotify, logger,
		spotify.WithRefresher(auth),
		spotify.WithRecorder(metrics),
		spotify.WithSubmitConfig(&config.Submit),
		spotify.WithFetchConfig(&config.Fetch),
		spotify.WithTokenListener(st.SetAuthTokens))
	client.SetTokens(st.Tokens())
	st.Subscribe(mirrorTokens(client))

	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "setlist_spotify_requests_in_window",
			Help: "Spotify API calls made in the current pacing window",
		},
		func() float64 { return float64(client.PacerStats().InWindow) },
	))
	st.Subscribe(func(state core.State) {
		if i := state.CurrentProjectIndex; i >= 0 && i < len(state.Projects) {
			metrics.SetPlaylistSize(len(state.Projects[i].OrderedTracks))
		}
	})

	a := &app{
		db:        db,
		store:     st,
		auth:      auth,
		spotify:   client,
		metrics:   metrics,
		registry:  registry,
		localizer: i18n.NewLocalizer(config.App.Language),
	}
	a.curator = curator.New(st, client, client, config, logger,
		curator.WithNotifier(a.print),
		curator.WithRecorder(metrics))

	logger.Debug("Services initialized",
		zap.String("storage", config.Storage.Path),
		zap.Int("projects", len(st.Projects())),
		zap.Int("requests_per_minute", config.Spotify.RequestsPerMinute))

	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		logger.Debug("Failed to close storage", zap.Error(err))
	}
	_ = logger.Sync()
}

func (a *app) print(message string) {
	fmt.Fprintln(os.Stdout, message)
}

func (a *app) notify(key string, args ...interface{}) {
	a.print(a.localizer.T(key, args...))
}

// report prints err the way the curator would and returns it for the exit status.
func (a *app) report(err error) error {
	if err != nil {
		a.print(a.curator.Describe(err))
	}
	return err
}

// withApp wires the services around fn.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a, args)
	}
}

// withStorage hands fn the snapshot store only, for commands that must work on a session
// that no longer decodes.
func withStorage(fn func(ctx context.Context, snapshot *storage.SnapshotStore, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, snapshot, err := openStorage()
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Debug("Failed to close storage", zap.Error(err))
			}
		}()
		return fn(cmd.Context(), snapshot, args)
	}
}

// mirrorTokens keeps sink in step with the credentials held by the store.
func mirrorTokens(sink tokenSink) func(core.State) {
	return func(state core.State) {
		if state.AccessToken == nil && state.RefreshToken == nil {
			sink.ClearTokens()
			return
		}
		var access, refresh string
		if state.AccessToken != nil {
			access = *state.AccessToken
		}
		if state.RefreshToken != nil {
			refresh = *state.RefreshToken
		}
		sink.SetTokens(access, refresh)
	}
}

// ready backs /readyz.
func (a *app) ready(ctx context.Context) error {
	if err := a.db.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

func currentTitle(st *store.Store) string {
	project, err := st.CurrentProject()
	if err != nil {
		return ""
	}
	return project.Title
}
