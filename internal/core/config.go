package core

import (
	"time"
)

const (
	// MaxBatchSize is the per-request item limit of the playlist add-items endpoint
	MaxBatchSize = 100
	// DefaultBatchDelay is the pause between successful add-items batches
	DefaultBatchDelay = 250 * time.Millisecond
	// DefaultStorageKey is the key the persisted state document lives under
	DefaultStorageKey = "setlist-storage"
)

type Config struct {
	Spotify SpotifyConfig
	Storage StorageConfig
	Fetch   FetchConfig
	Submit  SubmitConfig
	Server  ServerConfig
	Log     LogConfig
	App     AppConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Market       string
	// BaseURL overrides the Web API root; empty means the public API.
	BaseURL string
	// RequestsPerMinute caps outgoing API calls. Zero disables pacing.
	RequestsPerMinute int
	TrackCacheSize    int
}

type StorageConfig struct {
	Path string
	Key  string
}

type FetchConfig struct {
	SearchLimit     int
	AlbumLimit      int
	AlbumTrackLimit int
	// ExtraAlbums is how many of the newest albums contribute tracks on top of top-tracks.
	ExtraAlbums   int
	IncludeGroups []string
}

type SubmitConfig struct {
	BatchSize         int
	BatchDelay        time.Duration
	MaxRetries        int
	MaxBackoff        time.Duration
	DefaultRetryAfter time.Duration
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Language       string
	PublicPlaylist bool
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL:       "http://127.0.0.1:8080/callback",
			Market:            "US",
			RequestsPerMinute: 120,
			TrackCacheSize:    2048,
		},
		Storage: StorageConfig{
			Path: "./setlist.db",
			Key:  DefaultStorageKey,
		},
		Fetch: FetchConfig{
			SearchLimit:     10,
			AlbumLimit:      20,
			AlbumTrackLimit: 50,
			ExtraAlbums:     1,
			IncludeGroups:   []string{"album", "single"},
		},
		Submit: SubmitConfig{
			BatchSize:         MaxBatchSize,
			BatchDelay:        DefaultBatchDelay,
			MaxRetries:        5,
			MaxBackoff:        2 * time.Minute,
			DefaultRetryAfter: time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Language:       "en",
			PublicPlaylist: true,
		},
	}
}
