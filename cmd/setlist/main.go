// Package main provides the setlist CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"setlist/internal/core"
	"setlist/internal/i18n"
)

const (
	defaultServerHost = "0.0.0.0"
	envPrefix         = "SETLIST"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "setlist",
	Short: "setlist - festival lineups to Spotify playlists",
	Long: `setlist turns a festival lineup into a Spotify playlist. Artists are resolved against
Spotify, their top tracks and newest releases are merged into one de-duplicated,
reorderable playlist per project, and the result is published in rate-limited batches.`,
	SilenceUsage: true,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, console)")
	flags.String("spotify-client-id", "", "Spotify client ID")
	flags.String("spotify-client-secret", "", "Spotify client secret (optional with PKCE)")
	flags.String("spotify-redirect-url", "", "OAuth redirect URL registered for the app")
	flags.String("spotify-market", defaults.Spotify.Market, "Market used for top tracks")
	flags.String("spotify-base-url", "", "Override the Spotify Web API root")
	flags.Int("spotify-requests-per-minute", defaults.Spotify.RequestsPerMinute, "Maximum Spotify API calls per minute (0 disables pacing)")
	flags.Int("spotify-track-cache-size", defaults.Spotify.TrackCacheSize, "Number of full tracks kept in memory")
	flags.String("storage-path", defaults.Storage.Path, "SQLite file holding the saved session")
	flags.String("storage-key", defaults.Storage.Key, "Key the session document is stored under")
	flags.Int("fetch-search-limit", defaults.Fetch.SearchLimit, "Artist search results considered")
	flags.Int("fetch-extra-albums", defaults.Fetch.ExtraAlbums, "Newest releases whose tracks are added on top of top tracks")
	flags.StringSlice("fetch-include-groups", defaults.Fetch.IncludeGroups, "Album groups considered for newest releases")
	flags.Int("submit-batch-size", defaults.Submit.BatchSize, "Tracks per add-items request (1-100)")
	flags.Duration("submit-batch-delay", defaults.Submit.BatchDelay, "Pause between add-items requests")
	flags.Int("submit-max-retries", defaults.Submit.MaxRetries, "Retries of one rate-limited batch")
	flags.Duration("submit-max-backoff", defaults.Submit.MaxBackoff, "Total time spent waiting out rate limits per publish")
	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Notification language (%s)", supportedLangs))
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if viper.GetBool("generate-env-example") {
			if err := generateEnvExample(cmd.Root()); err != nil {
				return err
			}
			os.Exit(0)
		}
		return nil
	}

	rootCmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newProjectCmd(),
		newArtistCmd(),
		newTracksCmd(),
		newPublishCmd(),
		newServeCmd(),
		newResetCmd(),
	)
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureServer(cfg)
	configureSpotify(cfg)
	configureStorage(cfg)
	configureFetch(cfg)
	configureSubmit(cfg)
	configureApp(cfg)

	return cfg
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")
}

func configureSpotify(cfg *core.Config) {
	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	cfg.Spotify.Market = viper.GetString("spotify-market")
	cfg.Spotify.BaseURL = viper.GetString("spotify-base-url")
	cfg.Spotify.RequestsPerMinute = viper.GetInt("spotify-requests-per-minute")
	cfg.Spotify.TrackCacheSize = viper.GetInt("spotify-track-cache-size")

	cfg.Spotify.RedirectURL = viper.GetString("spotify-redirect-url")
	if cfg.Spotify.RedirectURL == "" {
		serverHost := cfg.Server.Host
		if serverHost == defaultServerHost {
			serverHost = "127.0.0.1"
		}
		cfg.Spotify.RedirectURL = fmt.Sprintf("http://%s:%d/callback", serverHost, cfg.Server.Port)
	}
}

func configureStorage(cfg *core.Config) {
	cfg.Storage.Path = viper.GetString("storage-path")
	cfg.Storage.Key = viper.GetString("storage-key")
	if cfg.Storage.Key == "" {
		cfg.Storage.Key = core.DefaultStorageKey
	}
}

func configureFetch(cfg *core.Config) {
	cfg.Fetch.SearchLimit = viper.GetInt("fetch-search-limit")
	cfg.Fetch.ExtraAlbums = viper.GetInt("fetch-extra-albums")
	if groups := viper.GetStringSlice("fetch-include-groups"); len(groups) > 0 {
		cfg.Fetch.IncludeGroups = groups
	}
}

func configureSubmit(cfg *core.Config) {
	cfg.Submit.BatchSize = viper.GetInt("submit-batch-size")
	if cfg.Submit.BatchSize <= 0 || cfg.Submit.BatchSize > core.MaxBatchSize {
		fmt.Fprintf(os.Stderr, "Warning: Invalid batch size (%d), using %d\n", cfg.Submit.BatchSize, core.MaxBatchSize)
		cfg.Submit.BatchSize = core.MaxBatchSize
	}
	cfg.Submit.BatchDelay = viper.GetDuration("submit-batch-delay")
	cfg.Submit.MaxRetries = viper.GetInt("submit-max-retries")
	cfg.Submit.MaxBackoff = viper.GetDuration("submit-max-backoff")
}

func configureApp(cfg *core.Config) {
	cfg.App.Language = viper.GetString("language")
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}

	if !i18n.IsSupported(cfg.App.Language) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(i18n.GetSupportedLanguages(), ", "))
		cfg.App.Language = i18n.DefaultLanguage
	}
}

func validateConfig() error {
	if config.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if config.Submit.MaxRetries < 0 {
		return fmt.Errorf("submit max retries must not be negative")
	}
	return nil
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	// stdout carries notifications for the user.
	cfg.OutputPaths = []string{"stderr"}

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func generateEnvExample(cmd *cobra.Command) error {
	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("Generated .env.example")
	return nil
}

// envSections groups flags by prefix; flags without a listed prefix land in the last section.
var envSections = []struct {
	title  string
	prefix string
}{
	{title: "Spotify", prefix: "spotify-"},
	{title: "Storage", prefix: "storage-"},
	{title: "Catalogue fetching", prefix: "fetch-"},
	{title: "Publishing", prefix: "submit-"},
	{title: "HTTP server", prefix: "server-"},
	{title: "Logging", prefix: "log-"},
	{title: "General", prefix: ""},
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# setlist configuration\n")
	content.WriteString("# Copy this file to .env and update with your values.\n")
	fmt.Fprintf(&content, "# Format: %s_<FLAG>=value, CLI equivalent: --<flag>\n", envPrefix)

	written := map[string]bool{"config": true, "generate-env-example": true}
	for _, section := range envSections {
		var lines []string
		cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
			if written[f.Name] || !strings.HasPrefix(f.Name, section.prefix) {
				return
			}
			written[f.Name] = true
			lines = append(lines, fmt.Sprintf("%s=%s  # %s", flagToEnvVar(f.Name), f.DefValue, f.Usage))
		})
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&content, "\n# %s\n", section.title)
		content.WriteString(strings.Join(lines, "\n"))
		content.WriteString("\n")
	}

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
