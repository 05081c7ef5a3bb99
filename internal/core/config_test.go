package core

import (
	"testing"
	"time"

	"setlist/internal/i18n"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.App.Language != i18n.DefaultLanguage {
		t.Errorf("Expected default language to be %s, got %s", i18n.DefaultLanguage, config.App.Language)
	}

	if config.Submit.BatchSize != MaxBatchSize {
		t.Errorf("Expected default batch size %d, got %d", MaxBatchSize, config.Submit.BatchSize)
	}

	if config.Submit.BatchDelay != 250*time.Millisecond {
		t.Errorf("Expected default batch delay 250ms, got %v", config.Submit.BatchDelay)
	}

	if config.Submit.MaxRetries <= 0 {
		t.Error("Rate-limit retries should be bounded by a positive maximum")
	}

	if config.Storage.Key != DefaultStorageKey {
		t.Errorf("Expected storage key %q, got %q", DefaultStorageKey, config.Storage.Key)
	}

	if config.Spotify.Market != "US" {
		t.Errorf("Expected default market US, got %s", config.Spotify.Market)
	}
}

func TestLanguageConfiguration(t *testing.T) {
	config := DefaultConfig()

	for _, lang := range i18n.GetSupportedLanguages() {
		config.App.Language = lang
		localizer := i18n.NewLocalizer(config.App.Language)
		if localizer == nil {
			t.Errorf("Failed to create localizer for language %s", lang)
		}

		if message := localizer.T("error.generic"); message == "" {
			t.Errorf("Empty message for key 'error.generic' in language %s", lang)
		}
	}
}

func TestConfigConstants(t *testing.T) {
	if MaxBatchSize != 100 {
		t.Errorf("MaxBatchSize should match the API limit of 100, got %d", MaxBatchSize)
	}

	config := DefaultConfig()
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		t.Error("Default server port should be a valid port number")
	}
}
