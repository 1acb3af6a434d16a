package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./beatq.db" {
			t.Errorf("expected database path ./beatq.db, got %s", config.Database.Path)
		}
		if config.Matcher.Version != "v1" {
			t.Errorf("expected matcher version v1, got %s", config.Matcher.Version)
		}
		if config.Matcher.SearchLimit != 10 {
			t.Errorf("expected search limit 10, got %d", config.Matcher.SearchLimit)
		}
		if config.Matcher.CacheThreshold != 0.75 {
			t.Errorf("expected cache threshold 0.75, got %v", config.Matcher.CacheThreshold)
		}
		if config.Matcher.TrustThreshold != 0.6 {
			t.Errorf("expected trust threshold 0.6, got %v", config.Matcher.TrustThreshold)
		}
		if !config.Matcher.ManualReview {
			t.Error("expected manual review enabled by default")
		}
		if config.Matcher.CacheTimeout != 3*time.Second {
			t.Errorf("expected cache timeout 3s, got %v", config.Matcher.CacheTimeout)
		}
		if config.Downloads.StreamTTL != time.Hour {
			t.Errorf("expected stream ttl 1h, got %v", config.Downloads.StreamTTL)
		}
		if config.Downloads.PrefetchWait != 30*time.Second {
			t.Errorf("expected prefetch wait 30s, got %v", config.Downloads.PrefetchWait)
		}
		if config.Storage.Backend != "local" {
			t.Errorf("expected local storage backend, got %s", config.Storage.Backend)
		}
		if config.Credentials.Spotify.ClientID != "your_spotify_client_id" {
			t.Errorf("expected spotify client_id your_spotify_client_id, got %s", config.Credentials.Spotify.ClientID)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[matcher]
trust_threshold = 0.8
manual_review = false
cache_timeout = "500ms"

[downloads]
workers = 6
backoff = "250ms"

[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}
		if config.Matcher.TrustThreshold != 0.8 {
			t.Errorf("expected trust threshold 0.8, got %v", config.Matcher.TrustThreshold)
		}
		if config.Matcher.ManualReview {
			t.Error("expected manual review disabled")
		}
		if config.Matcher.CacheTimeout != 500*time.Millisecond {
			t.Errorf("expected cache timeout 500ms, got %v", config.Matcher.CacheTimeout)
		}
		if config.Downloads.Workers != 6 {
			t.Errorf("expected 6 download workers, got %d", config.Downloads.Workers)
		}
		if config.Downloads.Backoff != 250*time.Millisecond {
			t.Errorf("expected backoff 250ms, got %v", config.Downloads.Backoff)
		}
		if config.Matcher.CacheThreshold != 0.75 {
			t.Errorf("omitted values should keep defaults, got cache threshold %v", config.Matcher.CacheThreshold)
		}
		if config.Credentials.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected spotify client_id test_client_id, got %s", config.Credentials.Spotify.ClientID)
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("LoadConfig Invalid TOML", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[database\npath = "), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error for invalid toml")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	tc := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "empty version", mutate: func(c *Config) { c.Matcher.Version = "" }, wantErr: true},
		{name: "cache threshold above one", mutate: func(c *Config) { c.Matcher.CacheThreshold = 1.5 }, wantErr: true},
		{name: "negative trust threshold", mutate: func(c *Config) { c.Matcher.TrustThreshold = -0.1 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Downloads.MaxRetries = -1 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, wantErr: true},
		{name: "minio without endpoint", mutate: func(c *Config) { c.Storage.Backend = "minio" }, wantErr: true},
		{
			name: "minio configured",
			mutate: func(c *Config) {
				c.Storage.Backend = "minio"
				c.Storage.Minio.Endpoint = "localhost:9000"
			},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
