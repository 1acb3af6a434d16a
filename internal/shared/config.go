package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Logging     LoggingConfig     `toml:"logging"`
	Matcher     MatcherConfig     `toml:"matcher"`
	Downloads   DownloadsConfig   `toml:"downloads"`
	Storage     StorageConfig     `toml:"storage"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API client credentials used for playlist extraction.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LoggingConfig controls log level and optional rotating file output.
type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// MatcherConfig tunes track matching and the persistent match cache.
type MatcherConfig struct {
	Version           string        `toml:"version"`            // cache generation; bump when scoring changes
	SearchLimit       int           `toml:"search_limit"`       // candidates requested per search
	CacheThreshold    float64       `toml:"cache_threshold"`    // minimum confidence written to the match cache
	TrustThreshold    float64       `toml:"trust_threshold"`    // minimum confidence treated as MATCHED
	ManualReview      bool          `toml:"manual_review"`      // route low-confidence matches to the user
	RateLimit         float64       `toml:"rate_limit"`         // searches per second
	Workers           int           `toml:"workers"`            // concurrent match workers
	CacheTimeout      time.Duration `toml:"cache_timeout"`      // bound on a single cache lookup
	NegativeRetention time.Duration `toml:"negative_retention"` // age after which NO_MATCH entries are purged
	PurgeInterval     time.Duration `toml:"purge_interval"`
}

// DownloadsConfig tunes the download lane and the stream URL cache.
type DownloadsConfig struct {
	Workers      int           `toml:"workers"`
	MaxRetries   int           `toml:"max_retries"`
	Backoff      time.Duration `toml:"backoff"`
	PollInterval time.Duration `toml:"poll_interval"`
	StreamTTL    time.Duration `toml:"stream_ttl"`
	PrefetchWait time.Duration `toml:"prefetch_wait"`
	Format       string        `toml:"format"` // yt-dlp format selector used for stream resolution
	LockFile     string        `toml:"lock_file"`
}

// StorageConfig selects where finished downloads are written.
type StorageConfig struct {
	Backend string      `toml:"backend"` // "local" or "minio"
	Dir     string      `toml:"dir"`
	Minio   MinioConfig `toml:"minio"`
}

// MinioConfig contains S3-compatible object storage settings.
type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file fall back to the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate reports configuration values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Matcher.Version == "":
		return fmt.Errorf("%w: matcher.version must not be empty", ErrInvalidConfig)
	case c.Matcher.CacheThreshold < 0 || c.Matcher.CacheThreshold > 1:
		return fmt.Errorf("%w: matcher.cache_threshold must be within [0,1]", ErrInvalidConfig)
	case c.Matcher.TrustThreshold < 0 || c.Matcher.TrustThreshold > 1:
		return fmt.Errorf("%w: matcher.trust_threshold must be within [0,1]", ErrInvalidConfig)
	case c.Downloads.MaxRetries < 0:
		return fmt.Errorf("%w: downloads.max_retries must not be negative", ErrInvalidConfig)
	}

	switch c.Storage.Backend {
	case "", "local":
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("%w: storage.minio requires endpoint and bucket", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
