package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Failure policies accepted by ingest_failure_policy.
var failurePolicies = []string{"drop", "retry", "queue"}

// Config holds application configuration
type Config struct {
	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Title}}"
	OutputFormat string

	// Maximum display width of the now output (0 = unlimited)
	OutputWidth int

	// Poll interval for the daemon (in seconds)
	PollInterval int

	// Timeout for one currently-playing request (in seconds)
	FetchTimeout int

	// Backfill from listening history after every live scrobble
	BackfillOnScrobble bool

	// What to do with a scrobble that could not be stored: drop, retry or queue
	IngestFailurePolicy string

	// SQLite database location
	DatabasePath string

	// Ops HTTP server address (empty disables it)
	HTTPAddr string

	// Spotify API credentials
	Spotify SpotifyConfig
}

// SpotifyConfig holds Spotify specific configuration
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenFile    string
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	return load(getConfigDir())
}

func load(configDir string) (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	dataDir := GetDataDir()

	// Set defaults
	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("poll_interval", 60)
	v.SetDefault("fetch_timeout", 10)
	v.SetDefault("backfill_on_scrobble", false)
	v.SetDefault("ingest_failure_policy", "drop")
	v.SetDefault("database_path", filepath.Join(dataDir, "scrobblify.db"))
	v.SetDefault("http_addr", "")
	v.SetDefault("spotify.client_id", "")
	v.SetDefault("spotify.client_secret", "")
	v.SetDefault("spotify.redirect_uri", "http://127.0.0.1:8888/callback")
	v.SetDefault("spotify.token_file", filepath.Join(configDir, "spotify_token.json"))

	// Read config file (optional - don't fail if missing)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Read from environment variables (SCROBBLIFY_SPOTIFY_CLIENT_ID etc.)
	v.SetEnvPrefix("SCROBBLIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map config to struct
	cfg := &Config{
		OutputFormat:        v.GetString("output_format"),
		OutputWidth:         v.GetInt("output_width"),
		PollInterval:        v.GetInt("poll_interval"),
		FetchTimeout:        v.GetInt("fetch_timeout"),
		BackfillOnScrobble:  v.GetBool("backfill_on_scrobble"),
		IngestFailurePolicy: v.GetString("ingest_failure_policy"),
		DatabasePath:        v.GetString("database_path"),
		HTTPAddr:            v.GetString("http_addr"),
		Spotify: SpotifyConfig{
			ClientID:     v.GetString("spotify.client_id"),
			ClientSecret: v.GetString("spotify.client_secret"),
			RedirectURI:  v.GetString("spotify.redirect_uri"),
			TokenFile:    v.GetString("spotify.token_file"),
		},
	}

	return cfg, nil
}

// Validate checks values the daemon cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %d", c.PollInterval))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch_timeout must be positive, got %d", c.FetchTimeout))
	}
	if !contains(failurePolicies, c.IngestFailurePolicy) {
		errs = append(errs, fmt.Errorf("ingest_failure_policy must be one of %s, got %q",
			strings.Join(failurePolicies, ", "), c.IngestFailurePolicy))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path must be set"))
	}
	if c.OutputWidth < 0 {
		errs = append(errs, fmt.Errorf("output_width must not be negative, got %d", c.OutputWidth))
	}

	return errors.Join(errs...)
}

// ValidateSpotify checks the Spotify application credentials are present.
func (c *Config) ValidateSpotify() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return errors.New("Spotify credentials not configured: set spotify.client_id and spotify.client_secret")
	}
	if c.Spotify.RedirectURI == "" {
		return errors.New("spotify.redirect_uri must be set")
	}
	return nil
}

// PollIntervalDuration returns the poll interval as a duration.
func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// FetchTimeoutDuration returns the fetch timeout as a duration.
func (c *Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "scrobblify")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// GetDataDir returns the directory for the database and status file.
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share", "scrobblify")
}

// StatusFilePath returns where the daemon publishes its status.
func StatusFilePath() string {
	return filepath.Join(GetDataDir(), "status.json")
}

// Save writes configuration to file
func (c *Config) Save() error {
	return c.saveTo(getConfigDir())
}

func (c *Config) saveTo(configDir string) error {
	v := viper.New()

	// Set config file path
	configFile := filepath.Join(configDir, "config.yaml")

	// Set values in viper
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("poll_interval", c.PollInterval)
	v.Set("fetch_timeout", c.FetchTimeout)
	v.Set("backfill_on_scrobble", c.BackfillOnScrobble)
	v.Set("ingest_failure_policy", c.IngestFailurePolicy)
	v.Set("database_path", c.DatabasePath)
	v.Set("http_addr", c.HTTPAddr)
	v.Set("spotify.client_id", c.Spotify.ClientID)
	v.Set("spotify.client_secret", c.Spotify.ClientSecret)
	v.Set("spotify.redirect_uri", c.Spotify.RedirectURI)
	v.Set("spotify.token_file", c.Spotify.TokenFile)

	// Write to file
	return v.WriteConfigAs(configFile)
}
