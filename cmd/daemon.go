package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jfmyers9/scrobblify/internal/config"
	"github.com/jfmyers9/scrobblify/internal/daemon"
	"github.com/jfmyers9/scrobblify/internal/music"
	"github.com/jfmyers9/scrobblify/internal/scrobbler"
	"github.com/jfmyers9/scrobblify/internal/store"
	"github.com/jfmyers9/scrobblify/pkg/spotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	daemonLogFile  string
	daemonLogLevel string
	daemonHTTPAddr string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scrobbling daemon",
	Long: `Run the scrobbling daemon that polls Spotify and records scrobbles.

The daemon will:
- Poll Spotify's currently playing endpoint every poll_interval seconds
- Scrobble a track once half of it (or 3 minutes) has been played
- Recover missed plays from Spotify's recently played list at startup
  and after gaps in polling
- Handle failed writes according to ingest_failure_policy (drop, retry, queue)
- Handle graceful shutdown on SIGINT/SIGTERM

The daemon runs in the foreground and logs to stderr by default.
Use the --log-file flag to log to a file (useful for launchd or systemd).`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	// Command-line flags
	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "Log file path (default: stderr)")
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	daemonCmd.Flags().StringVar(&daemonHTTPAddr, "http-addr", "", "Ops server address for /metrics, /healthz and /status (overrides http_addr)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if daemonHTTPAddr != "" {
		cfg.HTTPAddr = daemonHTTPAddr
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateSpotify(); err != nil {
		return fmt.Errorf("%w. Run 'scrobblify auth' first", err)
	}

	policy, err := daemon.ParseFailurePolicy(cfg.IngestFailurePolicy)
	if err != nil {
		return err
	}

	// Set up logging
	logger := setupLogger(daemonLogFile, daemonLogLevel)

	logger.Info().
		Str("version", version).
		Msg("Starting scrobblify daemon")

	client, err := newSpotifyClient(cfg, logger)
	if err != nil {
		return err
	}
	if !client.Auth().HasValidAuth() {
		return fmt.Errorf("no Spotify token found at %s. Run 'scrobblify auth' first", cfg.Spotify.TokenFile)
	}

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info().Str("database", cfg.DatabasePath).Msg("Using database")

	statusFile, err := daemon.NewStatusFile(config.StatusFilePath())
	if err != nil {
		return err
	}

	source := music.NewSpotifySource(client, music.DefaultBreakerConfig(), logger)
	ingester := scrobbler.NewIngester(db, source, logger)

	sched, err := daemon.NewScheduler(daemon.SchedulerConfig{
		Interval:           cfg.PollIntervalDuration(),
		FetchTimeout:       cfg.FetchTimeoutDuration(),
		BackfillOnScrobble: cfg.BackfillOnScrobble,
		FailurePolicy:      policy,
	}, source, ingester, db, db, statusFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	d := daemon.New(daemon.Config{HTTPAddr: cfg.HTTPAddr}, sched, db, logger)

	// Run daemon (blocks until shutdown signal)
	if err := d.Run(); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	return nil
}

// newSpotifyClient builds an API client that persists its token next to the
// configuration.
func newSpotifyClient(cfg *config.Config, logger zerolog.Logger) (*spotify.Client, error) {
	client, err := spotify.NewClient(spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURI:  cfg.Spotify.RedirectURI,
		TokenStore:   spotify.FileTokenStore{Path: cfg.Spotify.TokenFile},
		Logger:       spotifyLogger{logger.With().Str("component", "spotify").Logger()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify client: %w", err)
	}
	return client, nil
}

// spotifyLogger routes client debug output through zerolog.
type spotifyLogger struct {
	logger zerolog.Logger
}

func (l spotifyLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile, logLevel string) zerolog.Logger {
	// Parse log level
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}

	// Set up output
	var output *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			output = os.Stderr
		} else {
			output = f
		}
	} else {
		output = os.Stderr
	}

	// Create logger
	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}
