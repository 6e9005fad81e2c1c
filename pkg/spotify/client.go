package spotify

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds client configuration.
type Config struct {
	ClientID     string       // Required: Spotify application client id
	ClientSecret string       // Required: Spotify application client secret
	RedirectURI  string       // Required for the authorization code flow
	TokenStore   TokenStore   // Optional: where tokens are loaded from and saved to
	HTTPClient   *http.Client // Optional: HTTP client (defaults to a client with a 15s timeout)
	BaseURL      string       // Optional: Web API base URL (used for testing)
	AccountsURL  string       // Optional: accounts service base URL (used for testing)
	RateLimit    rate.Limit   // Optional: requests per second (defaults to 5)
	RateBurst    int          // Optional: limiter burst (defaults to 10)
	RetryBackoff time.Duration
	Logger       Logger // Optional: Logger interface for debug logging
}

// Logger is an optional interface for logging.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Client is the main entry point for Spotify Web API operations.
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
	baseURL      string
	accountsURL  string
	limiter      *rate.Limiter
	backoff      time.Duration
	logger       Logger

	tokenMu sync.Mutex
	token   *Token
	store   TokenStore

	auth    *AuthService
	player  *PlayerService
	artists *ArtistsService
}

const (
	// DefaultBaseURL is the default Spotify Web API endpoint.
	DefaultBaseURL = "https://api.spotify.com/v1"

	// DefaultAccountsURL is the default Spotify accounts service endpoint.
	DefaultAccountsURL = "https://accounts.spotify.com"

	defaultRateLimit    = 5
	defaultRateBurst    = 10
	defaultRetryBackoff = 1 * time.Second
)

// NewClient creates a new Spotify API client.
//
// Returns an error if required configuration (ClientID, ClientSecret) is missing.
// A token already present in the TokenStore is loaded lazily on first use.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: ClientID is required", ErrInvalidConfig)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: ClientSecret is required", ErrInvalidConfig)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	accountsURL := cfg.AccountsURL
	if accountsURL == "" {
		accountsURL = DefaultAccountsURL
	}

	limit := cfg.RateLimit
	if limit == 0 {
		limit = defaultRateLimit
	}
	burst := cfg.RateBurst
	if burst == 0 {
		burst = defaultRateBurst
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	c := &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		httpClient:   httpClient,
		baseURL:      baseURL,
		accountsURL:  accountsURL,
		limiter:      rate.NewLimiter(limit, burst),
		backoff:      backoff,
		logger:       cfg.Logger,
		store:        cfg.TokenStore,
	}

	c.auth = &AuthService{client: c}
	c.player = &PlayerService{client: c}
	c.artists = &ArtistsService{client: c}

	return c, nil
}

// Auth returns the authorization service.
func (c *Client) Auth() *AuthService {
	return c.auth
}

// Player returns the player service.
func (c *Client) Player() *PlayerService {
	return c.player
}

// Artists returns the artists service.
func (c *Client) Artists() *ArtistsService {
	return c.artists
}

// SetToken replaces the in-memory token without persisting it.
func (c *Client) SetToken(t *Token) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.token = t
}

func (c *Client) logDebugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}
