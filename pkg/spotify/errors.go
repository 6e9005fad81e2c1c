package spotify

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error represents a Spotify Web API error response.
//
// The Web API reports errors as {"error": {"status": 401, "message": "..."}}
// while the accounts service uses {"error": "invalid_grant",
// "error_description": "..."}; both are normalized into this type.
type Error struct {
	Status     int           // HTTP status code
	Message    string        // Error message from Spotify
	RetryAfter time.Duration // Set for 429 responses carrying Retry-After
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("spotify: error %d: %s", e.Status, e.Message)
}

// Is reports whether target is a *Error with the same status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Status == t.Status
}

// Temporary returns true if the request should be retried.
//
// Rate limiting (429) and server side failures (5xx) are temporary.
func (e *Error) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Predefined errors for common cases.
var (
	// ErrNoToken is returned when an operation needs an access token but
	// none has been obtained yet. Run the authorization flow first.
	ErrNoToken = errors.New("spotify: no access token, authorization required")

	// ErrInvalidConfig is returned when client configuration is invalid.
	ErrInvalidConfig = errors.New("spotify: invalid configuration")

	// ErrUnauthorized matches 401 responses via errors.Is.
	ErrUnauthorized = &Error{Status: http.StatusUnauthorized}
)
