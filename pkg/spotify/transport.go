package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	maxRetries = 3
	maxBackoff = 30 * time.Second
	userAgent  = "scrobblify/1.0"
)

type apiErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

type accountsErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// get performs an authenticated GET against the Web API and decodes the
// JSON response into out. It returns (false, nil) on 204 No Content.
//
// It handles:
// - Rate limiting before every attempt
// - Access token refresh when expired, and once more on a 401
// - Retry with exponential backoff on network errors, 429 and 5xx
// - Context cancellation
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) (bool, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	refreshed := false
	var lastErr error
	backoff := c.backoff

	for i := 0; i < maxRetries; i++ {
		c.logDebugf("spotify: GET %s (attempt %d/%d)", path, i+1, maxRetries)

		token, err := c.accessToken(ctx)
		if err != nil {
			return false, err
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return false, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return false, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if shouldRetryNetworkError(err) && i < maxRetries-1 {
				c.logDebugf("spotify: network error, retrying: %v", err)
				if !sleep(ctx, backoff) {
					return false, ctx.Err()
				}
				backoff = nextBackoff(backoff)
				continue
			}
			return false, fmt.Errorf("http request failed: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return false, fmt.Errorf("failed to read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNoContent:
			return false, nil
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return false, fmt.Errorf("failed to parse response: %w", err)
			}
			return true, nil
		}

		apiErr := parseAPIError(resp, body)
		lastErr = apiErr

		if apiErr.Status == http.StatusUnauthorized && !refreshed {
			refreshed = true
			c.logDebugf("spotify: access token rejected, refreshing")
			if _, err := c.auth.Refresh(ctx); err != nil {
				return false, err
			}
			continue
		}

		if apiErr.Temporary() && i < maxRetries-1 {
			wait := backoff
			if apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			c.logDebugf("spotify: temporary error, retrying in %v: %v", wait, apiErr)
			if !sleep(ctx, wait) {
				return false, ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}

		return false, apiErr
	}

	return false, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// postForm posts a form to the accounts service using client credentials
// as basic auth and decodes the JSON response.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response, body []byte) *Error {
	e := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var apiBody apiErrorBody
	if err := json.Unmarshal(body, &apiBody); err == nil && apiBody.Error.Message != "" {
		e.Message = apiBody.Error.Message
	} else {
		var accBody accountsErrorBody
		if err := json.Unmarshal(body, &accBody); err == nil && accBody.Error != "" {
			e.Message = accBody.Error
			if accBody.ErrorDescription != "" {
				e.Message += ": " + accBody.ErrorDescription
			}
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	return e
}

// shouldRetryNetworkError checks if a network error is retryable.
func shouldRetryNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// sleep waits for the specified duration or until context is cancelled.
// Returns true if sleep completed, false if context was cancelled.
func sleep(ctx context.Context, duration time.Duration) bool {
	t := time.NewTimer(duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// nextBackoff doubles the backoff, capped at 30 seconds.
func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
