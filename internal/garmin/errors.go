// Package garmin is a minimal Garmin Connect client: it restores a session
// from a token directory, uploads activity files, refreshes the OAuth2
// access token and persists tokens back to disk.
package garmin

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, garmin.ErrUnauthorized) to check.
var (
	ErrBadRequest       = errors.New("garmin: bad request")
	ErrUnauthorized     = errors.New("garmin: unauthorized")
	ErrForbidden        = errors.New("garmin: forbidden")
	ErrNotFound         = errors.New("garmin: not found")
	ErrConflict         = errors.New("garmin: conflict")
	ErrUnsupportedMedia = errors.New("garmin: unsupported media type")
	ErrThrottled        = errors.New("garmin: throttled")
	ErrServerError      = errors.New("garmin: server error")
)

// Session state errors.
var (
	ErrNoTokens       = errors.New("garmin: no tokens in token directory")
	ErrNoRefreshToken = errors.New("garmin: no refresh token stored")
)

// APIError wraps a sentinel error with the HTTP status code, the request
// path and the response body for debugging.
type APIError struct {
	StatusCode int
	Path       string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("garmin: %s: HTTP %d: %s", e.Path, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes with no dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnsupportedMediaType:
		return ErrUnsupportedMedia
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
