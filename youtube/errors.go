package youtube

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"ytarchive/internal/retry"
)

// Sentinel errors for Data API and captions operations.
var (
	ErrNotFound             = errors.New("youtube: not found")
	ErrForbidden            = errors.New("youtube: forbidden")
	ErrPlaylistInaccessible = errors.New("youtube: playlist inaccessible")
	ErrQuotaExhausted       = errors.New("youtube: quota exhausted")
	ErrNoTranscript         = errors.New("youtube: no transcript available")
)

// APIError is a failed Data API call. It matches ErrNotFound, ErrForbidden
// and ErrQuotaExhausted with errors.Is according to its status code and
// reason.
type APIError struct {
	// Op is the API method, e.g. "playlistItems.list".
	Op string
	// Code is the HTTP status code, 0 for transport failures.
	Code int
	// Reason is the first error reason reported by the API.
	Reason string
	Err    error
}

func (e *APIError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("youtube: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("youtube: %s: status %d: %v", e.Op, e.Code, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	case ErrQuotaExhausted:
		return e.quota()
	}
	return false
}

func (e *APIError) quota() bool {
	return e.Code == http.StatusForbidden &&
		(e.Reason == "quotaExceeded" || e.Reason == "dailyLimitExceeded")
}

// PlaylistInaccessibleError reports that a channel's uploads playlist
// answered 403 or 404. It matches ErrPlaylistInaccessible.
type PlaylistInaccessibleError struct {
	ChannelID  string
	PlaylistID string
	Err        error
}

func (e *PlaylistInaccessibleError) Error() string {
	return fmt.Sprintf("youtube: uploads playlist %s of channel %s inaccessible: %v",
		e.PlaylistID, e.ChannelID, e.Err)
}

func (e *PlaylistInaccessibleError) Unwrap() error { return e.Err }

func (e *PlaylistInaccessibleError) Is(target error) bool {
	return target == ErrPlaylistInaccessible
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// classify turns a client library error into an *APIError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		e := &APIError{Op: op, Code: gerr.Code, Err: err}
		if len(gerr.Errors) > 0 {
			e.Reason = gerr.Errors[0].Reason
		}
		return e
	}
	return &APIError{Op: op, Err: err}
}

// isRetryableAPIError retries throttling, server errors and transport
// failures. Not-found, forbidden and exhausted quota are final.
func isRetryableAPIError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.Code == 0:
		return retry.IsRetryable(apiErr.Err)
	case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
		return true
	case apiErr.Code == http.StatusForbidden:
		return apiErr.Reason == "rateLimitExceeded" || apiErr.Reason == "userRateLimitExceeded"
	}
	return false
}
