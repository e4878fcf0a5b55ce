package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestPlaylistInaccessibleError(t *testing.T) {
	cause := &APIError{Op: "playlistItems.list", Code: http.StatusNotFound, Err: errors.New("nope")}
	err := fmt.Errorf("mirror: %w", &PlaylistInaccessibleError{ChannelID: "UC1", PlaylistID: "UU1", Err: cause})

	assert.ErrorIs(t, err, ErrPlaylistInaccessible)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.Contains(t, err.Error(), "UU1")
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", nil))

	gerr := &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}
	err := classify("videos.list", gerr)
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.Code)
	assert.True(t, isRetryableAPIError(err))

	again := classify("other", err)
	assert.Same(t, err, again)

	transport := classify("videos.list", errors.New("connection reset"))
	assert.Zero(t, StatusCode(transport))
	assert.True(t, isRetryableAPIError(transport))
	assert.False(t, isRetryableAPIError(classify("videos.list", context.Canceled)))
	assert.False(t, isRetryableAPIError(&APIError{Code: http.StatusNotFound}))
}
