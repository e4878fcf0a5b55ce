package ytarchive

import (
	"ytarchive/internal/filestore"
	"ytarchive/internal/retry"
	"ytarchive/storage"
	"ytarchive/youtube"
)

// Error handling types exported for library users.
//
// Sentinels are matched with errors.Is:
//
//	if errors.Is(err, ytarchive.ErrPlaylistInaccessible) {
//		log.Printf("uploads hidden: %v", err)
//	}
//
// Wrapped errors are inspected with errors.As:
//
//	var apiErr *ytarchive.APIError
//	if errors.As(err, &apiErr) {
//		fmt.Printf("%s failed with %d %s\n", apiErr.Op, apiErr.Code, apiErr.Reason)
//	}

// Type aliases for convenient error handling.
type (
	// APIError is a failed Data API call.
	APIError = youtube.APIError
	// PlaylistInaccessibleError reports an uploads playlist that cannot be
	// listed while its channel still exists.
	PlaylistInaccessibleError = youtube.PlaylistInaccessibleError
	// ExhaustedError wraps the last error after retries ran out.
	ExhaustedError = retry.ExhaustedError
	// StorageError wraps errors during storage operations.
	StorageError = storage.StorageError
	// MissingFieldsError lists the required fields absent from a record.
	MissingFieldsError = storage.MissingFieldsError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrNotFound indicates an entity was not found in storage.
	ErrNotFound = storage.ErrNotFound
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = storage.ErrInvalidInput
	// ErrStorageCorrupt indicates a stored file could not be decoded.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrIncompleteRecord indicates a record lacks required fields.
	ErrIncompleteRecord = storage.ErrIncompleteRecord
	// ErrUnknownSchemaVersion indicates a record newer than this build.
	ErrUnknownSchemaVersion = storage.ErrUnknownSchemaVersion
	// ErrLockTimeout indicates another process holds the data root.
	ErrLockTimeout = filestore.ErrLockTimeout

	// YouTube errors
	ErrVideoNotFound        = youtube.ErrNotFound
	ErrForbidden            = youtube.ErrForbidden
	ErrPlaylistInaccessible = youtube.ErrPlaylistInaccessible
	ErrQuotaExhausted       = youtube.ErrQuotaExhausted
	ErrNoTranscript         = youtube.ErrNoTranscript
	ErrNoToken              = youtube.ErrNoToken
)

// IsRetryable determines if an error should be retried.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
