// Package storage defines the error taxonomy and record types shared by the
// ytarchive file store and the entity catalog built on top of it.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrIncompleteRecord indicates a record parsed but lacks required fields,
	// or carries fields its type does not know about.
	ErrIncompleteRecord = errors.New("storage: incomplete record")
	// ErrUnknownSchemaVersion indicates no migration is registered for a
	// record's schema version.
	ErrUnknownSchemaVersion = errors.New("storage: unknown schema version")
	// ErrMissingIdentity indicates a record lacks its identity key.
	ErrMissingIdentity = errors.New("storage: missing identity key")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("read", "write", "migrate", "archive").
	Op string
	// Entity is the entity type ("channel", "video", "playlist", etc.).
	Entity string
	// ID is the entity ID if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// MissingFieldsError reports which required fields a record lacks.
// It matches ErrIncompleteRecord with errors.Is.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%v: missing %s", ErrIncompleteRecord, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Is(target error) bool { return target == ErrIncompleteRecord }
