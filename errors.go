package coursesync

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the coursesync package.
var (
	// ErrStoreCorruption is returned when persisted state cannot be decoded.
	ErrStoreCorruption = errors.New("persisted state corruption detected")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("change store is closed")

	// ErrUploadFailed is returned when the caller-supplied upload function fails.
	ErrUploadFailed = errors.New("change upload failed")

	// ErrEncryptionKey is returned for missing or malformed encryption keys.
	ErrEncryptionKey = errors.New("invalid encryption key")
)

// StoreErrorType categorizes change-store errors.
type StoreErrorType int

const (
	// StoreErrorTypeUnknown is an unclassified store error.
	StoreErrorTypeUnknown StoreErrorType = iota
	// StoreErrorTypeRead indicates a read failure.
	StoreErrorTypeRead
	// StoreErrorTypeWrite indicates a write failure.
	StoreErrorTypeWrite
	// StoreErrorTypeCorruption indicates the stored blob could not be decoded.
	StoreErrorTypeCorruption
)

// StoreError provides detailed information about change-store failures.
type StoreError struct {
	Type    StoreErrorType
	Message string
	Key     string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s [%s]: %v", e.Message, e.Key, e.Cause)
		}
		return fmt.Sprintf("%s [%s]", e.Message, e.Key)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for StoreError.
func (e *StoreError) Is(target error) bool {
	if e.Type == StoreErrorTypeCorruption {
		return target == ErrStoreCorruption
	}
	return false
}

// newStoreError creates a new StoreError.
func newStoreError(errType StoreErrorType, message, key string, cause error) *StoreError {
	return &StoreError{
		Type:    errType,
		Message: message,
		Key:     key,
		Cause:   cause,
	}
}

// SyncError wraps failures that occur while a sync is in flight.
type SyncError struct {
	Message string
	Cause   error
}

func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for SyncError.
func (e *SyncError) Is(target error) bool {
	return target == ErrUploadFailed
}

// newSyncError creates a new SyncError.
func newSyncError(message string, cause error) *SyncError {
	return &SyncError{Message: message, Cause: cause}
}
