package storage

import "fmt"

// These constants mirror domain error codes to avoid circular imports.
const (
	codeInternal = "internal"
	codeInvalid  = "invalid"
	codeNotFound = "not_found"
)

// StorageError represents a storage-specific error with a code and message.
type StorageError struct {
	Code    string
	Message string
}

func (e *StorageError) Error() string {
	return e.Message
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *StorageError) ErrorCode() string {
	return e.Code
}

// ErrorMessage returns the user-facing message.
func (e *StorageError) ErrorMessage() string {
	return e.Message
}

func newStorageError(code, message string) *StorageError {
	return &StorageError{Code: code, Message: message}
}

var (
	ErrR2AccountIDRequired   = newStorageError(codeInvalid, "R2 account ID is required")
	ErrR2CredentialsRequired = newStorageError(codeInvalid, "R2 credentials are required")
	ErrBucketRequired        = newStorageError(codeInvalid, "bucket name is required")

	// ErrInvalidRunID is returned for run IDs that cannot name a directory.
	ErrInvalidRunID = newStorageError(codeInvalid, "invalid run id")

	// ErrWorkspaceClosed is returned when saving into a removed workspace.
	ErrWorkspaceClosed = newStorageError(codeInternal, "workspace already removed")
)

// ErrFileNotFound creates an error for when a file is not found.
func ErrFileNotFound(key string) error {
	return newStorageError(codeNotFound, fmt.Sprintf("file not found: %s", key))
}

// ErrInvalidKey creates an error for keys that escape the storage root.
func ErrInvalidKey(key string) error {
	return newStorageError(codeInvalid, fmt.Sprintf("invalid storage key: %q", key))
}

// ErrUnknownProvider creates an error for unknown storage providers.
func ErrUnknownProvider(provider string) error {
	return newStorageError(codeInvalid, fmt.Sprintf("unknown storage provider: %s", provider))
}
