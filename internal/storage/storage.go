// Package storage keeps files outside the request: per-run upload workspaces
// on local disk and archived run logs on local disk or S3-compatible object storage.
package storage

import (
	"context"
	"io"

	"github.com/dukerupert/courier/internal"
)

// Storage is a flat key/value file store.
type Storage interface {
	// Put stores content under key and returns its URL or path.
	Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error)

	// Get retrieves a file by its key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a file. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns where a stored key can be fetched from.
	URL(key string) string

	// Exists checks if a file exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)
}

// NewArchive creates the run-log archive selected by cfg.Provider.
// It returns a nil Storage when archiving is disabled.
func NewArchive(ctx context.Context, cfg internal.ArchiveConfig) (Storage, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "local":
		return NewLocalStorage(cfg.LocalPath)
	case "r2":
		return NewR2Storage(ctx, R2Config{
			AccountID:   cfg.R2AccountID,
			AccessKeyID: cfg.R2AccessKeyID,
			SecretKey:   cfg.R2SecretKey,
			BucketName:  cfg.R2BucketName,
			PublicURL:   cfg.R2PublicURL,
		})
	default:
		return nil, ErrUnknownProvider(cfg.Provider)
	}
}
