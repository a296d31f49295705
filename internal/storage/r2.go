package storage

import (
	"context"
	"fmt"
)

// R2Config contains configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID   string
	AccessKeyID string
	SecretKey   string
	BucketName  string
	PublicURL   string
}

// NewR2Storage creates an S3Storage pointed at the account's R2 endpoint.
func NewR2Storage(ctx context.Context, cfg R2Config) (*S3Storage, error) {
	if cfg.AccountID == "" {
		return nil, ErrR2AccountIDRequired
	}
	if cfg.AccessKeyID == "" || cfg.SecretKey == "" {
		return nil, ErrR2CredentialsRequired
	}

	return NewS3Storage(ctx, S3Config{
		Region:      "auto",
		Endpoint:    fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID),
		AccessKeyID: cfg.AccessKeyID,
		SecretKey:   cfg.SecretKey,
		BucketName:  cfg.BucketName,
		PublicURL:   cfg.PublicURL,
		PathStyle:   true,
	})
}
