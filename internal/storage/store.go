// Package storage keeps generated scene images in object storage.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by Read for missing keys.
var ErrObjectNotFound = errors.New("storage: object not found")

// BlobStore is the object storage contract. Upload overwrites existing keys
// and Delete treats a missing key as already removed.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, mimeType string) error
	Delete(ctx context.Context, key string) error
	Read(ctx context.Context, key string) ([]byte, string, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
