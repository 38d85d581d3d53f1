// Package storage publishes export files to S3-compatible object storage.
package storage

import (
	"context"
	"io"
)

// ObjectStorage is the subset of object storage operations the exporter needs.
type ObjectStorage interface {
	// Upload writes an object, replacing any previous version under the same key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object.
	GetURL(key string) string

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}
