package storage

import (
	"fmt"
	"strings"
)

// Config selects and configures an object storage backend.
type Config struct {
	Type      StorageType
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
	PublicURL string // Public URL prefix for R2.dev or custom CDN
	Prefix    string // Key prefix for export objects
}

// NewStorage creates an ObjectStorage for the configured backend.
func NewStorage(cfg *Config) (ObjectStorage, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}
	// Auto-detect storage type if not specified
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}

	if cfg.Type == StorageTypeMinIO {
		return NewMinIOStorage(cfg)
	}
	return NewS3Storage(cfg)
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
