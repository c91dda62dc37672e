// Package blob stores the image files that back gallery records.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrNotFound = errors.New("blob not found")

// Storage keeps opaque objects under flat keys.
type Storage interface {
	// Put stores r under key. The object becomes visible only once
	// Put returns nil.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that could escape the storage namespace.
func ValidateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}

// Config selects a backend and carries the settings of each.
type Config struct {
	Backend    string
	Dir        string
	MinIO      MinIOConfig
	Cloudinary CloudinaryConfig
}

// Open builds the backend named by cfg.Backend. Empty means local disk.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "", "local":
		d, err := NewDisk(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "minio":
		m, err := NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "cloudinary":
		return NewCloudinary(cfg.Cloudinary), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}
