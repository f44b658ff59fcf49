// Package blob stores uploaded file bytes for resources and outcomes.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound indicates a missing blob.
var ErrNotFound = errors.New("blob not found")

// Store keeps file bytes by key. Keys use "/" separators.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendFilesystem Backend = "fs"
	BackendBolt       Backend = "bolt"
	BackendS3         Backend = "s3"
)

// Config selects and configures the blob backend.
type Config struct {
	Backend    Backend `env:"TIMELINER_BLOB_BACKEND" envDefault:"fs"`
	Dir        string  `env:"TIMELINER_BLOB_DIR" envDefault:"data/uploads"`
	BoltPath   string  `env:"TIMELINER_BLOB_BOLT_PATH" envDefault:"data/blobs.db"`
	S3Bucket   string  `env:"TIMELINER_BLOB_S3_BUCKET"`
	S3Region   string  `env:"TIMELINER_BLOB_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint string  `env:"TIMELINER_BLOB_S3_ENDPOINT"`
	S3Prefix   string  `env:"TIMELINER_BLOB_S3_PREFIX"`
}

// Open builds the configured backend. The returned close function releases
// backend resources and is never nil.
func Open(ctx context.Context, cfg Config) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case BackendFilesystem, "":
		store, err := NewFilesystem(cfg.Dir)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case BackendBolt:
		store, err := OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case BackendS3:
		store, err := NewS3FromConfig(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.Trim(key, "/") {
		return "", fmt.Errorf("blob key %q is not canonical", key)
	}
	return cleaned, nil
}
