// Package filestore keeps the original bytes of uploaded documents. Backends
// register themselves by name; the local directory backend is the default and
// an S3-compatible bucket backend is available for shared deployments.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
)

// ErrNotFound is returned by Open when no object is stored under the key.
var ErrNotFound = errors.New("file not found")

// Store saves, opens and deletes uploaded files by key. Keys are slash
// separated relative paths such as "room_3/1a2b3c4d_report.pdf".
type Store interface {
	// Save writes size bytes read from r under key, replacing any existing object.
	Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error

	// Open returns random access to the object stored under key.
	Open(ctx context.Context, key string) (File, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// File is an opened stored object.
type File interface {
	io.ReaderAt
	io.Closer
	// Size is the object length in bytes.
	Size() int64
}

// Config selects and configures a backend.
type Config struct {
	// Backend is the registered backend name: local or s3.
	Backend string
	// Dir is the root directory of the local backend.
	Dir string
	// Bucket is the S3 bucket name.
	Bucket string
	// Region is the S3 region (default: us-east-1).
	Region string
	// Endpoint overrides the S3 endpoint for S3-compatible services.
	Endpoint string
	// AccessKey and SecretKey are static S3 credentials. When empty the
	// default AWS credential chain is used.
	AccessKey string
	SecretKey string
	// Prefix is prepended to every S3 object key.
	Prefix string
	// UsePathStyle addresses the bucket in the URL path instead of the host.
	UsePathStyle bool
	// MaxObjectSize bounds how much of an S3 object Open buffers in memory.
	MaxObjectSize int64
}

// Factory builds a Store from cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available to New under name.
func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

// New builds the Store selected by cfg.Backend. An empty backend means local.
func New(ctx context.Context, cfg Config) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if key == "" {
		key = "local"
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("filestore: unsupported backend %q", cfg.Backend)
	}
	return factory(ctx, cfg)
}

// cleanKey validates key as a relative slash path without parent references.
func cleanKey(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("filestore: invalid key %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("filestore: invalid key %q", key)
	}
	return cleaned, nil
}
