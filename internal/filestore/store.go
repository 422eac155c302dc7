// Package filestore defines the unified interface for object storage backends.
//
// All providers (MinIO, S3, memory) implement the Store interface.
// Callers depend only on this package, never on a specific provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	page, err := store.ListPage(ctx, "media", filestore.PageRequest{Prefix: "docs/", Delimiter: "/"})
package filestore

import (
	"context"
	"io"
	"time"
)

// PageLister is the listing capability the hierarchical lister needs.
//
// ListPage returns a single page of keys under req.Prefix. With a non-empty
// Delimiter, keys sharing a prefix up to the next delimiter are grouped into
// Page.Prefixes. Page.NextMarker is empty exactly when no further pages exist.
type PageLister interface {
	ListPage(ctx context.Context, bucket string, req PageRequest) (*Page, error)
}

// Store is the single interface all object storage providers must implement.
type Store interface {
	PageLister

	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// PutObject uploads r to key. size may be -1 when unknown.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts PutOptions) error

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// CopyObject copies srcKey to dstKey within bucket.
	CopyObject(ctx context.Context, bucket, srcKey, dstKey string) error

	// RemoveObject deletes key. Removing a missing key is not an error.
	RemoveObject(ctx context.Context, bucket, key string) error

	// RemoveObjects deletes keys in as few backend calls as possible.
	RemoveObjects(ctx context.Context, bucket string, keys []string) error

	// PutObjectACL applies a canned ACL to key.
	PutObjectACL(ctx context.Context, bucket, key string, acl ACL) error

	// GetObjectACL returns the canned ACL currently applied to key.
	GetObjectACL(ctx context.Context, bucket, key string) (ACL, error)

	// PresignGetURL returns a time-limited URL that allows anyone to download
	// the object at key inside bucket without credentials.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
