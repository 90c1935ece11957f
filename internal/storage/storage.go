package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Package storage contains object storage abstractions for the private image bucket (S3-compatible).
// Implementations must avoid using local disk and rely on streaming I/O only.

var (
	// ErrObjectNotFound is returned when no object exists under the key.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectExists is returned by Put with NoOverwrite when the key is taken.
	ErrObjectExists = errors.New("object already exists")
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// NoOverwrite makes the write fail with ErrObjectExists instead of replacing an existing object.
type PutObjectOptions struct {
	Size         int64
	ContentType  string
	CacheControl string
	Metadata     map[string]string
	NoOverwrite  bool
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is a reusable, S3-compatible object storage client interface.
// Methods use context and streaming readers/writers; no local disk is used.
type Storage interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Stat returns object info or ErrObjectNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
