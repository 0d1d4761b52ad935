// Package core defines the object store abstraction used to archive ledger
// snapshots, shared by the archive backends.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete archive backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Object describes a stored archive object.
type Object struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a create-only object store. Archived snapshots are never
// overwritten, so Put fails with ErrExists when the key is taken.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Object, error)
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (Object, io.ReadCloser, error)
	// List returns objects under prefix ordered by key ascending.
	List(ctx context.Context, prefix string) ([]Object, error)
	Driver() Driver
}

var (
	// ErrExists is returned by Put when the key is already stored.
	ErrExists = errors.New("archive: object already exists")
	// ErrNotFound is returned by Get for missing keys.
	ErrNotFound = errors.New("archive: object not found")
	// ErrInvalidKey is returned for empty or escaping keys.
	ErrInvalidKey = errors.New("archive: invalid key")
)

// CloneMetadata copies user metadata so callers cannot alias stored maps.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
