// Package storage defines the opaque byte stores a hoard document is
// persisted to, locally and in the cloud.
package storage

import (
	"context"
	"time"
)

// Object describes one stored blob.
type Object struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for named blob operations. Reading or deleting
// a missing object returns an error wrapping apperr.ErrNotFound.
type Provider interface {
	// Read returns the bytes stored under name.
	Read(ctx context.Context, name string) ([]byte, error)
	// Write replaces the bytes stored under name.
	Write(ctx context.Context, name string, data []byte) error
	// Delete removes name.
	Delete(ctx context.Context, name string) error
	// List describes every stored object.
	List(ctx context.Context) ([]Object, error)
}

// Conditional is implemented by stores that can reject a write when the
// object changed since it was read. An empty checksum means the object
// must not exist yet. A stale checksum yields apperr.ErrConflict.
type Conditional interface {
	Provider
	WriteIf(ctx context.Context, name string, data []byte, checksum string) error
}
