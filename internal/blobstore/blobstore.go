// Package blobstore owns the bytes behind a room's files. Callers hold only
// the opaque ref a Save returned and pass it back for reads and deletion.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a ref no longer resolves to stored bytes.
var ErrNotFound = errors.New("blob not found")

// Store is the byte-storage contract the room core consumes.
type Store interface {
	Save(ctx context.Context, r io.Reader, suggestedName string) (ref string, size int64, err error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	SizeOf(ctx context.Context, ref string) (int64, error)
	Delete(ctx context.Context, ref string) error
}
