// Package blob stores the raw file bytes addressed by a record's virtual
// path under a per-user prefix. Two backends exist: local disk and an
// S3-compatible object store.
package blob

import (
	"context"
	"io"
)

// Store persists and streams file bytes. The mapping between records and
// bytes is purely the naming convention <user>/<catalog>/<name>; the blob
// has no identity of its own.
type Store interface {
	// Write persists the bytes read from src at the location derived from
	// (user, catalog, name). With overwrite set the previous bytes are
	// replaced; without it the write is a first creation.
	Write(ctx context.Context, user, catalog, name string, src io.Reader, overwrite bool) error

	// Open returns a sequential reader over the bytes stored for the
	// virtual path. The reader is finite and not restartable; the caller
	// closes it.
	Open(ctx context.Context, user, path string) (io.ReadCloser, error)
}
