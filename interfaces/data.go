package interfaces

import (
	"context"
	"io"

	"github.com/caio-sobreiro/dicomarc/types"
)

// StoredObject is an open handle on the bytes of a stored object.
type StoredObject interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// StorageReader opens stored objects by location. A missing object yields an
// error wrapping errors.ErrObjectNotFound.
type StorageReader interface {
	Open(ctx context.Context, location string) (StoredObject, error)
}

// InstanceLocator resolves instance identifiers to a stored object reference.
type InstanceLocator interface {
	Locate(ctx context.Context, studyUID, seriesUID, sopInstanceUID string) (*types.InstanceRef, error)
}
