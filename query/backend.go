package query

import (
	"context"

	"github.com/caio-sobreiro/dicomarc/dicom"
)

// Backend hands out storage connections to query sessions.
type Backend interface {
	// Acquire returns a connection owned by the caller until it is closed.
	Acquire(ctx context.Context) (Conn, error)
}

// Conn is a storage connection owned by one query session.
type Conn interface {
	// Count returns the number of records matching plan, ignoring its
	// offset and limit.
	Count(ctx context.Context, plan *Plan) (int64, error)
	// Query opens a forward only cursor over the records matching plan.
	Query(ctx context.Context, plan *Plan) (Cursor, error)
	Close() error
}

// Cursor iterates the matches of a query, in the style of database/sql rows.
type Cursor interface {
	Next(ctx context.Context) bool
	// Record returns the current match with its ancestors' attributes and the
	// derived attributes of its level.
	Record() *dicom.Dataset
	Err() error
	Close() error
}
