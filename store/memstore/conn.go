package memstore

import (
	"context"
	"sync"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/query"
)

type conn struct {
	store     *Store
	closeOnce sync.Once
	closed    bool
}

func (c *conn) Count(ctx context.Context, plan *query.Plan) (int64, error) {
	if c.closed {
		return 0, errors.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return query.CountMatches(plan, c.store.records(plan.Level)), nil
}

func (c *conn) Query(ctx context.Context, plan *query.Plan) (query.Cursor, error) {
	if c.closed {
		return nil, errors.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &cursor{matches: query.Evaluate(plan, c.store.records(plan.Level))}, nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed = true
		c.store.open.Add(-1)
	})
	return nil
}

// cursor walks a materialized match list
type cursor struct {
	matches []*dicom.Dataset
	current *dicom.Dataset
	err     error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || len(c.matches) == 0 {
		c.current = nil
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		c.current = nil
		return false
	}
	c.current, c.matches = c.matches[0], c.matches[1:]
	return true
}

func (c *cursor) Record() *dicom.Dataset {
	return c.current
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() error {
	c.matches, c.current = nil, nil
	return nil
}
