package pgstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/store"
	"github.com/caio-sobreiro/dicomarc/types"
)

// fetchSize is the number of rows read from a cursor per round trip.
const fetchSize = 100

// conn is one pooled connection holding a read only transaction
type conn struct {
	pooled    *pgxpool.Conn
	tx        pgx.Tx
	logger    *slog.Logger
	cursors   int
	closeOnce sync.Once
}

func (c *conn) Count(ctx context.Context, plan *query.Plan) (int64, error) {
	stmt, err := countStatement(plan)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := c.tx.QueryRow(ctx, stmt.sql, stmt.args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *conn) Query(ctx context.Context, plan *query.Plan) (query.Cursor, error) {
	stmt, err := selectStatement(plan)
	if err != nil {
		return nil, err
	}
	c.cursors++
	name := fmt.Sprintf("match_cursor_%d", c.cursors)
	if _, err := c.tx.Exec(ctx, "DECLARE "+name+" NO SCROLL CURSOR FOR "+stmt.sql, stmt.args...); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Declared match cursor",
		"cursor", name,
		"level", plan.Level)
	return &cursor{tx: c.tx, name: name, level: plan.Level}, nil
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = c.tx.Rollback(ctx)
		c.pooled.Release()
	})
	return err
}

// cursor reads a declared cursor in batches of fetchSize rows
type cursor struct {
	tx    pgx.Tx
	name  string
	level types.QueryLevel

	batch   []*dicom.Dataset
	current *dicom.Dataset
	done    bool
	closed  bool
	err     error
}

func (c *cursor) Next(ctx context.Context) bool {
	c.current = nil
	if c.err != nil || c.closed {
		return false
	}
	if len(c.batch) == 0 && !c.done {
		c.fetch(ctx)
	}
	if len(c.batch) == 0 {
		return false
	}
	c.current, c.batch = c.batch[0], c.batch[1:]
	return true
}

func (c *cursor) fetch(ctx context.Context) {
	rows, err := c.tx.Query(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", fetchSize, c.name))
	if err != nil {
		c.err = err
		return
	}
	c.batch, c.err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*dicom.Dataset, error) {
		return scanRecord(row, c.level)
	})
	if len(c.batch) < fetchSize {
		c.done = true
	}
}

func (c *cursor) Record() *dicom.Dataset {
	return c.current
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.batch, c.current = nil, nil
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.tx.Exec(ctx, "CLOSE "+c.name)
	return err
}

// scanRecord merges the attributes of every level of one row, patient first,
// and adds the level's derived attributes.
func scanRecord(row pgx.Row, level types.QueryLevel) (*dicom.Dataset, error) {
	chain := levelChain(level)
	attrs := make([][]byte, len(chain))
	var (
		d            store.Derived
		availability int32
	)
	dest := make([]any, 0, len(chain)+7)
	for i := range attrs {
		dest = append(dest, &attrs[i])
	}
	dest = append(dest, &d.Studies, &d.Series, &d.Instances,
		&d.Modalities, &d.SOPClasses, &d.RetrieveAETitles, &availability)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	ds := dicom.NewDataset()
	for i, raw := range attrs {
		part := dicom.NewDataset()
		if err := part.UnmarshalJSON(raw); err != nil {
			return nil, fmt.Errorf("decode %s attributes: %w", chain[i], err)
		}
		ds.Merge(part)
	}
	if availability >= 0 {
		d.Availability = store.AvailabilityOfRank(int(availability))
	}
	d.Apply(level, ds)
	return ds, nil
}
