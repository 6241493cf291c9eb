package mongostore

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/store"
	"github.com/caio-sobreiro/dicomarc/types"
)

// conn runs the operations of one query session in a client session
type conn struct {
	store     *Store
	sess      mongo.Session
	closeOnce sync.Once
}

func (c *conn) Count(ctx context.Context, plan *query.Plan) (int64, error) {
	f, err := filter(plan.Predicate)
	if err != nil {
		return 0, err
	}
	return c.store.collection(plan.Level).CountDocuments(mongo.NewSessionContext(ctx, c.sess), f)
}

func (c *conn) Query(ctx context.Context, plan *query.Plan) (query.Cursor, error) {
	f, err := filter(plan.Predicate)
	if err != nil {
		return nil, err
	}
	order, err := sortOrder(plan)
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(order).
		SetProjection(bson.D{{Key: "idx", Value: 0}})
	if plan.Offset > 0 {
		opts.SetSkip(int64(plan.Offset))
	}
	if plan.Limit > 0 {
		opts.SetLimit(int64(plan.Limit))
	}
	cur, err := c.store.collection(plan.Level).Find(mongo.NewSessionContext(ctx, c.sess), f, opts)
	if err != nil {
		return nil, err
	}
	return &cursor{cur: cur, sess: c.sess, level: plan.Level}, nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.sess.EndSession(context.Background())
	})
	return nil
}

type cursor struct {
	cur     *mongo.Cursor
	sess    mongo.Session
	level   types.QueryLevel
	current *dicom.Dataset
	err     error
}

func (c *cursor) Next(ctx context.Context) bool {
	c.current = nil
	if c.err != nil {
		return false
	}
	sctx := mongo.NewSessionContext(ctx, c.sess)
	if !c.cur.Next(sctx) {
		c.err = c.cur.Err()
		return false
	}
	var e entity
	if err := c.cur.Decode(&e); err != nil {
		c.err = err
		return false
	}
	c.current, c.err = e.record(c.level)
	return c.err == nil
}

func (c *cursor) Record() *dicom.Dataset {
	return c.current
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() error {
	return c.cur.Close(context.Background())
}

// entity is the stored form of one entity with its ancestors' attributes
type entity struct {
	Attrs   map[string]map[string]string `bson:"attrs"`
	Derived derivedDoc                   `bson:"derived"`
}

type derivedDoc struct {
	Studies          int64    `bson:"studies"`
	Series           int64    `bson:"series"`
	Instances        int64    `bson:"instances"`
	Modalities       []string `bson:"modalities"`
	SOPClasses       []string `bson:"sop_classes"`
	RetrieveAETitles []string `bson:"retrieve_aets"`
	Availability     *int     `bson:"availability"`
}

// record merges the attributes of every level, patient first, and adds the
// level's derived attributes.
func (e *entity) record(level types.QueryLevel) (*dicom.Dataset, error) {
	ds := dicom.NewDataset()
	for _, l := range append(level.Ancestors(), level) {
		attrs := e.Attrs[string(l)]
		if len(attrs) == 0 {
			continue
		}
		raw := make(map[string]json.RawMessage, len(attrs))
		for k, v := range attrs {
			raw[k] = json.RawMessage(v)
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		part := dicom.NewDataset()
		if err := part.UnmarshalJSON(b); err != nil {
			return nil, fmt.Errorf("decode %s attributes: %w", l, err)
		}
		ds.Merge(part)
	}
	d := store.Derived{
		Studies:          e.Derived.Studies,
		Series:           e.Derived.Series,
		Instances:        e.Derived.Instances,
		Modalities:       e.Derived.Modalities,
		SOPClasses:       e.Derived.SOPClasses,
		RetrieveAETitles: e.Derived.RetrieveAETitles,
	}
	if e.Derived.Availability != nil {
		d.Availability = store.AvailabilityOfRank(*e.Derived.Availability)
	}
	d.Apply(level, ds)
	return ds, nil
}
