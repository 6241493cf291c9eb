package mongostore

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/store"
	"github.com/caio-sobreiro/dicomarc/types"
	"github.com/caio-sobreiro/dicomarc/wildcard"
)

// path names a document key, either in an entity's index at a level or
// relative to a sequence item
type path func(level types.QueryLevel, key string) string

func levelPath(level types.QueryLevel, key string) string {
	return "idx." + string(level) + "." + key
}

func itemPath(_ types.QueryLevel, key string) string {
	return key
}

// matchNothing is a filter no document satisfies.
var matchNothing = bson.D{{Key: "$expr", Value: false}}

// filter translates a plan predicate into a query filter.
func filter(p query.Predicate) (bson.D, error) {
	return translate(p, levelPath)
}

func translate(p query.Predicate, at path) (bson.D, error) {
	switch p := p.(type) {
	case query.And:
		return combine("$and", p, at, bson.D{})
	case query.Or:
		return combine("$or", p, at, matchNothing)
	case *query.Equal:
		vr := dicom.VROf(p.Tag)
		values := make(bson.A, 0, len(p.Values))
		for _, v := range p.Values {
			if p.Fold {
				values = append(values, primitive.Regex{Pattern: "^" + regexp.QuoteMeta(v) + "$", Options: "i"})
				continue
			}
			values = append(values, store.IndexValue(vr, v))
		}
		return bson.D{{Key: at(p.Level, store.Key(p.Tag)), Value: bson.D{{Key: "$in", Value: values}}}}, nil
	case *query.Wildcard:
		return bson.D{{Key: at(p.Level, store.Key(p.Tag)), Value: pattern(p.Pattern, p.Fold)}}, nil
	case *query.Range:
		return inRange(at(p.Level, store.Key(p.Tag)), p.Lower, p.Upper), nil
	case *query.DateTimeRange:
		return inRange(at(p.Date.Level, store.DateTimeKey(p.Date.Tag, p.Time.Tag)), p.Lower, p.Upper), nil
	case *query.Fuzzy:
		var conds bson.A
		if len(p.Keys) > 0 {
			conds = append(conds, bson.D{{Key: at(p.Level, store.FuzzyKey(p.Tag)), Value: bson.D{{Key: "$all", Value: p.Keys}}}})
		}
		for _, pt := range p.Patterns {
			conds = append(conds, bson.D{{Key: at(p.Level, store.TokensKey(p.Tag)), Value: pattern(pt, false)}})
		}
		switch len(conds) {
		case 0:
			return bson.D{}, nil
		case 1:
			return conds[0].(bson.D), nil
		}
		return bson.D{{Key: "$and", Value: conds}}, nil
	case *query.Empty:
		key := at(p.Level, store.Key(p.Tag))
		return bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: key, Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: key, Value: bson.D{{Key: "$size", Value: 0}}}},
		}}}, nil
	case *query.Item:
		sub, err := translate(p.Pred, itemPath)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: at(p.Level, store.Key(p.Tag)), Value: bson.D{{Key: "$elemMatch", Value: sub}}}}, nil
	case *query.Identity:
		ors := make(bson.A, 0, len(p.IDs))
		for _, id := range p.IDs {
			cond := bson.D{{Key: "pat_id", Value: id.ID}}
			if id.Issuer != "" {
				cond = append(cond, bson.E{Key: "pat_id_issuer", Value: bson.D{{Key: "$in", Value: bson.A{id.Issuer, ""}}}})
			}
			ors = append(ors, cond)
		}
		if len(ors) == 0 {
			return matchNothing, nil
		}
		return bson.D{{Key: "$or", Value: ors}}, nil
	case query.NotMerged:
		return bson.D{{Key: "merged", Value: bson.D{{Key: "$ne", Value: true}}}}, nil
	case *query.AccessControl:
		ids := append(bson.A{""}, toA(p.IDs)...)
		return bson.D{{Key: "access_control_id", Value: bson.D{{Key: "$in", Value: ids}}}}, nil
	}
	return nil, fmt.Errorf("unsupported predicate %T", p)
}

func combine(op string, ps []query.Predicate, at path, empty bson.D) (bson.D, error) {
	if len(ps) == 0 {
		return empty, nil
	}
	parts := make(bson.A, 0, len(ps))
	for _, p := range ps {
		d, err := translate(p, at)
		if err != nil {
			return nil, err
		}
		parts = append(parts, d)
	}
	if len(parts) == 1 {
		return parts[0].(bson.D), nil
	}
	return bson.D{{Key: op, Value: parts}}, nil
}

func pattern(p string, fold bool) primitive.Regex {
	re := primitive.Regex{Pattern: wildcard.ToRegexp(p)}
	if fold {
		re.Options = "i"
	}
	return re
}

// inRange matches when one value under key lies within both bounds.
func inRange(key, lower, upper string) bson.D {
	d := bson.D{}
	if lower != "" {
		d = append(d, bson.E{Key: "$gte", Value: lower})
	}
	if upper != "" {
		d = append(d, bson.E{Key: "$lte", Value: upper})
	}
	if len(d) == 0 {
		return bson.D{{Key: key, Value: bson.D{{Key: "$exists", Value: true}}}}
	}
	return bson.D{{Key: key, Value: bson.D{{Key: "$elemMatch", Value: d}}}}
}

// sortOrder translates the plan's ordering, ties broken by insertion order.
func sortOrder(plan *query.Plan) (bson.D, error) {
	d := make(bson.D, 0, len(plan.OrderBy)+1)
	for _, o := range plan.OrderBy {
		level, ok := query.AttributeLevel(o.Tag)
		if !ok {
			return nil, fmt.Errorf("no level stores %s", o.Tag)
		}
		dir := 1
		if o.Descending {
			dir = -1
		}
		d = append(d, bson.E{Key: levelPath(level, store.Key(o.Tag)), Value: dir})
	}
	return append(d, bson.E{Key: "_id", Value: 1}), nil
}

func toA(values []string) bson.A {
	out := make(bson.A, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
