package pgstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/store"
	"github.com/caio-sobreiro/dicomarc/types"
	"github.com/caio-sobreiro/dicomarc/wildcard"
)

// table and alias of each level
var levelTables = map[types.QueryLevel]struct{ table, alias string }{
	types.QueryLevelPatient:  {"patient", "p"},
	types.QueryLevelStudy:    {"study", "st"},
	types.QueryLevelSeries:   {"series", "se"},
	types.QueryLevelInstance: {"instance", "i"},
}

// joins of each level to its parent
var levelJoins = map[types.QueryLevel]string{
	types.QueryLevelStudy:    "JOIN study st ON st.patient_fk = p.pk",
	types.QueryLevelSeries:   "JOIN series se ON se.study_fk = st.pk",
	types.QueryLevelInstance: "JOIN instance i ON i.series_fk = se.pk",
}

// derived attribute columns of each level: studies, series and instances
// counts, modalities, SOP classes, retrieve AE titles and availability rank
var derivedColumns = map[types.QueryLevel][]string{
	types.QueryLevelPatient: {
		"(SELECT count(*) FROM study x WHERE x.patient_fk = p.pk)",
		"(SELECT count(*) FROM series x JOIN study y ON x.study_fk = y.pk WHERE y.patient_fk = p.pk)",
		"(SELECT count(*) FROM instance x JOIN series y ON x.series_fk = y.pk JOIN study z ON y.study_fk = z.pk WHERE z.patient_fk = p.pk)",
		"NULL::text[]",
		"NULL::text[]",
		"NULL::text[]",
		"-1",
	},
	types.QueryLevelStudy: {
		"0::int8",
		"(SELECT count(*) FROM series x WHERE x.study_fk = st.pk)",
		"(SELECT count(*) FROM instance x JOIN series y ON x.series_fk = y.pk WHERE y.study_fk = st.pk)",
		"(SELECT array_agg(DISTINCT x.modality) FROM series x WHERE x.study_fk = st.pk AND x.modality <> '')",
		"(SELECT array_agg(DISTINCT x.sop_cuid) FROM instance x JOIN series y ON x.series_fk = y.pk WHERE y.study_fk = st.pk AND x.sop_cuid <> '')",
		"(SELECT array_agg(DISTINCT x.retrieve_aet) FROM instance x JOIN series y ON x.series_fk = y.pk WHERE y.study_fk = st.pk AND x.retrieve_aet <> '')",
		"(SELECT COALESCE(max(x.availability), -1)::int4 FROM instance x JOIN series y ON x.series_fk = y.pk WHERE y.study_fk = st.pk)",
	},
	types.QueryLevelSeries: {
		"0::int8",
		"0::int8",
		"(SELECT count(*) FROM instance x WHERE x.series_fk = se.pk)",
		"NULL::text[]",
		"NULL::text[]",
		"(SELECT array_agg(DISTINCT x.retrieve_aet) FROM instance x WHERE x.series_fk = se.pk AND x.retrieve_aet <> '')",
		"(SELECT COALESCE(max(x.availability), -1)::int4 FROM instance x WHERE x.series_fk = se.pk)",
	},
	types.QueryLevelInstance: {
		"0::int8",
		"0::int8",
		"1::int8",
		"NULL::text[]",
		"NULL::text[]",
		"CASE WHEN i.retrieve_aet = '' THEN NULL ELSE ARRAY[i.retrieve_aet] END",
		"i.availability::int4",
	},
}

// statement is a SQL text with its positional arguments
type statement struct {
	sql  string
	args []any
}

// levelChain returns the levels from patient down to level.
func levelChain(level types.QueryLevel) []types.QueryLevel {
	return append(level.Ancestors(), level)
}

func fromClause(level types.QueryLevel) string {
	var b strings.Builder
	b.WriteString("FROM patient p")
	for _, l := range levelChain(level)[1:] {
		b.WriteByte(' ')
		b.WriteString(levelJoins[l])
	}
	return b.String()
}

// countStatement counts the records matching plan.
func countStatement(plan *query.Plan) (statement, error) {
	b := &sqlBuilder{}
	where, err := b.predicate(plan.Predicate, levelDoc)
	if err != nil {
		return statement{}, err
	}
	return statement{
		sql:  "SELECT count(*) " + fromClause(plan.Level) + " WHERE " + where,
		args: b.args,
	}, nil
}

// selectStatement selects the records matching plan in order, within the
// plan's window. Columns are the attrs of each level from patient down, then
// the level's derived columns.
func selectStatement(plan *query.Plan) (statement, error) {
	b := &sqlBuilder{}
	where, err := b.predicate(plan.Predicate, levelDoc)
	if err != nil {
		return statement{}, err
	}

	var cols []string
	for _, l := range levelChain(plan.Level) {
		cols = append(cols, levelTables[l].alias+".attrs")
	}
	cols = append(cols, derivedColumns[plan.Level]...)

	var order []string
	for _, o := range plan.OrderBy {
		lvl, ok := query.AttributeLevel(o.Tag)
		if !ok {
			return statement{}, fmt.Errorf("no level stores %s", o.Tag)
		}
		dir := "ASC NULLS FIRST"
		if o.Descending {
			dir = "DESC NULLS LAST"
		}
		order = append(order, fmt.Sprintf("%s->'%s'->0 %s", levelDoc(lvl), store.Key(o.Tag), dir))
	}
	order = append(order, levelTables[plan.Level].alias+".pk")

	var sql strings.Builder
	fmt.Fprintf(&sql, "SELECT %s %s WHERE %s ORDER BY %s",
		strings.Join(cols, ", "), fromClause(plan.Level), where, strings.Join(order, ", "))
	if plan.Offset > 0 {
		fmt.Fprintf(&sql, " OFFSET %s", b.arg(plan.Offset))
	}
	if plan.Limit > 0 {
		fmt.Fprintf(&sql, " LIMIT %s", b.arg(plan.Limit))
	}
	return statement{sql: sql.String(), args: b.args}, nil
}

func levelDoc(level types.QueryLevel) string {
	return levelTables[level].alias + ".idx"
}

// sqlBuilder translates predicates into SQL conditions over index documents
type sqlBuilder struct {
	args  []any
	items int
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// values ranges over the values a document holds under key.
func values(doc, key, cond string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(%s->'%s', '[]'::jsonb)) AS v(s) WHERE %s)",
		doc, key, cond)
}

func (b *sqlBuilder) predicate(p query.Predicate, doc func(types.QueryLevel) string) (string, error) {
	switch p := p.(type) {
	case query.And:
		return b.join(p, " AND ", "TRUE", doc)
	case query.Or:
		return b.join(p, " OR ", "FALSE", doc)
	case *query.Equal:
		want := p.Values
		col := "v.s"
		if p.Fold {
			want = upper(want)
			col = "upper(v.s)"
		}
		return values(doc(p.Level), store.Key(p.Tag), col+" = ANY("+b.arg(want)+")"), nil
	case *query.Wildcard:
		pattern := wildcard.ToLike(p.Pattern)
		col := "v.s"
		if p.Fold {
			pattern = strings.ToUpper(pattern)
			col = "upper(v.s)"
		}
		return values(doc(p.Level), store.Key(p.Tag), col+" LIKE "+b.arg(pattern)), nil
	case *query.Range:
		return values(doc(p.Level), store.Key(p.Tag), b.bounds(p.Lower, p.Upper)), nil
	case *query.DateTimeRange:
		return values(doc(p.Date.Level), store.DateTimeKey(p.Date.Tag, p.Time.Tag), b.bounds(p.Lower, p.Upper)), nil
	case *query.Fuzzy:
		d := doc(p.Level)
		conds := []string{}
		if len(p.Keys) > 0 {
			conds = append(conds, fmt.Sprintf("COALESCE(%s->'%s', '[]'::jsonb) ?& %s::text[]",
				d, store.FuzzyKey(p.Tag), b.arg(p.Keys)))
		}
		for _, pattern := range p.Patterns {
			conds = append(conds, values(d, store.TokensKey(p.Tag), "v.s LIKE "+b.arg(wildcard.ToLike(pattern))))
		}
		if len(conds) == 0 {
			return "TRUE", nil
		}
		return "(" + strings.Join(conds, " AND ") + ")", nil
	case *query.Empty:
		return fmt.Sprintf("COALESCE(jsonb_array_length(%s->'%s'), 0) = 0", doc(p.Level), store.Key(p.Tag)), nil
	case *query.Item:
		b.items++
		alias := "item" + strconv.Itoa(b.items)
		sub, err := b.predicate(p.Pred, func(types.QueryLevel) string { return alias + ".doc" })
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements(COALESCE(%s->'%s', '[]'::jsonb)) AS %s(doc) WHERE %s)",
			doc(p.Level), store.Key(p.Tag), alias, sub), nil
	case *query.Identity:
		var ors []string
		for _, id := range p.IDs {
			cond := "p.pat_id = " + b.arg(id.ID)
			if id.Issuer != "" {
				cond += " AND p.pat_id_issuer IN (" + b.arg(id.Issuer) + ", '')"
			}
			ors = append(ors, "("+cond+")")
		}
		if len(ors) == 0 {
			return "FALSE", nil
		}
		return "(" + strings.Join(ors, " OR ") + ")", nil
	case query.NotMerged:
		return "NOT p.merged", nil
	case *query.AccessControl:
		return "(st.access_control_id = '' OR st.access_control_id = ANY(" + b.arg(p.IDs) + "))", nil
	}
	return "", fmt.Errorf("unsupported predicate %T", p)
}

func (b *sqlBuilder) join(ps []query.Predicate, sep, empty string, doc func(types.QueryLevel) string) (string, error) {
	if len(ps) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		s, err := b.predicate(p, doc)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (b *sqlBuilder) bounds(lower, upper string) string {
	var conds []string
	if lower != "" {
		conds = append(conds, "v.s >= "+b.arg(lower))
	}
	if upper != "" {
		conds = append(conds, "v.s <= "+b.arg(upper))
	}
	if len(conds) == 0 {
		return "TRUE"
	}
	return strings.Join(conds, " AND ")
}

func upper(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToUpper(v)
	}
	return out
}
