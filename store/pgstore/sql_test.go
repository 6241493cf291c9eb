package pgstore

import (
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/types"
)

func field(level types.QueryLevel, tag dicom.Tag) query.Field {
	return query.Field{Level: level, Tag: tag}
}

func TestPredicate(t *testing.T) {
	tests := []struct {
		name     string
		pred     query.Predicate
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "equal",
			pred:     &query.Equal{Field: field(types.QueryLevelSeries, dicom.Modality), Values: []string{"CT", "MR"}},
			wantSQL:  "EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(se.idx->'00080060', '[]'::jsonb)) AS v(s) WHERE v.s = ANY($1))",
			wantArgs: []any{[]string{"CT", "MR"}},
		},
		{
			name:     "equal ignoring case",
			pred:     &query.Equal{Field: field(types.QueryLevelPatient, dicom.PatientName), Values: []string{"Doe^John"}, Fold: true},
			wantSQL:  "EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(p.idx->'00100010', '[]'::jsonb)) AS v(s) WHERE upper(v.s) = ANY($1))",
			wantArgs: []any{[]string{"DOE^JOHN"}},
		},
		{
			name:     "wildcard",
			pred:     &query.Wildcard{Field: field(types.QueryLevelStudy, dicom.AccessionNumber), Pattern: "A_1*"},
			wantSQL:  "EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(st.idx->'00080050', '[]'::jsonb)) AS v(s) WHERE v.s LIKE $1)",
			wantArgs: []any{`A\_1%`},
		},
		{
			name:     "open range",
			pred:     &query.Range{Field: field(types.QueryLevelStudy, dicom.StudyDate), VR: dicom.VR_DA, Lower: "20240101"},
			wantSQL:  "EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(st.idx->'00080020', '[]'::jsonb)) AS v(s) WHERE v.s >= $1)",
			wantArgs: []any{"20240101"},
		},
		{
			name: "combined date time",
			pred: &query.DateTimeRange{
				Date:  field(types.QueryLevelStudy, dicom.StudyDate),
				Time:  field(types.QueryLevelStudy, dicom.StudyTime),
				Lower: "20240101000000.000000",
				Upper: "20240101235959.999999",
			},
			wantSQL:  "EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(st.idx->'00080020_00080030', '[]'::jsonb)) AS v(s) WHERE v.s >= $1 AND v.s <= $2)",
			wantArgs: []any{"20240101000000.000000", "20240101235959.999999"},
		},
		{
			name:     "fuzzy",
			pred:     &query.Fuzzy{Field: field(types.QueryLevelPatient, dicom.PatientName), Keys: []string{"S530"}, Patterns: []string{"JO*"}},
			wantSQL:  "(COALESCE(p.idx->'00100010_fuzzy', '[]'::jsonb) ?& $1::text[] AND EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(p.idx->'00100010_tokens', '[]'::jsonb)) AS v(s) WHERE v.s LIKE $2))",
			wantArgs: []any{[]string{"S530"}, "JO%"},
		},
		{
			name: "match unknown",
			pred: query.Or{
				&query.Equal{Field: field(types.QueryLevelSeries, dicom.Modality), Values: []string{"CT"}},
				&query.Empty{Field: field(types.QueryLevelSeries, dicom.Modality)},
			},
			wantSQL:  "(EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(se.idx->'00080060', '[]'::jsonb)) AS v(s) WHERE v.s = ANY($1)) OR COALESCE(jsonb_array_length(se.idx->'00080060'), 0) = 0)",
			wantArgs: []any{[]string{"CT"}},
		},
		{
			name: "sequence item",
			pred: &query.Item{
				Field: field(types.QueryLevelStudy, dicom.RequestAttributesSequence),
				Pred:  query.And{&query.Equal{Field: field(types.QueryLevelStudy, dicom.AccessionNumber), Values: []string{"A1"}}},
			},
			wantSQL:  "EXISTS (SELECT 1 FROM jsonb_array_elements(COALESCE(st.idx->'00400275', '[]'::jsonb)) AS item1(doc) WHERE EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(item1.doc->'00080050', '[]'::jsonb)) AS v(s) WHERE v.s = ANY($1)))",
			wantArgs: []any{[]string{"A1"}},
		},
		{
			name:     "identity",
			pred:     &query.Identity{IDs: []types.IDWithIssuer{{ID: "P1", Issuer: "HOSP"}, {ID: "P2"}}},
			wantSQL:  "((p.pat_id = $1 AND p.pat_id_issuer IN ($2, '')) OR (p.pat_id = $3))",
			wantArgs: []any{"P1", "HOSP", "P2"},
		},
		{
			name:    "not merged",
			pred:    query.NotMerged{},
			wantSQL: "NOT p.merged",
		},
		{
			name:     "access control",
			pred:     &query.AccessControl{IDs: []string{"ward1"}},
			wantSQL:  "(st.access_control_id = '' OR st.access_control_id = ANY($1))",
			wantArgs: []any{[]string{"ward1"}},
		},
		{
			name:    "empty conjunction",
			pred:    query.And{},
			wantSQL: "TRUE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &sqlBuilder{}
			got, err := b.predicate(tt.pred, levelDoc)
			if err != nil {
				t.Fatalf("predicate() error = %v", err)
			}
			if got != tt.wantSQL {
				t.Errorf("predicate() =\n%s\nwant\n%s", got, tt.wantSQL)
			}
			if !equalArgs(b.args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", b.args, tt.wantArgs)
			}
		})
	}
}

func equalArgs(got, want []any) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		switch w := want[i].(type) {
		case []string:
			g, ok := got[i].([]string)
			if !ok || !slices.Equal(g, w) {
				return false
			}
		default:
			if got[i] != w {
				return false
			}
		}
	}
	return true
}

func TestSelectStatement(t *testing.T) {
	keys := dicom.NewDataset()
	keys.AddElement(dicom.StudyInstanceUID, dicom.VR_UI, []string{"1.2.3"})
	keys.AddElement(dicom.Modality, dicom.VR_CS, []string{"CT"})
	plan, err := query.Build(types.QueryLevelSeries, nil, keys, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	plan.OrderBy = []query.Order{{Tag: dicom.SeriesNumber, Descending: true}}
	plan.Offset = 10
	plan.Limit = 5

	stmt, err := selectStatement(plan)
	if err != nil {
		t.Fatalf("selectStatement() error = %v", err)
	}
	for _, want := range []string{
		"SELECT p.attrs, st.attrs, se.attrs, ",
		"FROM patient p JOIN study st ON st.patient_fk = p.pk JOIN series se ON se.study_fk = st.pk WHERE ",
		"NOT p.merged",
		"ORDER BY se.idx->'00200011'->0 DESC NULLS LAST, se.pk",
	} {
		if !strings.Contains(stmt.sql, want) {
			t.Errorf("statement lacks %q:\n%s", want, stmt.sql)
		}
	}
	n := len(stmt.args)
	if n < 2 || stmt.args[n-2] != 10 || stmt.args[n-1] != 5 {
		t.Errorf("window args = %v, want offset 10 and limit 5 last", stmt.args)
	}
	if !strings.HasSuffix(stmt.sql, " OFFSET $"+strconv.Itoa(n-1)+" LIMIT $"+strconv.Itoa(n)) {
		t.Errorf("statement should end with the window:\n%s", stmt.sql)
	}

	count, err := countStatement(plan)
	if err != nil {
		t.Fatalf("countStatement() error = %v", err)
	}
	if strings.Contains(count.sql, "LIMIT") || strings.Contains(count.sql, "ORDER BY") {
		t.Errorf("count should ignore order and window:\n%s", count.sql)
	}
	if len(count.args) != n-2 {
		t.Errorf("count args = %d, want %d", len(count.args), n-2)
	}
}

func TestSelectStatement_Columns(t *testing.T) {
	for _, level := range types.QueryLevels() {
		plan := &query.Plan{Level: level}
		stmt, err := selectStatement(plan)
		if err != nil {
			t.Fatalf("selectStatement(%s) error = %v", level, err)
		}
		cols := strings.Count(stmt.sql[:strings.Index(stmt.sql, " FROM patient p")], ".attrs")
		if want := level.Rank() + 1; cols != want {
			t.Errorf("%s selects %d attrs columns, want %d", level, cols, want)
		}
		if len(derivedColumns[level]) != 7 {
			t.Errorf("%s has %d derived columns, want 7", level, len(derivedColumns[level]))
		}
		if !strings.Contains(stmt.sql, "WHERE TRUE ORDER BY") {
			t.Errorf("unrestricted %s plan should match everything:\n%s", level, stmt.sql)
		}
	}
}
