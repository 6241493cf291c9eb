package query

import (
	"net/url"
	"slices"
	"testing"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/types"
)

func TestParseKeys(t *testing.T) {
	req := &Request{
		Level: types.QueryLevelStudy,
		Params: url.Values{
			"PatientName":           {"DOE*"},
			"ModalitiesInStudy":     {"CT", "MR"},
			"0040A730.CodeMeaning":  {"Chest"},
			"StudyInstanceUID":      {"9.9.9"},
			"StudyDescription":      {""},
			ParamIncludeField:       {"00081030,study"},
			ParamOrderBy:            {"-PatientName,StudyDate"},
			ParamOffset:             {"10"},
			ParamLimit:              {"5"},
			ParamFuzzyMatching:      {"true"},
			ParamTimezoneAdjustment: {"0"},
		},
		StudyInstanceUID: "1.2.3",
	}
	keys, err := ParseKeys(req)
	if err != nil {
		t.Fatalf("ParseKeys() error = %v", err)
	}

	ds := keys.Dataset
	if got := ds.GetString(dicom.PatientName); got != "DOE*" {
		t.Errorf("PatientName = %q, want DOE*", got)
	}
	if got := ds.GetStrings(dicom.ModalitiesInStudy); !slices.Equal(got, []string{"CT", "MR"}) {
		t.Errorf("ModalitiesInStudy = %v, want [CT MR]", got)
	}
	items := ds.Items(dicom.ContentSequence)
	if len(items) != 1 || items[0].GetString(dicom.CodeMeaning) != "Chest" {
		t.Errorf("ContentSequence = %v, want one item with CodeMeaning Chest", items)
	}
	if got := ds.GetStrings(dicom.StudyInstanceUID); !slices.Equal(got, []string{"1.2.3"}) {
		t.Errorf("StudyInstanceUID = %v, path identifier should override the parameter", got)
	}
	for _, tag := range []dicom.Tag{dicom.StudyDescription, dicom.StudyDate, dicom.AccessionNumber} {
		e, ok := ds.GetElement(tag)
		if !ok || !e.IsEmpty() {
			t.Errorf("%s should be present without value", tag)
		}
	}
	if keys.IncludeAll {
		t.Error("IncludeAll should be false")
	}
	wantOrder := []Order{{Tag: dicom.PatientName, Descending: true}, {Tag: dicom.StudyDate}}
	if !slices.Equal(keys.OrderBy, wantOrder) {
		t.Errorf("OrderBy = %v, want %v", keys.OrderBy, wantOrder)
	}
	if keys.Offset != 10 || keys.Limit != 5 {
		t.Errorf("Offset, Limit = %d, %d, want 10, 5", keys.Offset, keys.Limit)
	}
	if !keys.Options.Has(types.QueryOptionFuzzy) || keys.Options.Has(types.QueryOptionTimezone) {
		t.Errorf("Options = %s, want FUZZY", keys.Options)
	}
}

func TestParseKeys_IncludeAllAndUIDList(t *testing.T) {
	keys, err := ParseKeys(&Request{
		Level:      types.QueryLevelInstance,
		Relational: true,
		Params: url.Values{
			ParamIncludeField: {"all"},
			"SOPInstanceUID":  {"1.2.3,1.2.4"},
		},
	})
	if err != nil {
		t.Fatalf("ParseKeys() error = %v", err)
	}
	if !keys.IncludeAll {
		t.Error("IncludeAll should be true")
	}
	if got := keys.Dataset.GetStrings(dicom.SOPInstanceUID); len(got) != 2 {
		t.Errorf("SOPInstanceUID = %v, want two values", got)
	}
	if !keys.Options.Has(types.QueryOptionRelational) {
		t.Error("relational request should carry RELATIONAL")
	}
}

func TestParseKeys_Errors(t *testing.T) {
	tests := []struct {
		name      string
		level     types.QueryLevel
		params    url.Values
		wantParam string
		wantErr   error
	}{
		{
			name:      "Unknown keyword",
			params:    url.Values{"PatientNme": {"DOE"}},
			wantParam: "PatientNme=DOE",
			wantErr:   errors.ErrUnknownKeyword,
		},
		{
			name:      "Nesting below a non sequence",
			params:    url.Values{"PatientName.PatientID": {"1"}},
			wantParam: "PatientName.PatientID=1",
			wantErr:   errors.ErrInvalidTagPath,
		},
		{
			name:      "Unknown include field",
			params:    url.Values{ParamIncludeField: {"StudyDate,bogus"}},
			wantParam: "includefield=bogus",
			wantErr:   errors.ErrUnknownKeyword,
		},
		{
			name:      "Unknown order by field",
			params:    url.Values{ParamOrderBy: {"-Nonsense"}},
			wantParam: "orderby=-Nonsense",
			wantErr:   errors.ErrUnknownKeyword,
		},
		{
			name:      "Order by attribute of a lower level",
			level:     types.QueryLevelStudy,
			params:    url.Values{ParamOrderBy: {"SeriesNumber"}},
			wantParam: "orderby=SeriesNumber",
			wantErr:   errors.ErrNotOrderable,
		},
		{
			name:      "Value of wrong shape",
			params:    url.Values{"Rows": {"many"}},
			wantParam: "Rows=many",
			wantErr:   errors.ErrInvalidValue,
		},
		{
			name:      "Malformed limit",
			params:    url.Values{ParamLimit: {"ten"}},
			wantParam: "limit=ten",
		},
		{
			name:      "Malformed flag",
			params:    url.Values{ParamFuzzyMatching: {"maybe"}},
			wantParam: "fuzzymatching=maybe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level := tt.level
			if level == "" {
				level = types.QueryLevelStudy
			}
			keys, err := ParseKeys(&Request{Level: level, Params: tt.params})
			if keys != nil {
				t.Error("ParseKeys() should not return keys on error")
			}
			var verr *errors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ParseKeys() error = %v, want *ValidationError", err)
			}
			if verr.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", verr.Param, tt.wantParam)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
