package query

import (
	"testing"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/fuzzy"
	"github.com/caio-sobreiro/dicomarc/types"
)

// matchedIDs returns the values of tag of every record plan matches.
func matchedIDs(plan *Plan, records []*Record, tag dicom.Tag) []string {
	var ids []string
	for _, ds := range Evaluate(plan, records) {
		ids = append(ids, ds.GetString(tag))
	}
	return ids
}

func mustBuild(t *testing.T, level types.QueryLevel, pids []types.IDWithIssuer, keys *dicom.Dataset, param *QueryParam) *Plan {
	t.Helper()
	plan, err := Build(level, pids, keys, param)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return plan
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuild_Matching(t *testing.T) {
	studies := []*Record{
		newRecord(t, "StudyInstanceUID=1", "PatientName=DOE^JOHN", "StudyDate=20240115", "StudyTime=0800", "AccessionNumber=A1"),
		newRecord(t, "StudyInstanceUID=2", "PatientName=Smith^Anna", "StudyDate=20240102", "StudyTime=0800", "AccessionNumber=A2"),
		newRecord(t, "StudyInstanceUID=3", "PatientName=doe^jane", "StudyDate=20240101", "StudyTime=1300", "AccessionNumber=B1"),
		newRecord(t, "StudyInstanceUID=4", "PatientName=SMYTH^JOHN", "StudyDate=20240201", "StudyTime=2345"),
	}

	tests := []struct {
		name  string
		keys  []string
		param QueryParam
		want  []string
	}{
		{
			name:  "Person name wildcard ignoring case",
			keys:  []string{"PatientName=doe*"},
			param: QueryParam{PersonNameCaseInsensitive: true},
			want:  []string{"1", "3"},
		},
		{
			name: "Person name wildcard respecting case",
			keys: []string{"PatientName=doe*"},
			want: []string{"3"},
		},
		{
			name: "Wildcard on a string attribute",
			keys: []string{"AccessionNumber=A?"},
			want: []string{"1", "2"},
		},
		{
			name: "Value list",
			keys: []string{"AccessionNumber=A2|B1"},
			want: []string{"2", "3"},
		},
		{
			name: "Date range",
			keys: []string{"StudyDate=20240101-20240131"},
			want: []string{"1", "2", "3"},
		},
		{
			name: "Open date range",
			keys: []string{"StudyDate=20240115-"},
			want: []string{"1", "4"},
		},
		{
			name: "Month",
			keys: []string{"StudyDate=202402"},
			want: []string{"4"},
		},
		{
			name: "Date and time matched separately",
			keys: []string{"StudyDate=20240101-20240102", "StudyTime=1200-"},
			want: []string{"3"},
		},
		{
			name:  "Date and time combined",
			keys:  []string{"StudyDate=20240101-20240102", "StudyTime=1200-"},
			param: QueryParam{Options: types.NewQueryOptions(types.QueryOptionDateTime)},
			want:  []string{"2", "3"},
		},
		{
			name: "Date time shifted into the archive offset",
			keys: []string{"StudyDate=20240202", "StudyTime=0030-0100"},
			param: QueryParam{
				Options:               types.NewQueryOptions(types.QueryOptionDateTime, types.QueryOptionTimezone),
				TimezoneOffset:        "+0100",
				ArchiveTimezoneOffset: "+0000",
			},
			want: []string{"4"},
		},
		{
			name: "Phonetic person name",
			keys: []string{"PatientName=SMITH"},
			param: QueryParam{
				Options: types.NewQueryOptions(types.QueryOptionFuzzy),
				Fuzzy:   fuzzy.NewSoundex(),
			},
			want: []string{"2", "4"},
		},
		{
			name: "Universal match",
			keys: []string{"PatientName=*"},
			want: []string{"1", "2", "3", "4"},
		},
		{
			name:  "Missing value matches when unknown values match",
			keys:  []string{"AccessionNumber=B1"},
			param: QueryParam{MatchUnknown: true},
			want:  []string{"3", "4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			param := tt.param
			plan := mustBuild(t, types.QueryLevelStudy, nil, newDataset(t, tt.keys...), &param)
			got := matchedIDs(plan, studies, dicom.StudyInstanceUID)
			if !equalStrings(got, tt.want) {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuild_RelationalScope(t *testing.T) {
	series := []*Record{
		newRecord(t, "PatientName=DOE^JOHN", "StudyInstanceUID=1.2.3", "SeriesInstanceUID=1.2.3.1", "Modality=CT"),
		newRecord(t, "PatientName=ROE^JANE", "StudyInstanceUID=1.2.3", "SeriesInstanceUID=1.2.3.2", "Modality=MR"),
		newRecord(t, "PatientName=DOE^JOHN", "StudyInstanceUID=4.5.6", "SeriesInstanceUID=4.5.6.1", "Modality=CT"),
	}

	t.Run("Ancestor attributes are ignored without relational matching", func(t *testing.T) {
		plan := mustBuild(t, types.QueryLevelSeries, nil, newDataset(t, "PatientName=DOE*", "Modality=CT"), nil)
		if !plan.OptionalKeyNotSupported() {
			t.Error("PatientName should be reported as not supported")
		}
		got := matchedIDs(plan, series, dicom.SeriesInstanceUID)
		if want := []string{"1.2.3.1", "4.5.6.1"}; !equalStrings(got, want) {
			t.Errorf("matches = %v, want %v", got, want)
		}
	})

	t.Run("Ancestor attributes match with relational matching", func(t *testing.T) {
		param := &QueryParam{Options: types.NewQueryOptions(types.QueryOptionRelational)}
		plan := mustBuild(t, types.QueryLevelSeries, nil, newDataset(t, "PatientName=ROE*"), param)
		if plan.OptionalKeyNotSupported() {
			t.Error("PatientName should be supported")
		}
		if !plan.Relational {
			t.Error("plan should be relational")
		}
		got := matchedIDs(plan, series, dicom.SeriesInstanceUID)
		if want := []string{"1.2.3.2"}; !equalStrings(got, want) {
			t.Errorf("matches = %v, want %v", got, want)
		}
	})

	t.Run("Study unique key restricts series", func(t *testing.T) {
		plan := mustBuild(t, types.QueryLevelSeries, nil, newDataset(t, "StudyInstanceUID=1.2.3"), nil)
		if plan.OptionalKeyNotSupported() {
			t.Error("StudyInstanceUID should always be supported")
		}
		got := matchedIDs(plan, series, dicom.SeriesInstanceUID)
		if want := []string{"1.2.3.1", "1.2.3.2"}; !equalStrings(got, want) {
			t.Errorf("matches = %v, want %v", got, want)
		}
	})

	t.Run("Derived attributes are not matched", func(t *testing.T) {
		plan := mustBuild(t, types.QueryLevelSeries, nil, newDataset(t, "NumberOfSeriesRelatedInstances=3"), nil)
		if !plan.OptionalKeyNotSupported() {
			t.Error("NumberOfSeriesRelatedInstances should be reported as not supported")
		}
		if got := len(Evaluate(plan, series)); got != 3 {
			t.Errorf("matches = %d, want 3", got)
		}
	})
}

func TestBuild_PatientRestrictions(t *testing.T) {
	studies := []*Record{
		newRecord(t, "StudyInstanceUID=1", "PatientID=P1", "IssuerOfPatientID=A"),
		newRecord(t, "StudyInstanceUID=2", "PatientID=P1", "IssuerOfPatientID=B"),
		newRecord(t, "StudyInstanceUID=3", "PatientID=P1"),
		newRecord(t, "StudyInstanceUID=4", "PatientID=P2", "IssuerOfPatientID=A"),
		newRecord(t, "StudyInstanceUID=5", "PatientID=P3"),
	}
	studies[4].Merged = true
	studies[1].AccessControlID = "radiology"
	studies[2].AccessControlID = "cardiology"

	tests := []struct {
		name  string
		pids  []types.IDWithIssuer
		keys  []string
		param QueryParam
		want  []string
	}{
		{
			name: "Identity with issuer",
			pids: []types.IDWithIssuer{{ID: "P1", Issuer: "A"}},
			keys: []string{"PatientID=P1"},
			want: []string{"1", "3"},
		},
		{
			name: "Identity of linked patients",
			pids: []types.IDWithIssuer{{ID: "P1", Issuer: "B"}, {ID: "P2", Issuer: "A"}},
			keys: []string{"PatientID=P1"},
			want: []string{"2", "3", "4"},
		},
		{
			name: "Merged patients are hidden",
			want: []string{"1", "2", "3", "4"},
		},
		{
			name:  "Merged patients on request",
			param: QueryParam{IncludeMergedPatients: true},
			want:  []string{"1", "2", "3", "4", "5"},
		},
		{
			name:  "Access control",
			param: QueryParam{AccessControlIDs: []string{"radiology"}},
			want:  []string{"1", "2", "4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			param := tt.param
			plan := mustBuild(t, types.QueryLevelStudy, tt.pids, newDataset(t, tt.keys...), &param)
			got := matchedIDs(plan, studies, dicom.StudyInstanceUID)
			if !equalStrings(got, tt.want) {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuild_IdentityRestrictsEveryLevel(t *testing.T) {
	series := []*Record{
		newRecord(t, "SeriesInstanceUID=1.1", "StudyInstanceUID=1", "PatientID=P1"),
		newRecord(t, "SeriesInstanceUID=1.2", "StudyInstanceUID=1", "PatientID=P1"),
		newRecord(t, "SeriesInstanceUID=2.1", "StudyInstanceUID=2", "PatientID=P2"),
	}
	tests := []struct {
		name string
		pid  string
		keys []string
		want []string
	}{
		{"Patient of the study", "P1", []string{"StudyInstanceUID=1", "PatientID=P1"}, []string{"1.1", "1.2"}},
		{"Other patient", "P2", []string{"StudyInstanceUID=1", "PatientID=P2"}, nil},
		{"Any study", "P2", []string{"PatientID=P2"}, []string{"2.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := mustBuild(t, types.QueryLevelSeries, []types.IDWithIssuer{{ID: tt.pid}}, newDataset(t, tt.keys...), nil)
			if got := matchedIDs(plan, series, dicom.SeriesInstanceUID); !equalStrings(got, tt.want) {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
			if plan.OptionalKeyNotSupported() {
				t.Error("PatientID should be matched through the identity, not ignored")
			}
		})
	}
}

func TestBuild_Sequence(t *testing.T) {
	record := func(uid, meaning string) *Record {
		r := newRecord(t, "SOPInstanceUID="+uid)
		item := dicom.NewDataset()
		if err := item.SetStrings(dicom.CodeMeaning, meaning); err != nil {
			t.Fatal(err)
		}
		r.Attrs.AddItem(dicom.ContentSequence, item)
		return r
	}
	instances := []*Record{record("1", "Chest"), record("2", "Abdomen")}

	keys := dicom.NewDataset()
	item, err := keys.Item(dicom.ContentSequence)
	if err != nil {
		t.Fatalf("Item() error = %v", err)
	}
	if err := item.SetStrings(dicom.CodeMeaning, "Ch*"); err != nil {
		t.Fatal(err)
	}

	plan := mustBuild(t, types.QueryLevelInstance, nil, keys, nil)
	got := matchedIDs(plan, instances, dicom.SOPInstanceUID)
	if want := []string{"1"}; !equalStrings(got, want) {
		t.Errorf("matches = %v, want %v", got, want)
	}
}

func TestBuild_UniversalKeysAddNoPredicate(t *testing.T) {
	keys := newDataset(t, "PatientName=*", "StudyDate=-", "StudyDescription=")
	plan := mustBuild(t, types.QueryLevelStudy, nil, keys, nil)
	// only the merged patient restriction remains
	if len(plan.Predicate) != 1 {
		t.Errorf("predicate = %#v, want a single NotMerged", plan.Predicate)
	}
	if plan.OptionalKeyNotSupported() {
		t.Error("universal keys should not be reported")
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name      string
		level     types.QueryLevel
		keys      []string
		param     QueryParam
		wantParam string
		wantErr   error
	}{
		{
			name:      "Lower bound after upper bound",
			level:     types.QueryLevelStudy,
			keys:      []string{"StudyDate=20240201-20240101"},
			wantParam: "StudyDate=20240201-20240101",
			wantErr:   errors.ErrInvalidRange,
		},
		{
			name:      "Malformed time",
			level:     types.QueryLevelSeries,
			keys:      []string{"SeriesTime=25h"},
			wantParam: "SeriesTime=25h",
			wantErr:   errors.ErrInvalidRange,
		},
		{
			name:  "Malformed timezone offset",
			level: types.QueryLevelStudy,
			keys:  []string{"StudyDate=20240101"},
			param: QueryParam{
				Options:               types.NewQueryOptions(types.QueryOptionTimezone),
				TimezoneOffset:        "0100",
				ArchiveTimezoneOffset: "+0000",
			},
			wantParam: "TimezoneOffsetFromUTC=0100",
			wantErr:   errors.ErrInvalidValue,
		},
		{
			name:      "Unknown level",
			level:     types.QueryLevel("FRAME"),
			wantParam: "level=FRAME",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			param := tt.param
			_, err := Build(tt.level, nil, newDataset(t, tt.keys...), &param)
			var verr *errors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Build() error = %v, want *ValidationError", err)
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
