package types

import "testing"

func TestParseQueryLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    QueryLevel
		wantErr bool
	}{
		{"PATIENT", QueryLevelPatient, false},
		{"study", QueryLevelStudy, false},
		{"SERIES", QueryLevelSeries, false},
		{"IMAGE", QueryLevelInstance, false},
		{"INSTANCE", QueryLevelInstance, false},
		{"FRAME", "", true},
	}
	for _, tt := range tests {
		got, err := ParseQueryLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseQueryLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseQueryLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQueryLevel_Order(t *testing.T) {
	if QueryLevelPatient.Compare(QueryLevelStudy) >= 0 {
		t.Error("PATIENT should sort before STUDY")
	}
	if QueryLevelInstance.Compare(QueryLevelSeries) <= 0 {
		t.Error("INSTANCE should sort after SERIES")
	}
	if QueryLevelImage.Rank() != QueryLevelInstance.Rank() {
		t.Error("IMAGE and INSTANCE should have the same rank")
	}

	ancestors := QueryLevelSeries.Ancestors()
	if len(ancestors) != 2 || ancestors[0] != QueryLevelPatient || ancestors[1] != QueryLevelStudy {
		t.Errorf("SERIES.Ancestors() = %v, want [PATIENT STUDY]", ancestors)
	}
}

func TestQueryOptions(t *testing.T) {
	opts, err := ParseQueryOptions([]string{"relational", "FUZZY"})
	if err != nil {
		t.Fatalf("ParseQueryOptions: %v", err)
	}
	if !opts.Has(QueryOptionRelational) || !opts.Has(QueryOptionFuzzy) {
		t.Errorf("opts = %s, want RELATIONAL,FUZZY", opts)
	}
	if opts.Has(QueryOptionTimezone) {
		t.Error("opts unexpectedly contains TIMEZONE")
	}

	supported := NewQueryOptions(QueryOptionRelational, QueryOptionFuzzy, QueryOptionDateTime)
	if !opts.SubsetOf(supported) {
		t.Errorf("%s should be a subset of %s", opts, supported)
	}

	requested := opts.With(QueryOptionTimezone)
	if requested.SubsetOf(supported) {
		t.Errorf("%s should not be a subset of %s", requested, supported)
	}
	if got := requested.Missing(supported); got != NewQueryOptions(QueryOptionTimezone) {
		t.Errorf("Missing = %s, want TIMEZONE", got)
	}

	if _, err := ParseQueryOptions([]string{"PHONETIC"}); err == nil {
		t.Error("expected error for unknown option")
	}
}

func TestIDWithIssuer(t *testing.T) {
	a := IDWithIssuer{ID: "123", Issuer: "HOSP"}
	tests := []struct {
		other IDWithIssuer
		want  bool
	}{
		{IDWithIssuer{ID: "123", Issuer: "HOSP"}, true},
		{IDWithIssuer{ID: "123"}, true},
		{IDWithIssuer{ID: "123", Issuer: "OTHER"}, false},
		{IDWithIssuer{ID: "456", Issuer: "HOSP"}, false},
	}
	for _, tt := range tests {
		if got := a.Matches(tt.other); got != tt.want {
			t.Errorf("%s.Matches(%s) = %v, want %v", a, tt.other, got, tt.want)
		}
	}
	if a.String() != "123^^^HOSP" {
		t.Errorf("String() = %s, want 123^^^HOSP", a.String())
	}
	if got := ParseIDWithIssuer(a.String()); got != a {
		t.Errorf("ParseIDWithIssuer(%s) = %+v", a, got)
	}
	if got := ParseIDWithIssuer("789"); got != (IDWithIssuer{ID: "789"}) {
		t.Errorf("ParseIDWithIssuer(789) = %+v", got)
	}
}

func TestAEConfig_TransferCapabilityFor(t *testing.T) {
	ae := &AEConfig{
		AETitle: "ARCHIVE",
		TransferCapabilities: []TransferCapability{
			{SOPClassUID: StudyRootQueryRetrieveInformationModelFind, Role: RoleSCP, QueryOptions: NewQueryOptions(QueryOptionFuzzy)},
		},
	}
	if tc := ae.TransferCapabilityFor(StudyRootQueryRetrieveInformationModelFind, RoleSCP); tc == nil {
		t.Fatal("expected FIND SCP capability")
	}
	if tc := ae.TransferCapabilityFor(StudyRootQueryRetrieveInformationModelFind, RoleSCU); tc != nil {
		t.Errorf("unexpected SCU capability %+v", tc)
	}
}
