package store

import (
	"slices"
	"testing"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/fuzzy"
	"github.com/caio-sobreiro/dicomarc/types"
)

func TestNewDocument(t *testing.T) {
	ds := dicom.NewDataset()
	set := func(tag dicom.Tag, values ...string) {
		if err := ds.SetStrings(tag, values...); err != nil {
			t.Fatalf("SetStrings(%s): %v", tag, err)
		}
	}
	set(dicom.PatientName, "Müller^Hans")
	set(dicom.StudyDate, "20240102")
	set(dicom.StudyTime, "0930")
	set(dicom.SeriesNumber, "12")
	set(dicom.StudyDescription, "")
	item, err := ds.Item(dicom.RequestAttributesSequence)
	if err != nil {
		t.Fatal(err)
	}
	if err := item.SetStrings(dicom.AccessionNumber, "A1 "); err != nil {
		t.Fatal(err)
	}

	doc := NewDocument(ds, fuzzy.NewSoundex())

	tests := []struct {
		key  string
		want []any
	}{
		{Key(dicom.PatientName), []any{"Müller^Hans"}},
		{Key(dicom.StudyDate), []any{"20240102"}},
		{Key(dicom.StudyTime), []any{"093000.000000"}},
		{Key(dicom.SeriesNumber), []any{int64(12)}},
		{DateTimeKey(dicom.StudyDate, dicom.StudyTime), []any{"20240102093000.000000"}},
	}
	for _, tt := range tests {
		got, _ := doc[tt.key].([]any)
		if !slices.Equal(got, tt.want) {
			t.Errorf("doc[%s] = %v, want %v", tt.key, doc[tt.key], tt.want)
		}
	}
	if got := doc[FuzzyKey(dicom.PatientName)]; !slices.Equal(got.([]string), []string{"H520", "M460"}) {
		t.Errorf("fuzzy keys = %v, want [H520 M460]", got)
	}
	if got := doc[TokensKey(dicom.PatientName)]; !slices.Equal(got.([]string), []string{"MULLER", "HANS"}) {
		t.Errorf("tokens = %v, want [MULLER HANS]", got)
	}
	if _, ok := doc[Key(dicom.StudyDescription)]; ok {
		t.Error("empty attributes should not be indexed")
	}
	items, _ := doc[Key(dicom.RequestAttributesSequence)].([]Document)
	if len(items) != 1 || !slices.Equal(items[0][Key(dicom.AccessionNumber)].([]any), []any{"A1"}) {
		t.Errorf("sequence items = %v", doc[Key(dicom.RequestAttributesSequence)])
	}
}

func TestSplitLevels(t *testing.T) {
	ds := dicom.NewDataset()
	ds.AddElement(dicom.PatientID, dicom.VR_LO, []string{"P1"})
	ds.AddElement(dicom.StudyInstanceUID, dicom.VR_UI, []string{"1"})
	ds.AddElement(dicom.Modality, dicom.VR_CS, []string{"CT"})
	ds.AddElement(dicom.SOPInstanceUID, dicom.VR_UI, []string{"1.1.1"})
	ds.AddElement(dicom.PhotometricInterpretation, dicom.VR_CS, []string{"MONOCHROME2"})
	ds.AddElement(dicom.PixelData, dicom.VR_OW, []byte{0, 0})
	ds.AddElement(dicom.TransferSyntaxUID, dicom.VR_UI, []string{types.ExplicitVRLittleEndian})

	split := SplitLevels(ds)
	checks := []struct {
		level types.QueryLevel
		tag   dicom.Tag
	}{
		{types.QueryLevelPatient, dicom.PatientID},
		{types.QueryLevelStudy, dicom.StudyInstanceUID},
		{types.QueryLevelSeries, dicom.Modality},
		{types.QueryLevelInstance, dicom.SOPInstanceUID},
		{types.QueryLevelInstance, dicom.PhotometricInterpretation},
	}
	for _, c := range checks {
		if !split[c.level].Contains(c.tag) {
			t.Errorf("%s should be stored at %s", c.tag, c.level)
		}
	}
	if split[types.QueryLevelInstance].Contains(dicom.PixelData) {
		t.Error("pixel data should not be indexed")
	}
	if split[types.QueryLevelInstance].Contains(dicom.TransferSyntaxUID) {
		t.Error("file meta information should not be indexed")
	}
}

func TestDerived_Apply(t *testing.T) {
	d := Derived{Series: 2, Modalities: []string{"MR", "CT", "MR"}}
	d.AddInstance(types.InstanceRef{SOPClassUID: types.CTImageStorage, RetrieveAETitle: "AE1", Availability: types.AvailabilityOnline})
	d.AddInstance(types.InstanceRef{SOPClassUID: types.CTImageStorage, RetrieveAETitle: "AE2", Availability: types.AvailabilityNearline})

	ds := dicom.NewDataset()
	d.Apply(types.QueryLevelStudy, ds)

	if got := ds.GetString(dicom.NumberOfStudyRelatedInstances); got != "2" {
		t.Errorf("NumberOfStudyRelatedInstances = %q, want 2", got)
	}
	if got := ds.GetStrings(dicom.ModalitiesInStudy); !slices.Equal(got, []string{"CT", "MR"}) {
		t.Errorf("ModalitiesInStudy = %v, want [CT MR]", got)
	}
	if got := ds.GetStrings(dicom.SOPClassesInStudy); len(got) != 1 {
		t.Errorf("SOPClassesInStudy = %v, want one class", got)
	}
	if got := ds.GetStrings(dicom.RetrieveAETitle); !slices.Equal(got, []string{"AE1", "AE2"}) {
		t.Errorf("RetrieveAETitle = %v, want [AE1 AE2]", got)
	}
	if got := ds.GetString(dicom.InstanceAvailability); got != types.AvailabilityNearline {
		t.Errorf("InstanceAvailability = %q, want NEARLINE", got)
	}
	if ds.Contains(dicom.NumberOfPatientRelatedStudies) {
		t.Error("study records should not carry patient counts")
	}
}

func TestLeastAvailable(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"", types.AvailabilityOnline, types.AvailabilityOnline},
		{types.AvailabilityOffline, "", types.AvailabilityOffline},
		{types.AvailabilityOnline, types.AvailabilityUnavailable, types.AvailabilityUnavailable},
		{types.AvailabilityNearline, types.AvailabilityOnline, types.AvailabilityNearline},
	}
	for _, tt := range tests {
		if got := LeastAvailable(tt.a, tt.b); got != tt.want {
			t.Errorf("LeastAvailable(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
	for rank := range 4 {
		if got := AvailabilityRank(AvailabilityOfRank(rank)); got != rank {
			t.Errorf("AvailabilityRank(AvailabilityOfRank(%d)) = %d", rank, got)
		}
	}
}
