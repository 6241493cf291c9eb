package query

import (
	"slices"
	"testing"

	"github.com/caio-sobreiro/dicomarc/dicom"
)

func TestCompareRecords(t *testing.T) {
	tests := []struct {
		name   string
		tag    dicom.Tag
		desc   bool
		values []string
		want   []string
	}{
		{"Integer ascending", dicom.SeriesNumber, false, []string{"10", "9", "", "2"}, []string{"", "2", "9", "10"}},
		{"Integer descending", dicom.SeriesNumber, true, []string{"10", "", "9"}, []string{"10", "9", ""}},
		{"Integers before text", dicom.SeriesNumber, false, []string{"x", "10", "9"}, []string{"9", "10", "x"}},
		{"String VR", dicom.PatientName, false, []string{"B", "", "10", "9"}, []string{"", "10", "9", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := []Order{{Tag: tt.tag, Descending: tt.desc}}
			records := make([]*dicom.Dataset, len(tt.values))
			for i, v := range tt.values {
				records[i] = dicom.NewDataset()
				if v != "" {
					records[i].AddElement(tt.tag, dicom.VROf(tt.tag), []string{v})
				}
			}
			slices.SortStableFunc(records, func(a, b *dicom.Dataset) int {
				return compareRecords(orders, a, b)
			})
			got := make([]string, len(records))
			for i, ds := range records {
				got[i] = ds.GetString(tt.tag)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("order = %q, want %q", got, tt.want)
			}
		})
	}
}
