package store

import (
	"slices"
	"strconv"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/types"
)

// Derived holds the attributes an archive computes for an entity from its
// descendants. Counts a level does not carry are ignored.
type Derived struct {
	Studies   int64
	Series    int64
	Instances int64

	Modalities       []string
	SOPClasses       []string
	RetrieveAETitles []string
	// Availability is that of the least available instance.
	Availability string
}

// Apply adds the derived attributes of level to ds, replacing stored values.
func (d *Derived) Apply(level types.QueryLevel, ds *dicom.Dataset) {
	switch level {
	case types.QueryLevelPatient:
		setCount(ds, dicom.NumberOfPatientRelatedStudies, d.Studies)
		setCount(ds, dicom.NumberOfPatientRelatedSeries, d.Series)
		setCount(ds, dicom.NumberOfPatientRelatedInstances, d.Instances)
		return
	case types.QueryLevelStudy:
		setCount(ds, dicom.NumberOfStudyRelatedSeries, d.Series)
		setCount(ds, dicom.NumberOfStudyRelatedInstances, d.Instances)
		setDistinct(ds, dicom.ModalitiesInStudy, dicom.VR_CS, d.Modalities)
		setDistinct(ds, dicom.SOPClassesInStudy, dicom.VR_UI, d.SOPClasses)
	case types.QueryLevelSeries:
		setCount(ds, dicom.NumberOfSeriesRelatedInstances, d.Instances)
	}
	setDistinct(ds, dicom.RetrieveAETitle, dicom.VR_AE, d.RetrieveAETitles)
	if d.Availability != "" {
		ds.AddElement(dicom.InstanceAvailability, dicom.VR_CS, []string{d.Availability})
	}
}

// AddInstance accounts for one instance below the entity.
func (d *Derived) AddInstance(ref types.InstanceRef) {
	d.Instances++
	if ref.SOPClassUID != "" {
		d.SOPClasses = append(d.SOPClasses, ref.SOPClassUID)
	}
	if ref.RetrieveAETitle != "" {
		d.RetrieveAETitles = append(d.RetrieveAETitles, ref.RetrieveAETitle)
	}
	d.Availability = LeastAvailable(d.Availability, ref.Availability)
}

var availabilityRank = []string{
	types.AvailabilityOnline,
	types.AvailabilityNearline,
	types.AvailabilityOffline,
	types.AvailabilityUnavailable,
}

// AvailabilityRank orders availabilities from ONLINE (0) to UNAVAILABLE (3).
// Unknown values rank as ONLINE.
func AvailabilityRank(availability string) int {
	return max(slices.Index(availabilityRank, availability), 0)
}

// AvailabilityOfRank is the inverse of AvailabilityRank.
func AvailabilityOfRank(rank int) string {
	if rank < 0 || rank >= len(availabilityRank) {
		return types.AvailabilityOnline
	}
	return availabilityRank[rank]
}

// LeastAvailable returns the worse of two availabilities; "" is no
// availability at all.
func LeastAvailable(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case AvailabilityRank(b) > AvailabilityRank(a):
		return b
	}
	return a
}

func setCount(ds *dicom.Dataset, tag dicom.Tag, n int64) {
	ds.AddElement(tag, dicom.VR_IS, []string{strconv.FormatInt(n, 10)})
}

func setDistinct(ds *dicom.Dataset, tag dicom.Tag, vr string, values []string) {
	values = slices.Clone(values)
	slices.Sort(values)
	values = slices.Compact(values)
	if len(values) == 0 {
		ds.AddElement(tag, vr, nil)
		return
	}
	ds.AddElement(tag, vr, values)
}
