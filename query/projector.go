package query

import (
	"strings"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/types"
)

// alwaysReturned are included in every projected match
var alwaysReturned = []dicom.Tag{
	dicom.SpecificCharacterSet,
	dicom.RetrieveAETitle,
	dicom.InstanceAvailability,
	dicom.RetrieveURL,
}

// Projector reduces matches to the fields a caller asked for and adds the
// derived retrieve location.
type Projector struct {
	Level types.QueryLevel
	// IncludeAll returns every stored attribute.
	IncludeAll bool
	// Keys are the query keys; each top level key is returned.
	Keys *dicom.Dataset
	// AlwaysInclude lists the configured attributes of Level returned
	// regardless of the keys.
	AlwaysInclude []dicom.Tag
	// BaseURL and AETitle locate the retrieve service. No retrieve location
	// is added when BaseURL is empty.
	BaseURL string
	AETitle string
}

// Project returns the projected form of match. match is not modified.
func (p *Projector) Project(match *dicom.Dataset) *dicom.Dataset {
	var out *dicom.Dataset
	if p.IncludeAll {
		out = match.Clone()
	} else {
		tags := make([]dicom.Tag, 0, len(alwaysReturned)+len(p.AlwaysInclude))
		tags = append(tags, alwaysReturned...)
		tags = append(tags, p.AlwaysInclude...)
		if p.Keys != nil {
			tags = append(tags, p.Keys.Tags()...)
		}
		out = match.Select(tags...)
	}
	if p.BaseURL != "" && p.Level != types.QueryLevelPatient && !out.Contains(dicom.RetrieveURL) {
		out.AddElement(dicom.RetrieveURL, dicom.VR_UR, []string{RetrieveURL(p.BaseURL, p.AETitle, p.Level, match)})
	}
	return out
}

// RetrieveURL builds the retrieve location of match at level: the base
// service location, the AE title and the study, followed by the series from
// the series level down and the instance at the instance level.
func RetrieveURL(baseURL, aeTitle string, level types.QueryLevel, match *dicom.Dataset) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(baseURL, "/"))
	b.WriteString("/wado-rs/")
	b.WriteString(aeTitle)
	b.WriteString("/studies/")
	b.WriteString(match.GetString(dicom.StudyInstanceUID))
	if level.Compare(types.QueryLevelSeries) >= 0 {
		b.WriteString("/series/")
		b.WriteString(match.GetString(dicom.SeriesInstanceUID))
	}
	if level == types.QueryLevelInstance {
		b.WriteString("/instances/")
		b.WriteString(match.GetString(dicom.SOPInstanceUID))
	}
	return b.String()
}
