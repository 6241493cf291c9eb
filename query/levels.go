package query

import (
	"slices"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/types"
)

// levelRule describes the attributes stored at one level of the hierarchy
type levelRule struct {
	// attributes stored at the level, in the order of the level's include
	// field group
	attributes []dicom.Tag
	// uniqueKey identifies an entity of the level
	uniqueKey dicom.Tag
	// returnOnly attributes are derived by the archive and never matched
	returnOnly []dicom.Tag
}

var levelRules = map[types.QueryLevel]levelRule{
	types.QueryLevelPatient: {
		uniqueKey: dicom.PatientID,
		attributes: []dicom.Tag{
			dicom.PatientName,
			dicom.PatientID,
			dicom.IssuerOfPatientID,
			dicom.PatientBirthDate,
			dicom.PatientSex,
			dicom.NumberOfPatientRelatedStudies,
			dicom.NumberOfPatientRelatedSeries,
			dicom.NumberOfPatientRelatedInstances,
		},
		returnOnly: []dicom.Tag{
			dicom.NumberOfPatientRelatedStudies,
			dicom.NumberOfPatientRelatedSeries,
			dicom.NumberOfPatientRelatedInstances,
		},
	},
	types.QueryLevelStudy: {
		uniqueKey: dicom.StudyInstanceUID,
		attributes: []dicom.Tag{
			dicom.StudyDate,
			dicom.StudyTime,
			dicom.AccessionNumber,
			dicom.ModalitiesInStudy,
			dicom.SOPClassesInStudy,
			dicom.ReferringPhysicianName,
			dicom.StudyDescription,
			dicom.StudyInstanceUID,
			dicom.StudyID,
			dicom.NumberOfStudyRelatedSeries,
			dicom.NumberOfStudyRelatedInstances,
		},
		returnOnly: []dicom.Tag{
			dicom.NumberOfStudyRelatedSeries,
			dicom.NumberOfStudyRelatedInstances,
		},
	},
	types.QueryLevelSeries: {
		uniqueKey: dicom.SeriesInstanceUID,
		attributes: []dicom.Tag{
			dicom.SeriesDate,
			dicom.SeriesTime,
			dicom.Modality,
			dicom.InstitutionName,
			dicom.StationName,
			dicom.SeriesDescription,
			dicom.InstitutionalDepartmentName,
			dicom.PerformingPhysicianName,
			dicom.BodyPartExamined,
			dicom.SeriesInstanceUID,
			dicom.SeriesNumber,
			dicom.Laterality,
			dicom.PerformedProcedureStepStartDate,
			dicom.PerformedProcedureStepStartTime,
			dicom.RequestAttributesSequence,
			dicom.NumberOfSeriesRelatedInstances,
		},
		returnOnly: []dicom.Tag{
			dicom.NumberOfSeriesRelatedInstances,
		},
	},
	types.QueryLevelInstance: {
		uniqueKey: dicom.SOPInstanceUID,
		attributes: []dicom.Tag{
			dicom.SOPClassUID,
			dicom.SOPInstanceUID,
			dicom.ContentDate,
			dicom.ContentTime,
			dicom.AcquisitionDate,
			dicom.AcquisitionTime,
			dicom.InstanceNumber,
			dicom.Rows,
			dicom.Columns,
			dicom.BitsAllocated,
			dicom.NumberOfFrames,
			dicom.ConceptNameCodeSequence,
			dicom.CompletionFlag,
			dicom.VerificationFlag,
			dicom.ContentSequence,
		},
	},
}

// technical attributes are returned by every level and never matched
var technicalAttributes = []dicom.Tag{
	dicom.SpecificCharacterSet,
	dicom.QueryRetrieveLevel,
	dicom.RetrieveAETitle,
	dicom.InstanceAvailability,
	dicom.TimezoneOffsetFromUTC,
	dicom.RetrieveURL,
}

// attributeLevels maps each stored attribute to the level it is stored at
var attributeLevels = func() map[dicom.Tag]types.QueryLevel {
	m := make(map[dicom.Tag]types.QueryLevel)
	for _, level := range types.QueryLevels() {
		for _, tag := range levelRules[level].attributes {
			m[tag] = level
		}
	}
	return m
}()

// AttributeLevel returns the level an attribute is stored at. Attributes
// outside the level tables are not indexed.
func AttributeLevel(tag dicom.Tag) (types.QueryLevel, bool) {
	l, ok := attributeLevels[tag]
	return l, ok
}

// LevelAttributes returns the attributes stored at level.
func LevelAttributes(level types.QueryLevel) []dicom.Tag {
	return slices.Clone(levelRules[level].attributes)
}

// UniqueKey returns the attribute identifying an entity of level.
func UniqueKey(level types.QueryLevel) dicom.Tag {
	return levelRules[level].uniqueKey
}

// matchedLevels returns the levels whose attributes a query at level matches.
// Without relational matching a study query still covers patient attributes,
// as the study root information model carries them at the study level.
func matchedLevels(level types.QueryLevel, relational bool) []types.QueryLevel {
	if relational {
		return append(level.Ancestors(), level)
	}
	if level == types.QueryLevelStudy {
		return []types.QueryLevel{types.QueryLevelPatient, types.QueryLevelStudy}
	}
	return []types.QueryLevel{level}
}

// ancestorKeys returns the unique keys of the levels above level, which
// restrict the scope of every query.
func ancestorKeys(level types.QueryLevel) []dicom.Tag {
	var keys []dicom.Tag
	for _, a := range level.Ancestors() {
		if a == types.QueryLevelPatient {
			continue
		}
		keys = append(keys, levelRules[a].uniqueKey)
	}
	return keys
}

func isReturnOnly(tag dicom.Tag) bool {
	if slices.Contains(technicalAttributes, tag) {
		return true
	}
	if l, ok := attributeLevels[tag]; ok {
		return slices.Contains(levelRules[l].returnOnly, tag)
	}
	return false
}

// isOrderable reports whether a query at level can sort by tag: the tag must
// be a single valued attribute of one of the levels the query returns.
func isOrderable(level types.QueryLevel, tag dicom.Tag) bool {
	l, ok := attributeLevels[tag]
	if !ok || l.Compare(level) > 0 {
		return false
	}
	if dicom.VROf(tag) == dicom.VR_SQ {
		return false
	}
	return tag != dicom.ModalitiesInStudy && tag != dicom.SOPClassesInStudy
}

// fieldGroups are the named include field presets
var fieldGroups = map[string]types.QueryLevel{
	"patient":  types.QueryLevelPatient,
	"study":    types.QueryLevelStudy,
	"series":   types.QueryLevelSeries,
	"instance": types.QueryLevelInstance,
}

// DateTimePair is a date attribute and the time attribute completing it.
type DateTimePair struct {
	Date, Time dicom.Tag
}

// dateTimePairs are the date and time attributes combined by DATETIME matching
var dateTimePairs = []DateTimePair{
	{dicom.StudyDate, dicom.StudyTime},
	{dicom.SeriesDate, dicom.SeriesTime},
	{dicom.AcquisitionDate, dicom.AcquisitionTime},
	{dicom.ContentDate, dicom.ContentTime},
	{dicom.PerformedProcedureStepStartDate, dicom.PerformedProcedureStepStartTime},
}

// DateTimePairs returns the date and time attributes matched as one value
// when DATETIME matching is requested.
func DateTimePairs() []DateTimePair {
	return slices.Clone(dateTimePairs)
}
