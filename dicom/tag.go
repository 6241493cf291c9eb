package dicom

import (
	"fmt"
	"strconv"
)

// Tag represents a DICOM tag (group, element)
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the tag as a string in (GGGG,EEEE) format
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// Hex returns the tag as eight upper-case hex digits, the form used in
// DICOM JSON keys and tag paths. ParseTag(t.Hex()) == t for every tag.
func (t Tag) Hex() string {
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

// Uint32 returns the tag as a single 32-bit value (group in the high word).
func (t Tag) Uint32() uint32 {
	return uint32(t.Group)<<16 | uint32(t.Element)
}

// TagFromUint32 is the inverse of Tag.Uint32.
func TagFromUint32(v uint32) Tag {
	return Tag{Group: uint16(v >> 16), Element: uint16(v)}
}

// Compare orders tags by group, then element.
func (t Tag) Compare(o Tag) int {
	switch {
	case t.Uint32() < o.Uint32():
		return -1
	case t.Uint32() > o.Uint32():
		return 1
	}
	return 0
}

// IsPrivate reports whether the tag belongs to an odd (private) group
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// IsPrivateCreator reports whether the tag reserves a private block
func (t Tag) IsPrivateCreator() bool {
	return t.IsPrivate() && t.Element >= 0x0010 && t.Element <= 0x00FF
}

// IsGroupLength reports whether the tag is a group length element (gggg,0000)
func (t Tag) IsGroupLength() bool {
	return t.Element == 0x0000
}

// ParseTag resolves either eight hex digits or a dictionary keyword to a tag.
func ParseTag(s string) (Tag, error) {
	if t, ok := parseHexTag(s); ok {
		return t, nil
	}
	return TagForKeyword(s)
}

func parseHexTag(s string) (Tag, bool) {
	if len(s) != 8 {
		return Tag{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Tag{}, false
	}
	return TagFromUint32(uint32(v)), true
}

// Item and delimiter tags, encoded without a VR in every transfer syntax
var (
	ItemTag                     = Tag{0xFFFE, 0xE000}
	ItemDelimitationItemTag     = Tag{0xFFFE, 0xE00D}
	SequenceDelimitationItemTag = Tag{0xFFFE, 0xE0DD}
)

// File meta information
var (
	FileMetaInformationGroupLength = Tag{0x0002, 0x0000}
	FileMetaInformationVersion     = Tag{0x0002, 0x0001}
	MediaStorageSOPClassUID        = Tag{0x0002, 0x0002}
	MediaStorageSOPInstanceUID     = Tag{0x0002, 0x0003}
	TransferSyntaxUID              = Tag{0x0002, 0x0010}
	ImplementationClassUID         = Tag{0x0002, 0x0012}
	ImplementationVersionName      = Tag{0x0002, 0x0013}
	SourceApplicationEntityTitle   = Tag{0x0002, 0x0016}
)

// Attributes used by the query and retrieve services
var (
	SpecificCharacterSet            = Tag{0x0008, 0x0005}
	SOPClassUID                     = Tag{0x0008, 0x0016}
	SOPInstanceUID                  = Tag{0x0008, 0x0018}
	StudyDate                       = Tag{0x0008, 0x0020}
	SeriesDate                      = Tag{0x0008, 0x0021}
	AcquisitionDate                 = Tag{0x0008, 0x0022}
	ContentDate                     = Tag{0x0008, 0x0023}
	StudyTime                       = Tag{0x0008, 0x0030}
	SeriesTime                      = Tag{0x0008, 0x0031}
	AcquisitionTime                 = Tag{0x0008, 0x0032}
	ContentTime                     = Tag{0x0008, 0x0033}
	AccessionNumber                 = Tag{0x0008, 0x0050}
	QueryRetrieveLevel              = Tag{0x0008, 0x0052}
	RetrieveAETitle                 = Tag{0x0008, 0x0054}
	InstanceAvailability            = Tag{0x0008, 0x0056}
	Modality                        = Tag{0x0008, 0x0060}
	ModalitiesInStudy               = Tag{0x0008, 0x0061}
	SOPClassesInStudy               = Tag{0x0008, 0x0062}
	InstitutionName                 = Tag{0x0008, 0x0080}
	ReferringPhysicianName          = Tag{0x0008, 0x0090}
	CodeValue                       = Tag{0x0008, 0x0100}
	CodingSchemeDesignator          = Tag{0x0008, 0x0102}
	CodeMeaning                     = Tag{0x0008, 0x0104}
	TimezoneOffsetFromUTC           = Tag{0x0008, 0x0201}
	StationName                     = Tag{0x0008, 0x1010}
	StudyDescription                = Tag{0x0008, 0x1030}
	SeriesDescription               = Tag{0x0008, 0x103E}
	InstitutionalDepartmentName     = Tag{0x0008, 0x1040}
	PerformingPhysicianName         = Tag{0x0008, 0x1050}
	RetrieveURL                     = Tag{0x0008, 0x1190}
	PatientName                     = Tag{0x0010, 0x0010}
	PatientID                       = Tag{0x0010, 0x0020}
	IssuerOfPatientID               = Tag{0x0010, 0x0021}
	PatientBirthDate                = Tag{0x0010, 0x0030}
	PatientSex                      = Tag{0x0010, 0x0040}
	BodyPartExamined                = Tag{0x0018, 0x0015}
	StudyInstanceUID                = Tag{0x0020, 0x000D}
	SeriesInstanceUID               = Tag{0x0020, 0x000E}
	StudyID                         = Tag{0x0020, 0x0010}
	SeriesNumber                    = Tag{0x0020, 0x0011}
	InstanceNumber                  = Tag{0x0020, 0x0013}
	Laterality                      = Tag{0x0020, 0x0060}
	NumberOfPatientRelatedStudies   = Tag{0x0020, 0x1200}
	NumberOfPatientRelatedSeries    = Tag{0x0020, 0x1202}
	NumberOfPatientRelatedInstances = Tag{0x0020, 0x1204}
	NumberOfStudyRelatedSeries      = Tag{0x0020, 0x1206}
	NumberOfStudyRelatedInstances   = Tag{0x0020, 0x1208}
	NumberOfSeriesRelatedInstances  = Tag{0x0020, 0x1209}
	SamplesPerPixel                 = Tag{0x0028, 0x0002}
	PhotometricInterpretation       = Tag{0x0028, 0x0004}
	PlanarConfiguration             = Tag{0x0028, 0x0006}
	NumberOfFrames                  = Tag{0x0028, 0x0008}
	Rows                            = Tag{0x0028, 0x0010}
	Columns                         = Tag{0x0028, 0x0011}
	BitsAllocated                   = Tag{0x0028, 0x0100}
	BitsStored                      = Tag{0x0028, 0x0101}
	HighBit                         = Tag{0x0028, 0x0102}
	PixelRepresentation             = Tag{0x0028, 0x0103}
	LossyImageCompression           = Tag{0x0028, 0x2110}
	ScheduledProcedureStepID        = Tag{0x0040, 0x0009}
	PerformedProcedureStepStartDate = Tag{0x0040, 0x0244}
	PerformedProcedureStepStartTime = Tag{0x0040, 0x0245}
	RequestAttributesSequence       = Tag{0x0040, 0x0275}
	RequestedProcedureID            = Tag{0x0040, 0x1001}
	ConceptNameCodeSequence         = Tag{0x0040, 0xA043}
	CompletionFlag                  = Tag{0x0040, 0xA491}
	VerificationFlag                = Tag{0x0040, 0xA493}
	ContentSequence                 = Tag{0x0040, 0xA730}
	PixelData                       = Tag{0x7FE0, 0x0010}
)
