package dicom

// Implementation identification written into file meta information
const (
	DefaultImplementationClassUID    = "2.25.167425129416470236411839413284371062717"
	DefaultImplementationVersionName = "DICOMARC_1"
)

// NewFileMeta builds the file meta information group for an instance
// encoded in transferSyntaxUID.
//
// DICOM Part 10 files contain:
//   - 128 byte preamble
//   - 4 byte "DICM" prefix
//   - File Meta Information elements (group 0x0002)
//   - Dataset (the actual DICOM data)
//
// The group length (0002,0000) is computed by WriteFile.
func NewFileMeta(sopClassUID, sopInstanceUID, transferSyntaxUID string) *Dataset {
	meta := NewDataset()
	meta.AddElement(FileMetaInformationVersion, VR_OB, []byte{0x00, 0x01})
	meta.AddElement(MediaStorageSOPClassUID, VR_UI, []string{sopClassUID})
	meta.AddElement(MediaStorageSOPInstanceUID, VR_UI, []string{sopInstanceUID})
	meta.AddElement(TransferSyntaxUID, VR_UI, []string{transferSyntaxUID})
	meta.AddElement(ImplementationClassUID, VR_UI, []string{DefaultImplementationClassUID})
	meta.AddElement(ImplementationVersionName, VR_SH, []string{DefaultImplementationVersionName})
	return meta
}

// FileMetaFor derives file meta information for ds, taking the SOP class and
// instance from the dataset.
func FileMetaFor(ds *Dataset, transferSyntaxUID string) *Dataset {
	return NewFileMeta(ds.GetString(SOPClassUID), ds.GetString(SOPInstanceUID), transferSyntaxUID)
}

// HasPart10Header checks if the data starts with a DICOM Part 10 header.
//
// Returns true if the data contains the 128-byte preamble followed by "DICM".
func HasPart10Header(data []byte) bool {
	if len(data) < 132 {
		return false
	}
	return string(data[128:132]) == "DICM"
}

