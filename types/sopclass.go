package types

// DICOM SOP Class UIDs as defined in DICOM Part 4, Annex B
// https://dicom.nema.org/medical/dicom/current/output/chtml/part04/sect_B.5.html

// Storage Service - Image Storage SOP Classes
const (
	ComputedRadiographyImageStorage        = "1.2.840.10008.5.1.4.1.1.1"
	DigitalXRayImageStorageForPresentation = "1.2.840.10008.5.1.4.1.1.1.1"
	CTImageStorage                         = "1.2.840.10008.5.1.4.1.1.2"
	EnhancedCTImageStorage                 = "1.2.840.10008.5.1.4.1.1.2.1"
	UltrasoundImageStorage                 = "1.2.840.10008.5.1.4.1.1.6.1"
	MRImageStorage                         = "1.2.840.10008.5.1.4.1.1.4"
	EnhancedMRImageStorage                 = "1.2.840.10008.5.1.4.1.1.4.1"
	SecondaryCaptureImageStorage           = "1.2.840.10008.5.1.4.1.1.7"
	BasicTextSRStorage                     = "1.2.840.10008.5.1.4.1.1.88.11"
	EncapsulatedPDFStorage                 = "1.2.840.10008.5.1.4.1.1.104.1"
)

// Query/Retrieve Service
const (
	StudyRootQueryRetrieveInformationModelFind   = "1.2.840.10008.5.1.4.1.2.2.1"
	StudyRootQueryRetrieveInformationModelMove   = "1.2.840.10008.5.1.4.1.2.2.2"
	StudyRootQueryRetrieveInformationModelGet    = "1.2.840.10008.5.1.4.1.2.2.3"
	PatientRootQueryRetrieveInformationModelFind = "1.2.840.10008.5.1.4.1.2.1.1"
)

// SOPClassInfo provides human-readable information about a SOP Class UID
type SOPClassInfo struct {
	UID      string
	Name     string
	Category string
}

// GetSOPClassInfo returns information about a SOP Class UID
func GetSOPClassInfo(uid string) *SOPClassInfo {
	info, ok := sopClassRegistry[uid]
	if !ok {
		return &SOPClassInfo{
			UID:      uid,
			Name:     "Unknown",
			Category: "Unknown",
		}
	}
	return &info
}

var sopClassRegistry = map[string]SOPClassInfo{
	ComputedRadiographyImageStorage:        {ComputedRadiographyImageStorage, "Computed Radiography Image Storage", "Storage"},
	DigitalXRayImageStorageForPresentation: {DigitalXRayImageStorageForPresentation, "Digital X-Ray Image Storage - For Presentation", "Storage"},
	CTImageStorage:                         {CTImageStorage, "CT Image Storage", "Storage"},
	EnhancedCTImageStorage:                 {EnhancedCTImageStorage, "Enhanced CT Image Storage", "Storage"},
	UltrasoundImageStorage:                 {UltrasoundImageStorage, "Ultrasound Image Storage", "Storage"},
	MRImageStorage:                         {MRImageStorage, "MR Image Storage", "Storage"},
	EnhancedMRImageStorage:                 {EnhancedMRImageStorage, "Enhanced MR Image Storage", "Storage"},
	SecondaryCaptureImageStorage:           {SecondaryCaptureImageStorage, "Secondary Capture Image Storage", "Storage"},
	BasicTextSRStorage:                     {BasicTextSRStorage, "Basic Text SR Storage", "Storage"},
	EncapsulatedPDFStorage:                 {EncapsulatedPDFStorage, "Encapsulated PDF Storage", "Storage"},

	StudyRootQueryRetrieveInformationModelFind:   {StudyRootQueryRetrieveInformationModelFind, "Study Root Query/Retrieve - FIND", "Query/Retrieve"},
	StudyRootQueryRetrieveInformationModelMove:   {StudyRootQueryRetrieveInformationModelMove, "Study Root Query/Retrieve - MOVE", "Query/Retrieve"},
	StudyRootQueryRetrieveInformationModelGet:    {StudyRootQueryRetrieveInformationModelGet, "Study Root Query/Retrieve - GET", "Query/Retrieve"},
	PatientRootQueryRetrieveInformationModelFind: {PatientRootQueryRetrieveInformationModelFind, "Patient Root Query/Retrieve - FIND", "Query/Retrieve"},
}
