package types

// DICOM Transfer Syntax UIDs as defined in DICOM Part 5, Section 8 and Part 6, Annex A.4
// https://dicom.nema.org/medical/dicom/current/output/chtml/part05/chapter_8.html

// Native (uncompressed pixel data) transfer syntaxes
const (
	// ImplicitVRLittleEndian - Default Transfer Syntax for DICOM
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"

	// ExplicitVRLittleEndian - Explicit VR with little endian byte ordering
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

	// ExplicitVRBigEndian - Explicit VR with big endian byte ordering (retired)
	ExplicitVRBigEndian = "1.2.840.10008.1.2.2"

	// DeflatedExplicitVRLittleEndian - the whole dataset is deflate compressed
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"
)

// Encapsulated (compressed pixel data) transfer syntaxes
const (
	JPEGBaseline8Bit        = "1.2.840.10008.1.2.4.50"
	JPEGExtended12Bit       = "1.2.840.10008.1.2.4.51"
	JPEGLossless            = "1.2.840.10008.1.2.4.57"
	JPEGLosslessSV1         = "1.2.840.10008.1.2.4.70"
	JPEGLSLossless          = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLossless      = "1.2.840.10008.1.2.4.81"
	JPEG2000Lossless        = "1.2.840.10008.1.2.4.90"
	JPEG2000                = "1.2.840.10008.1.2.4.91"
	RLELossless             = "1.2.840.10008.1.2.5"
	MPEG2MainProfile        = "1.2.840.10008.1.2.4.100"
	MPEG4AVCH264HighProfile = "1.2.840.10008.1.2.4.102"
	HTJ2KLossless           = "1.2.840.10008.1.2.4.201"
	HTJ2K                   = "1.2.840.10008.1.2.4.203"
)

// TransferSyntaxInfo describes how a transfer syntax encodes a dataset
type TransferSyntaxInfo struct {
	UID          string
	Name         string
	IsCompressed bool
	IsLossless   bool
	IsRetired    bool
	// ExplicitVR is false only for Implicit VR Little Endian.
	ExplicitVR bool
	BigEndian  bool
	// Deflated datasets are compressed as a whole after the file meta information.
	Deflated bool
	// Encapsulated transfer syntaxes carry pixel data as fragments.
	Encapsulated bool
	Known        bool
}

// GetTransferSyntaxInfo returns information about a transfer syntax UID.
// Unknown UIDs are reported as encapsulated explicit little endian, which is
// how every unregistered compressed syntax is encoded.
func GetTransferSyntaxInfo(uid string) *TransferSyntaxInfo {
	info, ok := transferSyntaxRegistry[uid]
	if !ok {
		return &TransferSyntaxInfo{
			UID:          uid,
			Name:         "Unknown",
			IsCompressed: true,
			ExplicitVR:   true,
			Encapsulated: true,
		}
	}
	info.Known = true
	return &info
}

// IsLossless returns true if the transfer syntax is lossless
// Note: Uncompressed transfer syntaxes are considered lossless
func IsLossless(uid string) bool {
	return GetTransferSyntaxInfo(uid).IsLossless
}

// IsNative returns true if pixel data is stored unencapsulated
func IsNative(uid string) bool {
	info := GetTransferSyntaxInfo(uid)
	return info.Known && !info.Encapsulated
}

func native(uid, name string, explicit, bigEndian, deflated bool) TransferSyntaxInfo {
	return TransferSyntaxInfo{
		UID:          uid,
		Name:         name,
		IsCompressed: deflated,
		IsLossless:   true,
		IsRetired:    bigEndian,
		ExplicitVR:   explicit,
		BigEndian:    bigEndian,
		Deflated:     deflated,
	}
}

func encapsulated(uid, name string, lossless bool) TransferSyntaxInfo {
	return TransferSyntaxInfo{
		UID:          uid,
		Name:         name,
		IsCompressed: true,
		IsLossless:   lossless,
		ExplicitVR:   true,
		Encapsulated: true,
	}
}

// transferSyntaxRegistry maps transfer syntax UIDs to their information
var transferSyntaxRegistry = map[string]TransferSyntaxInfo{
	ImplicitVRLittleEndian:         native(ImplicitVRLittleEndian, "Implicit VR Little Endian", false, false, false),
	ExplicitVRLittleEndian:         native(ExplicitVRLittleEndian, "Explicit VR Little Endian", true, false, false),
	ExplicitVRBigEndian:            native(ExplicitVRBigEndian, "Explicit VR Big Endian", true, true, false),
	DeflatedExplicitVRLittleEndian: native(DeflatedExplicitVRLittleEndian, "Deflated Explicit VR Little Endian", true, false, true),

	JPEGBaseline8Bit:        encapsulated(JPEGBaseline8Bit, "JPEG Baseline (Process 1)", false),
	JPEGExtended12Bit:       encapsulated(JPEGExtended12Bit, "JPEG Extended (Process 2 & 4)", false),
	JPEGLossless:            encapsulated(JPEGLossless, "JPEG Lossless (Process 14)", true),
	JPEGLosslessSV1:         encapsulated(JPEGLosslessSV1, "JPEG Lossless, Non-Hierarchical, First-Order Prediction", true),
	JPEGLSLossless:          encapsulated(JPEGLSLossless, "JPEG-LS Lossless", true),
	JPEGLSNearLossless:      encapsulated(JPEGLSNearLossless, "JPEG-LS Near-Lossless", false),
	JPEG2000Lossless:        encapsulated(JPEG2000Lossless, "JPEG 2000 Lossless Only", true),
	JPEG2000:                encapsulated(JPEG2000, "JPEG 2000", false),
	RLELossless:             encapsulated(RLELossless, "RLE Lossless", true),
	MPEG2MainProfile:        encapsulated(MPEG2MainProfile, "MPEG2 Main Profile @ Main Level", false),
	MPEG4AVCH264HighProfile: encapsulated(MPEG4AVCH264HighProfile, "MPEG-4 AVC/H.264 High Profile", false),
	HTJ2KLossless:           encapsulated(HTJ2KLossless, "High-Throughput JPEG 2000 Lossless", true),
	HTJ2K:                   encapsulated(HTJ2K, "High-Throughput JPEG 2000", false),
}
