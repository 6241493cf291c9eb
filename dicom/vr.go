package dicom

// VR (Value Representation) constants
const (
	VR_AE = "AE" // Application Entity
	VR_AS = "AS" // Age String
	VR_AT = "AT" // Attribute Tag
	VR_CS = "CS" // Code String
	VR_DA = "DA" // Date
	VR_DS = "DS" // Decimal String
	VR_DT = "DT" // Date Time
	VR_FL = "FL" // Floating Point Single
	VR_FD = "FD" // Floating Point Double
	VR_IS = "IS" // Integer String
	VR_LO = "LO" // Long String
	VR_LT = "LT" // Long Text
	VR_OB = "OB" // Other Byte
	VR_OD = "OD" // Other Double
	VR_OF = "OF" // Other Float
	VR_OL = "OL" // Other Long
	VR_OV = "OV" // Other Very Long
	VR_OW = "OW" // Other Word
	VR_PN = "PN" // Person Name
	VR_SH = "SH" // Short String
	VR_SL = "SL" // Signed Long
	VR_SQ = "SQ" // Sequence of Items
	VR_SS = "SS" // Signed Short
	VR_ST = "ST" // Short Text
	VR_SV = "SV" // Signed Very Long
	VR_TM = "TM" // Time
	VR_UC = "UC" // Unlimited Characters
	VR_UI = "UI" // Unique Identifier
	VR_UL = "UL" // Unsigned Long
	VR_UN = "UN" // Unknown
	VR_UR = "UR" // Universal Resource
	VR_US = "US" // Unsigned Short
	VR_UT = "UT" // Unlimited Text
	VR_UV = "UV" // Unsigned Very Long
)

// vrKind groups value representations by the Go type that holds their values
type vrKind int

const (
	kindString vrKind = iota
	kindInt
	kindFloat
	kindTag
	kindBinary
	kindSequence
)

func kindOf(vr string) vrKind {
	switch vr {
	case VR_US, VR_SS, VR_UL, VR_SL, VR_UV, VR_SV:
		return kindInt
	case VR_FL, VR_FD:
		return kindFloat
	case VR_AT:
		return kindTag
	case VR_OB, VR_OD, VR_OF, VR_OL, VR_OV, VR_OW, VR_UN:
		return kindBinary
	case VR_SQ:
		return kindSequence
	default:
		return kindString
	}
}

// isLongVR reports whether explicit VR encoding uses a reserved field and a
// 32-bit length for the VR.
func isLongVR(vr string) bool {
	switch vr {
	case VR_OB, VR_OD, VR_OF, VR_OL, VR_OV, VR_OW, VR_SQ, VR_UC, VR_UR, VR_UT, VR_UN, VR_SV, VR_UV:
		return true
	}
	return false
}

// fixedSize returns the byte width of one value of a binary numeric VR, or 0
// for variable-length VRs.
func fixedSize(vr string) int {
	switch vr {
	case VR_US, VR_SS, VR_OW:
		return 2
	case VR_UL, VR_SL, VR_FL, VR_OF, VR_OL, VR_AT:
		return 4
	case VR_UV, VR_SV, VR_FD, VR_OD, VR_OV:
		return 8
	}
	return 0
}

// paddingByte returns the byte used to pad odd-length values to even length.
func paddingByte(vr string) byte {
	switch vr {
	case VR_UI, VR_OB, VR_UN:
		return 0x00
	}
	return ' '
}
