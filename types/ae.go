// Package types contains the DICOM identifiers and value types shared by the
// archive packages
package types

// Role of an application entity for a SOP class
type Role string

const (
	RoleSCU Role = "SCU"
	RoleSCP Role = "SCP"
)

// TransferCapability declares that an AE supports a SOP class in a role,
// together with the extended negotiation options it accepts.
type TransferCapability struct {
	SOPClassUID  string
	Role         Role
	QueryOptions QueryOptions
}

// AEConfig is the archive-side configuration of one application entity
type AEConfig struct {
	AETitle   string
	Installed bool

	TransferCapabilities []TransferCapability

	// MaxResults bounds the number of matches returned by one search; 0
	// means unbounded.
	MaxResults int

	DefaultIssuerOfPatientID string
	RetrieveAETitles         []string

	// TimezoneOffset is the archive offset from UTC in "+HHMM" form.
	TimezoneOffset string
}

// TransferCapabilityFor returns the capability for the SOP class in the
// given role, or nil if the AE does not declare one.
func (ae *AEConfig) TransferCapabilityFor(sopClassUID string, role Role) *TransferCapability {
	for i := range ae.TransferCapabilities {
		tc := &ae.TransferCapabilities[i]
		if tc.SOPClassUID == sopClassUID && tc.Role == role {
			return tc
		}
	}
	return nil
}
