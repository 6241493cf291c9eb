// Package interfaces contains the contracts of the archive's external
// collaborators
package interfaces

import (
	"context"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/fuzzy"
	"github.com/caio-sobreiro/dicomarc/types"
)

// CapabilityLookup resolves the configuration of an application entity. It
// returns a capability error when the AE is unknown or not installed.
type CapabilityLookup interface {
	Lookup(ctx context.Context, aeTitle string) (*types.AEConfig, error)
}

// IdentityResolver cross-references a patient identifier, returning every
// identity known to denote the same patient. The input identity is included
// when known; an empty result means the patient is unknown.
type IdentityResolver interface {
	Resolve(ctx context.Context, pid types.IDWithIssuer) ([]types.IDWithIssuer, error)
}

// AttributeFilters provides the per level projection configuration and the
// phonetic encoder used for fuzzy matching
type AttributeFilters interface {
	// AlwaysInclude returns the tags returned at level regardless of the
	// requested fields.
	AlwaysInclude(level types.QueryLevel) []dicom.Tag
	Fuzzy() fuzzy.Encoder
}
