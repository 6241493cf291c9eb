package config

import (
	"fmt"
	"slices"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/fuzzy"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/types"
)

// AttributeFilters serves the projection and fuzzy matching settings of the
// archive section
type AttributeFilters struct {
	always map[types.QueryLevel][]dicom.Tag
	enc    fuzzy.Encoder
}

// NewAttributeFilters resolves the configured keywords and encoder. Every
// level always returns its unique key.
func NewAttributeFilters(a Archive) (*AttributeFilters, error) {
	enc, err := fuzzy.ByName(a.FuzzyAlgorithm)
	if err != nil {
		return nil, err
	}
	f := &AttributeFilters{
		always: make(map[types.QueryLevel][]dicom.Tag),
		enc:    enc,
	}
	for _, level := range types.QueryLevels() {
		f.always[level] = []dicom.Tag{query.UniqueKey(level)}
	}
	for name, keywords := range a.AlwaysInclude {
		level, err := types.ParseQueryLevel(name)
		if err != nil {
			return nil, fmt.Errorf("always_include: %w", err)
		}
		for _, kw := range keywords {
			tag, err := dicom.ParseTag(kw)
			if err != nil {
				return nil, fmt.Errorf("always_include %s: %w", name, err)
			}
			if !slices.Contains(f.always[level], tag) {
				f.always[level] = append(f.always[level], tag)
			}
		}
	}
	return f, nil
}

func (f *AttributeFilters) AlwaysInclude(level types.QueryLevel) []dicom.Tag {
	return f.always[level]
}

func (f *AttributeFilters) Fuzzy() fuzzy.Encoder {
	return f.enc
}
