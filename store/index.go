// Package store holds what the match stores share: the index document a
// query plan is translated against, the split of an instance's attributes
// over the levels of the hierarchy, and the attributes the archive derives
// from stored entities.
package store

import (
	"strconv"
	"strings"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/fuzzy"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/types"
)

// Document is the searchable form of one entity's attributes. Keys are tag
// hex strings; values are the attribute's values in comparable form: integers
// for integer VRs, normalized strings for DA, TM and DT, trimmed strings
// otherwise. Sequences hold one Document per item.
//
// Person names additionally carry their phonetic keys under FuzzyKey and
// their normalized tokens under TokensKey. Date and time pairs stored at the
// same level carry their combined value under DateTimeKey.
type Document map[string]any

// Key returns the document key of tag.
func Key(tag dicom.Tag) string {
	return tag.Hex()
}

// FuzzyKey returns the document key of the phonetic keys of a PN attribute.
func FuzzyKey(tag dicom.Tag) string {
	return tag.Hex() + "_fuzzy"
}

// TokensKey returns the document key of the name tokens of a PN attribute.
func TokensKey(tag dicom.Tag) string {
	return tag.Hex() + "_tokens"
}

// DateTimeKey returns the document key of a combined date and time.
func DateTimeKey(date, tm dicom.Tag) string {
	return date.Hex() + "_" + tm.Hex()
}

// NewDocument builds the index document of ds. enc encodes person names;
// without one no phonetic keys are stored.
func NewDocument(ds *dicom.Dataset, enc fuzzy.Encoder) Document {
	doc := make(Document, ds.Len())
	for _, tag := range ds.Tags() {
		e := ds.Elements[tag]
		if e.VR == dicom.VR_SQ {
			var items []Document
			for _, item := range e.Items() {
				items = append(items, NewDocument(item, nil))
			}
			if len(items) > 0 {
				doc[Key(tag)] = items
			}
			continue
		}
		values := IndexValues(e.VR, e.Strings())
		if len(values) == 0 {
			continue
		}
		doc[Key(tag)] = values
		if e.VR == dicom.VR_PN {
			name := strings.Join(e.Strings(), " ")
			doc[TokensKey(tag)] = fuzzy.Tokens(name)
			if enc != nil {
				doc[FuzzyKey(tag)] = fuzzy.Keys(enc, name)
			}
		}
	}
	for _, pair := range query.DateTimePairs() {
		if v := query.CombineDateTime(ds.GetString(pair.Date), ds.GetString(pair.Time)); v != "" {
			doc[DateTimeKey(pair.Date, pair.Time)] = []any{v}
		}
	}
	return doc
}

// IndexValues converts attribute values of vr into comparable form, dropping
// empty values.
func IndexValues(vr string, values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, IndexValue(vr, v))
	}
	return out
}

// IndexValue converts one attribute value of vr into comparable form.
func IndexValue(vr, v string) any {
	switch vr {
	case dicom.VR_DA, dicom.VR_TM, dicom.VR_DT:
		return query.Normalize(vr, v)
	}
	if IsNumeric(vr) {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return v
}

// IsNumeric reports whether IndexValue stores values of vr as integers.
func IsNumeric(vr string) bool {
	return query.IsNumericVR(vr)
}

// SplitLevels distributes the attributes of an instance over the levels they
// are stored at. Attributes outside the level tables stay with the instance;
// binary values and file meta information are not indexed.
func SplitLevels(ds *dicom.Dataset) map[types.QueryLevel]*dicom.Dataset {
	out := make(map[types.QueryLevel]*dicom.Dataset, 4)
	for _, level := range types.QueryLevels() {
		out[level] = dicom.NewDataset()
	}
	for _, tag := range ds.Tags() {
		e := ds.Elements[tag]
		if tag.Group == 0x0002 || tag.IsGroupLength() {
			continue
		}
		switch e.Value.(type) {
		case []byte, *dicom.BulkData, *dicom.Fragments:
			continue
		}
		level, ok := query.AttributeLevel(tag)
		if !ok {
			level = types.QueryLevelInstance
		}
		out[level].AddElement(tag, e.VR, e.Value)
	}
	return out
}
