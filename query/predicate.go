package query

import (
	"slices"
	"strings"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/fuzzy"
	"github.com/caio-sobreiro/dicomarc/types"
	"github.com/caio-sobreiro/dicomarc/wildcard"
)

// Record is one stored entity under evaluation, carrying its own attributes
// merged with those of its ancestors.
type Record struct {
	Attrs *dicom.Dataset
	// Merged is set when the owning patient has been merged into another.
	Merged bool
	// AccessControlID scopes the owning study; empty means unrestricted.
	AccessControlID string
}

// Predicate is a node of a query plan. Stores either evaluate it directly
// through Match or translate it into their own query language.
type Predicate interface {
	Match(r *Record) bool
}

// Field names an attribute together with the level it is stored at.
type Field struct {
	Level types.QueryLevel
	Tag   dicom.Tag
}

func (f Field) values(r *Record) []string {
	return r.Attrs.GetStrings(f.Tag)
}

// And matches when every operand matches.
type And []Predicate

func (a And) Match(r *Record) bool {
	for _, p := range a {
		if !p.Match(r) {
			return false
		}
	}
	return true
}

// Or matches when any operand matches.
type Or []Predicate

func (o Or) Match(r *Record) bool {
	for _, p := range o {
		if p.Match(r) {
			return true
		}
	}
	return false
}

// Equal matches when any value of the attribute equals any of Values.
type Equal struct {
	Field
	Values []string
	// Fold compares ignoring case.
	Fold bool
}

func (e *Equal) Match(r *Record) bool {
	for _, v := range e.values(r) {
		for _, want := range e.Values {
			if v == want || (e.Fold && strings.EqualFold(v, want)) {
				return true
			}
		}
	}
	return false
}

// Wildcard matches when any value of the attribute matches the pattern.
type Wildcard struct {
	Field
	Pattern string
	Fold    bool

	compiled *wildcard.Pattern
}

func newWildcard(f Field, pattern string, fold bool) (*Wildcard, error) {
	p, err := wildcard.Compile(pattern, fold)
	if err != nil {
		return nil, err
	}
	return &Wildcard{Field: f, Pattern: pattern, Fold: fold, compiled: p}, nil
}

func (w *Wildcard) Match(r *Record) bool {
	return slices.ContainsFunc(w.values(r), w.compiled.Match)
}

// Range matches when any value of a DA, TM or DT attribute lies within the
// inclusive bounds. Bounds and values compare in their normalized form; an
// empty bound is open.
type Range struct {
	Field
	VR    string
	Lower string
	Upper string
}

func (rg *Range) Match(r *Record) bool {
	for _, v := range rg.values(r) {
		if v == "" {
			continue
		}
		if inRange(Normalize(rg.VR, v), rg.Lower, rg.Upper) {
			return true
		}
	}
	return false
}

func inRange(v, lower, upper string) bool {
	return (lower == "" || v >= lower) && (upper == "" || v <= upper)
}

// DateTimeRange matches a date attribute and its time attribute combined into
// one date time value.
type DateTimeRange struct {
	Date  Field
	Time  Field
	Lower string
	Upper string
}

func (d *DateTimeRange) Match(r *Record) bool {
	v := CombineDateTime(r.Attrs.GetString(d.Date.Tag), r.Attrs.GetString(d.Time.Tag))
	return v != "" && inRange(v, d.Lower, d.Upper)
}

// CombineDateTime joins a DA and a TM value into a normalized DT value. A
// missing time counts as midnight; a missing date yields "".
func CombineDateTime(date, tm string) string {
	if date == "" {
		return ""
	}
	if tm == "" {
		return Normalize(dicom.VR_DA, date) + timeLower
	}
	return Normalize(dicom.VR_DA, date) + Normalize(dicom.VR_TM, tm)
}

// Fuzzy matches person names phonetically. Keys are the phonetic keys of the
// query's plain tokens; Patterns its tokens holding wildcards.
type Fuzzy struct {
	Field
	Query    string
	Keys     []string
	Patterns []string

	encoder fuzzy.Encoder
}

func newFuzzy(f Field, query string, enc fuzzy.Encoder) *Fuzzy {
	fz := &Fuzzy{Field: f, Query: query, Keys: fuzzy.Keys(enc, query), encoder: enc}
	for _, tok := range fuzzy.Tokens(query) {
		if wildcard.Has(tok) {
			fz.Patterns = append(fz.Patterns, tok)
		}
	}
	return fz
}

func (fz *Fuzzy) Match(r *Record) bool {
	return slices.ContainsFunc(fz.values(r), func(v string) bool {
		return fuzzy.Match(fz.encoder, fz.Query, v)
	})
}

// Empty matches records where the attribute is absent or has no value.
type Empty struct {
	Field
}

func (e *Empty) Match(r *Record) bool {
	el, ok := r.Attrs.GetElement(e.Tag)
	return !ok || el.IsEmpty()
}

// Item matches when any item of a sequence attribute satisfies Pred.
type Item struct {
	Field
	Pred Predicate
}

func (it *Item) Match(r *Record) bool {
	for _, item := range r.Attrs.Items(it.Tag) {
		if it.Pred.Match(&Record{Attrs: item}) {
			return true
		}
	}
	return false
}

// Identity matches records of a patient known by any of IDs.
type Identity struct {
	IDs []types.IDWithIssuer
}

func (id *Identity) Match(r *Record) bool {
	pid := types.IDWithIssuer{
		ID:     r.Attrs.GetString(dicom.PatientID),
		Issuer: r.Attrs.GetString(dicom.IssuerOfPatientID),
	}
	return slices.ContainsFunc(id.IDs, pid.Matches)
}

// NotMerged excludes records of patients merged into another patient.
type NotMerged struct{}

func (NotMerged) Match(r *Record) bool {
	return !r.Merged
}

// AccessControl restricts studies to the caller's access control ids.
// Studies without an id are visible to every caller.
type AccessControl struct {
	IDs []string
}

func (ac *AccessControl) Match(r *Record) bool {
	return r.AccessControlID == "" || slices.Contains(ac.IDs, r.AccessControlID)
}
