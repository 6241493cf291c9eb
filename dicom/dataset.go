package dicom

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/caio-sobreiro/dicomarc/errors"
)

// Element represents a DICOM data element.
//
// Value holds one of:
//   - []string for text VRs (AE, AS, CS, DA, DS, DT, IS, LO, LT, PN, SH, ST, TM, UC, UI, UR, UT)
//   - []int64 for US, SS, UL, SL, UV, SV
//   - []float64 for FL, FD
//   - []Tag for AT
//   - []byte, *BulkData or *Fragments for OB, OD, OF, OL, OV, OW, UN
//   - []*Dataset for SQ
//
// A nil Value is an element present without a value, which in a query key
// requests the attribute be returned without constraining the match.
type Element struct {
	Tag   Tag
	VR    string
	Value interface{}
}

// IsEmpty reports whether the element carries no value.
func (e *Element) IsEmpty() bool {
	switch v := e.Value.(type) {
	case nil:
		return true
	case []string:
		for _, s := range v {
			if s != "" {
				return false
			}
		}
		return true
	case []int64:
		return len(v) == 0
	case []float64:
		return len(v) == 0
	case []Tag:
		return len(v) == 0
	case []byte:
		return len(v) == 0
	case []*Dataset:
		return len(v) == 0
	case *BulkData:
		return v.Len() == 0
	case *Fragments:
		return len(v.Items) == 0
	}
	return false
}

// Strings returns the element values in their DICOM string form. Binary and
// sequence values have no string form and yield nil.
func (e *Element) Strings() []string {
	switch v := e.Value.(type) {
	case []string:
		return v
	case []int64:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.FormatInt(n, 10)
		}
		return out
	case []float64:
		out := make([]string, len(v))
		for i, f := range v {
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return out
	case []Tag:
		out := make([]string, len(v))
		for i, t := range v {
			out[i] = t.Hex()
		}
		return out
	}
	return nil
}

// Items returns the items of a sequence element.
func (e *Element) Items() []*Dataset {
	items, _ := e.Value.([]*Dataset)
	return items
}

// Dataset represents a collection of DICOM elements, iterated in ascending
// tag order.
type Dataset struct {
	Elements map[Tag]*Element
}

// NewDataset creates a new empty dataset
func NewDataset() *Dataset {
	return &Dataset{
		Elements: make(map[Tag]*Element),
	}
}

// AddElement adds an element to the dataset without validating value against
// VR. Parsers use it; callers building query keys use SetStrings and SetNull.
func (d *Dataset) AddElement(tag Tag, vr string, value interface{}) {
	d.Elements[tag] = &Element{
		Tag:   tag,
		VR:    vr,
		Value: value,
	}
}

// GetElement returns an element by tag
func (d *Dataset) GetElement(tag Tag) (*Element, bool) {
	element, exists := d.Elements[tag]
	return element, exists
}

// Contains reports whether the dataset has an element for tag.
func (d *Dataset) Contains(tag Tag) bool {
	_, ok := d.Elements[tag]
	return ok
}

// Len returns the number of top-level elements.
func (d *Dataset) Len() int {
	return len(d.Elements)
}

// Remove deletes the element for tag, if present.
func (d *Dataset) Remove(tag Tag) {
	delete(d.Elements, tag)
}

// Tags returns the tags of the dataset in ascending order.
func (d *Dataset) Tags() []Tag {
	tags := slices.Collect(maps.Keys(d.Elements))
	slices.SortFunc(tags, Tag.Compare)
	return tags
}

// GetString returns the first value for a tag in string form
func (d *Dataset) GetString(tag Tag) string {
	values := d.GetStrings(tag)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// GetStrings returns all values for a tag in string form
func (d *Dataset) GetStrings(tag Tag) []string {
	element, exists := d.Elements[tag]
	if !exists {
		return nil
	}
	values := element.Strings()
	result := make([]string, len(values))
	for i, v := range values {
		result[i] = strings.TrimSpace(v)
	}
	return result
}

// GetInt returns the first value of a numeric or integer string element.
func (d *Dataset) GetInt(tag Tag) (int64, bool) {
	element, exists := d.Elements[tag]
	if !exists {
		return 0, false
	}
	switch v := element.Value.(type) {
	case []int64:
		if len(v) > 0 {
			return v[0], true
		}
	case []string:
		if len(v) > 0 {
			n, err := strconv.ParseInt(strings.TrimSpace(v[0]), 10, 64)
			return n, err == nil
		}
	}
	return 0, false
}

// SetStrings sets the values of a tag from their string form. The value
// representation comes from the dictionary; numeric VRs are parsed, and
// sequences and binary VRs cannot be set from strings.
func (d *Dataset) SetStrings(tag Tag, values ...string) error {
	vr := VROf(tag)
	switch kindOf(vr) {
	case kindSequence, kindBinary:
		return fmt.Errorf("%w: %s has VR %s", errors.ErrInvalidValue, tag, vr)
	case kindInt:
		ints := make([]int64, len(values))
		for i, s := range values {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %s %q is not an integer", errors.ErrInvalidValue, tag, s)
			}
			ints[i] = n
		}
		d.AddElement(tag, vr, ints)
	case kindFloat:
		floats := make([]float64, len(values))
		for i, s := range values {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return fmt.Errorf("%w: %s %q is not a number", errors.ErrInvalidValue, tag, s)
			}
			floats[i] = f
		}
		d.AddElement(tag, vr, floats)
	case kindTag:
		tags := make([]Tag, len(values))
		for i, s := range values {
			t, ok := parseHexTag(s)
			if !ok {
				return fmt.Errorf("%w: %s %q is not a tag", errors.ErrInvalidValue, tag, s)
			}
			tags[i] = t
		}
		d.AddElement(tag, vr, tags)
	default:
		for _, s := range values {
			if strings.ContainsRune(s, '\\') {
				return fmt.Errorf("%w: %s value %q contains a value delimiter", errors.ErrInvalidValue, tag, s)
			}
		}
		d.AddElement(tag, vr, slices.Clone(values))
	}
	return nil
}

// SetInts sets the values of an integer element.
func (d *Dataset) SetInts(tag Tag, values ...int64) error {
	vr := VROf(tag)
	switch {
	case kindOf(vr) == kindInt:
		d.AddElement(tag, vr, slices.Clone(values))
	case vr == VR_IS:
		strs := make([]string, len(values))
		for i, n := range values {
			strs[i] = strconv.FormatInt(n, 10)
		}
		d.AddElement(tag, vr, strs)
	default:
		return fmt.Errorf("%w: %s has VR %s", errors.ErrInvalidValue, tag, vr)
	}
	return nil
}

// SetNull adds the tag without a value. In a query key this returns the
// attribute without constraining the match.
func (d *Dataset) SetNull(tag Tag) error {
	vr := VROf(tag)
	if vr == "" {
		return fmt.Errorf("%w: %s is not an attribute", errors.ErrInvalidValue, tag)
	}
	if e, ok := d.Elements[tag]; ok && e.VR == VR_SQ {
		return nil
	}
	d.AddElement(tag, vr, nil)
	return nil
}

// Item returns the first item of the sequence at tag, creating the sequence
// and the item when absent. Query keys never use more than one item.
func (d *Dataset) Item(tag Tag) (*Dataset, error) {
	if vr := VROf(tag); vr != VR_SQ {
		return nil, fmt.Errorf("%w: %s has VR %s, not SQ", errors.ErrInvalidTagPath, tag, vr)
	}
	if e, ok := d.Elements[tag]; ok {
		if items := e.Items(); len(items) > 0 {
			return items[0], nil
		}
	}
	item := NewDataset()
	d.AddElement(tag, VR_SQ, []*Dataset{item})
	return item, nil
}

// Items returns the items of the sequence at tag.
func (d *Dataset) Items(tag Tag) []*Dataset {
	if e, ok := d.Elements[tag]; ok {
		return e.Items()
	}
	return nil
}

// AddItem appends an item to the sequence at tag.
func (d *Dataset) AddItem(tag Tag, item *Dataset) {
	if e, ok := d.Elements[tag]; ok && e.VR == VR_SQ {
		e.Value = append(e.Items(), item)
		return
	}
	d.AddElement(tag, VR_SQ, []*Dataset{item})
}

// Merge copies every element of other into d; other wins on collision.
func (d *Dataset) Merge(other *Dataset) {
	if other == nil {
		return
	}
	for tag, e := range other.Elements {
		d.Elements[tag] = e.clone()
	}
}

// Clone returns a deep copy of the dataset. Bulk data references are shared.
func (d *Dataset) Clone() *Dataset {
	out := NewDataset()
	for tag, e := range d.Elements {
		out.Elements[tag] = e.clone()
	}
	return out
}

// Select returns a copy holding only the listed tags that d contains.
func (d *Dataset) Select(tags ...Tag) *Dataset {
	out := NewDataset()
	for _, tag := range tags {
		if e, ok := d.Elements[tag]; ok {
			out.Elements[tag] = e.clone()
		}
	}
	return out
}

func (e *Element) clone() *Element {
	c := &Element{Tag: e.Tag, VR: e.VR}
	switch v := e.Value.(type) {
	case []string:
		c.Value = slices.Clone(v)
	case []int64:
		c.Value = slices.Clone(v)
	case []float64:
		c.Value = slices.Clone(v)
	case []Tag:
		c.Value = slices.Clone(v)
	case []byte:
		c.Value = slices.Clone(v)
	case []*Dataset:
		items := make([]*Dataset, len(v))
		for i, item := range v {
			items[i] = item.Clone()
		}
		c.Value = items
	default:
		c.Value = v
	}
	return c
}
