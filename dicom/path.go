package dicom

import (
	"fmt"
	"strings"

	"github.com/caio-sobreiro/dicomarc/errors"
)

// TagPath addresses an attribute, possibly nested in sequences. All but the
// last tag are sequences; the first item of each is used.
type TagPath []Tag

// ParseTagPath parses a dot- or slash-delimited path whose elements are
// eight hex digits or dictionary keywords, e.g. "0040A730.CodeMeaning".
func ParseTagPath(s string) (TagPath, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty path", errors.ErrInvalidTagPath)
	}
	parts := strings.Split(strings.ReplaceAll(s, "/", "."), ".")
	path := make(TagPath, 0, len(parts))
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: empty element in %q", errors.ErrInvalidTagPath, s)
		}
		tag, err := ParseTag(part)
		if err != nil {
			return nil, err
		}
		if i < len(parts)-1 && VROf(tag) != VR_SQ {
			return nil, fmt.Errorf("%w: %s in %q is not a sequence", errors.ErrInvalidTagPath, part, s)
		}
		path = append(path, tag)
	}
	return path, nil
}

// String renders the path in its round-trip-safe hex form.
func (p TagPath) String() string {
	parts := make([]string, len(p))
	for i, t := range p {
		parts[i] = t.Hex()
	}
	return strings.Join(parts, ".")
}

// Last returns the addressed attribute tag.
func (p TagPath) Last() Tag {
	return p[len(p)-1]
}

// Parents returns the enclosing sequence tags.
func (p TagPath) Parents() []Tag {
	return p[:len(p)-1]
}

// NestedItem walks the sequence tags from d, creating first items on the way.
func (d *Dataset) NestedItem(sequences []Tag) (*Dataset, error) {
	item := d
	for _, tag := range sequences {
		next, err := item.Item(tag)
		if err != nil {
			return nil, err
		}
		item = next
	}
	return item, nil
}

// Lookup returns the element addressed by path, searching the first item of
// each enclosing sequence.
func (d *Dataset) Lookup(path TagPath) (*Element, bool) {
	item := d
	for _, tag := range path.Parents() {
		items := item.Items(tag)
		if len(items) == 0 {
			return nil, false
		}
		item = items[0]
	}
	return item.GetElement(path.Last())
}
