package dicom

import (
	"fmt"

	dcmtag "github.com/suyashkumar/dicom/pkg/tag"

	"github.com/caio-sobreiro/dicomarc/errors"
)

// The attribute dictionary is the generated data dictionary shipped with
// github.com/suyashkumar/dicom. It is a static table built at init time and is
// only ever read.

// VROf returns the dictionary value representation of a tag. Tags with more
// than one permitted VR (US or SS, OB or OW) resolve to the first. Group
// lengths are UL, private creators LO, and anything not in the dictionary UN.
func VROf(t Tag) string {
	switch {
	case t == ItemTag || t == ItemDelimitationItemTag || t == SequenceDelimitationItemTag:
		return ""
	case t.IsGroupLength():
		return VR_UL
	case t.IsPrivateCreator():
		return VR_LO
	case t.IsPrivate():
		return VR_UN
	}
	info, err := dcmtag.Find(dcmtag.Tag{Group: t.Group, Element: t.Element})
	if err != nil || len(info.VRs) == 0 {
		return VR_UN
	}
	return info.VRs[0]
}

// KeywordOf returns the dictionary keyword of a tag, or "" if it has none.
func KeywordOf(t Tag) string {
	if t.IsPrivate() {
		return ""
	}
	info, err := dcmtag.Find(dcmtag.Tag{Group: t.Group, Element: t.Element})
	if err != nil {
		return ""
	}
	return info.Keyword
}

// TagForKeyword resolves a dictionary keyword such as "PatientName".
func TagForKeyword(keyword string) (Tag, error) {
	if keyword == "" {
		return Tag{}, errors.ErrUnknownKeyword
	}
	info, err := dcmtag.FindByName(keyword)
	if err != nil {
		return Tag{}, fmt.Errorf("%w: %s", errors.ErrUnknownKeyword, keyword)
	}
	return Tag{Group: info.Tag.Group, Element: info.Tag.Element}, nil
}
