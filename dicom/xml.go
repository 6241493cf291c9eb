package dicom

import (
	"encoding/base64"
	"encoding/xml"
	"io"
	"strings"
)

// Native DICOM Model, PS3.19 Annex A

const nativeDicomModelNamespace = "http://dicom.nema.org/PS3.19/models/NativeDICOM"

type xmlNativeModel struct {
	XMLName    xml.Name       `xml:"NativeDicomModel"`
	Namespace  string         `xml:"xmlns,attr"`
	Attributes []xmlAttribute `xml:"DicomAttribute"`
}

type xmlAttribute struct {
	Tag          string          `xml:"tag,attr"`
	VR           string          `xml:"vr,attr"`
	Keyword      string          `xml:"keyword,attr,omitempty"`
	Values       []xmlValue      `xml:"Value"`
	PersonNames  []xmlPersonName `xml:"PersonName"`
	Items        []xmlItem       `xml:"Item"`
	InlineBinary string          `xml:"InlineBinary,omitempty"`
}

type xmlValue struct {
	Number int    `xml:"number,attr"`
	Text   string `xml:",chardata"`
}

type xmlPersonName struct {
	Number      int           `xml:"number,attr"`
	Alphabetic  *xmlNameGroup `xml:"Alphabetic,omitempty"`
	Ideographic *xmlNameGroup `xml:"Ideographic,omitempty"`
	Phonetic    *xmlNameGroup `xml:"Phonetic,omitempty"`
}

type xmlNameGroup struct {
	FamilyName string `xml:"FamilyName,omitempty"`
	GivenName  string `xml:"GivenName,omitempty"`
	MiddleName string `xml:"MiddleName,omitempty"`
	NamePrefix string `xml:"NamePrefix,omitempty"`
	NameSuffix string `xml:"NameSuffix,omitempty"`
}

type xmlItem struct {
	Number     int            `xml:"number,attr"`
	Attributes []xmlAttribute `xml:"DicomAttribute"`
}

// WriteXML writes ds as a Native DICOM Model document.
func WriteXML(w io.Writer, ds *Dataset) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	model := xmlNativeModel{
		Namespace:  nativeDicomModelNamespace,
		Attributes: xmlAttributes(ds),
	}
	if err := enc.Encode(model); err != nil {
		return err
	}
	return enc.Flush()
}

func xmlAttributes(ds *Dataset) []xmlAttribute {
	var attrs []xmlAttribute
	for _, tag := range ds.Tags() {
		if tag.IsGroupLength() {
			continue
		}
		e := ds.Elements[tag]
		attr := xmlAttribute{
			Tag:     tag.Hex(),
			VR:      e.VR,
			Keyword: KeywordOf(tag),
		}
		switch v := e.Value.(type) {
		case []*Dataset:
			for i, item := range v {
				attr.Items = append(attr.Items, xmlItem{Number: i + 1, Attributes: xmlAttributes(item)})
			}
		case []byte:
			attr.InlineBinary = base64.StdEncoding.EncodeToString(v)
		case *BulkData, *Fragments, nil:
		default:
			for i, s := range e.Strings() {
				if e.VR == VR_PN {
					attr.PersonNames = append(attr.PersonNames, xmlPersonNameOf(i+1, s))
					continue
				}
				attr.Values = append(attr.Values, xmlValue{Number: i + 1, Text: s})
			}
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

func xmlPersonNameOf(number int, s string) xmlPersonName {
	pn := xmlPersonName{Number: number}
	groups := strings.SplitN(s, "=", 3)
	for i, g := range groups {
		if g == "" {
			continue
		}
		group := xmlNameGroupOf(g)
		switch i {
		case 0:
			pn.Alphabetic = group
		case 1:
			pn.Ideographic = group
		case 2:
			pn.Phonetic = group
		}
	}
	return pn
}

func xmlNameGroupOf(s string) *xmlNameGroup {
	c := strings.SplitN(s, "^", 5)
	for len(c) < 5 {
		c = append(c, "")
	}
	return &xmlNameGroup{
		FamilyName: c[0],
		GivenName:  c[1],
		MiddleName: c[2],
		NamePrefix: c[3],
		NameSuffix: c[4],
	}
}
