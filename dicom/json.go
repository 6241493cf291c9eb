package dicom

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/caio-sobreiro/dicomarc/errors"
)

// DICOM JSON Model, PS3.18 Annex F

type jsonAttribute struct {
	VR           string            `json:"vr"`
	Value        []json.RawMessage `json:"Value,omitempty"`
	InlineBinary string            `json:"InlineBinary,omitempty"`
	BulkDataURI  string            `json:"BulkDataURI,omitempty"`
}

type jsonPersonName struct {
	Alphabetic  string `json:"Alphabetic,omitempty"`
	Ideographic string `json:"Ideographic,omitempty"`
	Phonetic    string `json:"Phonetic,omitempty"`
}

// MarshalJSON encodes the dataset as a DICOM JSON object keyed by hex tag.
// Deferred bulk data is omitted; only its VR is written.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	obj, err := d.jsonModel()
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

func (d *Dataset) jsonModel() (map[string]jsonAttribute, error) {
	obj := make(map[string]jsonAttribute, len(d.Elements))
	for tag, e := range d.Elements {
		if tag.IsGroupLength() {
			continue
		}
		attr, err := e.jsonAttribute()
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", tag, err)
		}
		obj[tag.Hex()] = attr
	}
	return obj, nil
}

func (e *Element) jsonAttribute() (jsonAttribute, error) {
	attr := jsonAttribute{VR: e.VR}
	add := func(v interface{}) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		attr.Value = append(attr.Value, raw)
		return nil
	}

	switch v := e.Value.(type) {
	case nil:
	case []*Dataset:
		for _, item := range v {
			model, err := item.jsonModel()
			if err != nil {
				return attr, err
			}
			if err := add(model); err != nil {
				return attr, err
			}
		}
	case []byte:
		attr.InlineBinary = base64.StdEncoding.EncodeToString(v)
	case *BulkData, *Fragments:
	case []string:
		for _, s := range v {
			if err := add(jsonStringValue(e.VR, s)); err != nil {
				return attr, err
			}
		}
	case []int64:
		for _, n := range v {
			if err := add(n); err != nil {
				return attr, err
			}
		}
	case []float64:
		for _, f := range v {
			if err := add(f); err != nil {
				return attr, err
			}
		}
	case []Tag:
		for _, t := range v {
			if err := add(t.Hex()); err != nil {
				return attr, err
			}
		}
	default:
		return attr, fmt.Errorf("%w: unsupported value type %T", errors.ErrInvalidValue, v)
	}
	return attr, nil
}

func jsonStringValue(vr, s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	switch vr {
	case VR_PN:
		groups := strings.SplitN(s, "=", 3)
		pn := jsonPersonName{Alphabetic: groups[0]}
		if len(groups) > 1 {
			pn.Ideographic = groups[1]
		}
		if len(groups) > 2 {
			pn.Phonetic = groups[2]
		}
		return pn
	case VR_IS:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case VR_DS:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// UnmarshalJSON decodes a DICOM JSON object.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	var obj map[string]jsonAttribute
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if d.Elements == nil {
		d.Elements = make(map[Tag]*Element, len(obj))
	}
	for key, attr := range obj {
		tag, ok := parseHexTag(key)
		if !ok {
			return fmt.Errorf("%w: JSON key %q", errors.ErrInvalidTagPath, key)
		}
		value, err := attr.decode()
		if err != nil {
			return fmt.Errorf("element %s: %w", tag, err)
		}
		d.AddElement(tag, attr.VR, value)
	}
	return nil
}

func (a jsonAttribute) decode() (interface{}, error) {
	switch kind := kindOf(a.VR); {
	case kind == kindSequence:
		items := make([]*Dataset, 0, len(a.Value))
		for _, raw := range a.Value {
			item := NewDataset()
			if err := item.UnmarshalJSON(raw); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case kind == kindBinary:
		if a.InlineBinary == "" {
			return nil, nil
		}
		return base64.StdEncoding.DecodeString(a.InlineBinary)
	case len(a.Value) == 0:
		return nil, nil
	case kind == kindInt:
		values := make([]int64, len(a.Value))
		for i, raw := range a.Value {
			if err := json.Unmarshal(raw, &values[i]); err != nil {
				return nil, err
			}
		}
		return values, nil
	case kind == kindFloat:
		values := make([]float64, len(a.Value))
		for i, raw := range a.Value {
			if err := json.Unmarshal(raw, &values[i]); err != nil {
				return nil, err
			}
		}
		return values, nil
	case kind == kindTag:
		values := make([]Tag, len(a.Value))
		for i, raw := range a.Value {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, err
			}
			t, ok := parseHexTag(s)
			if !ok {
				return nil, fmt.Errorf("%w: %q is not a tag", errors.ErrInvalidValue, s)
			}
			values[i] = t
		}
		return values, nil
	}

	values := make([]string, len(a.Value))
	for i, raw := range a.Value {
		s, err := decodeJSONString(a.VR, raw)
		if err != nil {
			return nil, err
		}
		values[i] = s
	}
	return values, nil
}

func decodeJSONString(vr string, raw json.RawMessage) (string, error) {
	if string(raw) == "null" {
		return "", nil
	}
	if vr == VR_PN {
		var pn jsonPersonName
		if err := json.Unmarshal(raw, &pn); err != nil {
			return "", err
		}
		s := pn.Alphabetic
		if pn.Ideographic != "" || pn.Phonetic != "" {
			s += "=" + pn.Ideographic
		}
		if pn.Phonetic != "" {
			s += "=" + pn.Phonetic
		}
		return s, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
