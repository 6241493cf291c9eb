package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/types"
)

const undefinedLength = 0xFFFFFFFF

// DefaultBulkDataThreshold is the size above which binary values are left in
// the source object instead of being read into memory.
const DefaultBulkDataThreshold = 4096

// File is a parsed DICOM Part 10 object
type File struct {
	Meta              *Dataset
	Dataset           *Dataset
	TransferSyntaxUID string
}

// ReadOption configures ReadFile
type ReadOption func(*readConfig)

type readConfig struct {
	bulkDataThreshold int64
}

// WithBulkDataThreshold sets the size above which binary values are deferred.
// A negative threshold reads every value into memory.
func WithBulkDataThreshold(n int64) ReadOption {
	return func(c *readConfig) {
		c.bulkDataThreshold = n
	}
}

// ReadFile parses a Part 10 object: 128 byte preamble, "DICM", the file meta
// information group in explicit VR little endian, then the dataset in the
// transfer syntax the meta information declares. Pixel data and other large
// binary values are returned as *BulkData references into r, so r must stay
// open while the dataset is in use.
func ReadFile(r io.ReaderAt, size int64, opts ...ReadOption) (*File, error) {
	cfg := readConfig{bulkDataThreshold: DefaultBulkDataThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}

	prefix := make([]byte, 132)
	if n, _ := r.ReadAt(prefix, 0); n < len(prefix) || !HasPart10Header(prefix) {
		return nil, fmt.Errorf("%w: missing DICM prefix at offset 128", errors.ErrMalformedObject)
	}

	metaDec := &decoder{r: r, pos: 132, end: size, order: binary.LittleEndian, explicit: true, threshold: -1}
	meta, err := metaDec.readMeta()
	if err != nil {
		return nil, err
	}

	tsuid := meta.GetString(TransferSyntaxUID)
	if tsuid == "" {
		return nil, fmt.Errorf("%w: file meta information has no transfer syntax", errors.ErrMalformedObject)
	}
	slog.Debug("Found Transfer Syntax UID in File Meta Information",
		"transfer_syntax", tsuid,
		"dataset_start_offset", metaDec.pos)

	ts := types.GetTransferSyntaxInfo(tsuid)
	dec := &decoder{
		r:         r,
		pos:       metaDec.pos,
		end:       size,
		explicit:  ts.ExplicitVR,
		bigEndian: ts.BigEndian,
		threshold: cfg.bulkDataThreshold,
	}
	if ts.Deflated {
		inflated, err := io.ReadAll(flate.NewReader(io.NewSectionReader(r, metaDec.pos, size-metaDec.pos)))
		if err != nil {
			return nil, fmt.Errorf("%w: inflate dataset: %v", errors.ErrMalformedObject, err)
		}
		dec.r, dec.pos, dec.end = bytes.NewReader(inflated), 0, int64(len(inflated))
	}
	dec.order = byteOrder(ts.BigEndian)

	ds := NewDataset()
	if err := dec.readDataset(ds, dec.end); err != nil {
		return nil, err
	}
	return &File{Meta: meta, Dataset: ds, TransferSyntaxUID: tsuid}, nil
}

// ParseDataset parses a dataset without preamble or meta information. Every
// value is read into memory.
func ParseDataset(data []byte, transferSyntaxUID string) (*Dataset, error) {
	ts := types.GetTransferSyntaxInfo(transferSyntaxUID)
	if transferSyntaxUID == "" {
		ts = types.GetTransferSyntaxInfo(types.ExplicitVRLittleEndian)
	}
	if ts.Deflated {
		inflated, err := io.ReadAll(flate.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: inflate dataset: %v", errors.ErrMalformedObject, err)
		}
		data = inflated
	}
	dec := &decoder{
		r:         bytes.NewReader(data),
		end:       int64(len(data)),
		order:     byteOrder(ts.BigEndian),
		explicit:  ts.ExplicitVR,
		bigEndian: ts.BigEndian,
		threshold: -1,
	}
	ds := NewDataset()
	if err := dec.readDataset(ds, dec.end); err != nil {
		return nil, err
	}
	return ds, nil
}

func byteOrder(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

type decoder struct {
	r         io.ReaderAt
	pos       int64
	end       int64
	order     binary.ByteOrder
	explicit  bool
	bigEndian bool
	threshold int64
	buf       [8]byte
}

func (d *decoder) fill(p []byte) error {
	if d.pos+int64(len(p)) > d.end {
		return fmt.Errorf("%w: unexpected end of data at offset %d", errors.ErrMalformedObject, d.pos)
	}
	n, err := d.r.ReadAt(p, d.pos)
	if n < len(p) {
		return fmt.Errorf("%w: read at offset %d: %v", errors.ErrMalformedObject, d.pos, err)
	}
	d.pos += int64(n)
	return nil
}

func (d *decoder) readBytes(n uint32) ([]byte, error) {
	if d.pos+int64(n) > d.end {
		return nil, fmt.Errorf("%w: value of %d bytes exceeds data at offset %d", errors.ErrMalformedObject, n, d.pos)
	}
	p := make([]byte, n)
	if err := d.fill(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *decoder) readUint16() (uint16, error) {
	if err := d.fill(d.buf[:2]); err != nil {
		return 0, err
	}
	return d.order.Uint16(d.buf[:2]), nil
}

func (d *decoder) readUint32() (uint32, error) {
	if err := d.fill(d.buf[:4]); err != nil {
		return 0, err
	}
	return d.order.Uint32(d.buf[:4]), nil
}

func (d *decoder) readTag() (Tag, error) {
	group, err := d.readUint16()
	if err != nil {
		return Tag{}, err
	}
	element, err := d.readUint16()
	if err != nil {
		return Tag{}, err
	}
	return Tag{Group: group, Element: element}, nil
}

// readHeader reads a tag, VR and value length. Item and delimiter tags carry
// no VR; implicit VR streams take the VR from the dictionary.
func (d *decoder) readHeader() (Tag, string, uint32, error) {
	tag, err := d.readTag()
	if err != nil {
		return Tag{}, "", 0, err
	}
	if tag.Group == 0xFFFE {
		length, err := d.readUint32()
		return tag, "", length, err
	}
	if !d.explicit {
		length, err := d.readUint32()
		return tag, VROf(tag), length, err
	}
	if err := d.fill(d.buf[:2]); err != nil {
		return Tag{}, "", 0, err
	}
	vr := string(d.buf[:2])
	if isLongVR(vr) {
		if err := d.fill(d.buf[:2]); err != nil {
			return Tag{}, "", 0, err
		}
		length, err := d.readUint32()
		return tag, vr, length, err
	}
	length, err := d.readUint16()
	return tag, vr, uint32(length), err
}

func (d *decoder) readMeta() (*Dataset, error) {
	meta := NewDataset()
	for d.pos+4 <= d.end {
		if err := d.fill(d.buf[:2]); err != nil {
			return nil, err
		}
		d.pos -= 2
		if binary.LittleEndian.Uint16(d.buf[:2]) != 0x0002 {
			break
		}
		tag, vr, length, err := d.readHeader()
		if err != nil {
			return nil, err
		}
		value, err := d.readValue(meta, tag, vr, length)
		if err != nil {
			return nil, err
		}
		meta.AddElement(tag, vr, value)
	}
	return meta, nil
}

// readDataset reads elements into ds until end, or until an item delimiter
// when end is negative.
func (d *decoder) readDataset(ds *Dataset, end int64) error {
	for end < 0 || d.pos < end {
		tag, vr, length, err := d.readHeader()
		if err != nil {
			return err
		}
		if tag == ItemDelimitationItemTag {
			if end < 0 {
				return nil
			}
			continue
		}
		if vr == "" {
			return fmt.Errorf("%w: unexpected %s in dataset at offset %d", errors.ErrMalformedObject, tag, d.pos)
		}
		value, err := d.readValue(ds, tag, vr, length)
		if err != nil {
			return fmt.Errorf("element %s: %w", tag, err)
		}
		if tag == PixelData && !d.explicit {
			vr = pixelDataVR(ds)
		}
		if _, isSeq := value.([]*Dataset); isSeq {
			vr = VR_SQ
		}
		ds.AddElement(tag, vr, value)
	}
	return nil
}

func pixelDataVR(ds *Dataset) string {
	if bits, ok := ds.GetInt(BitsAllocated); ok && bits > 8 {
		return VR_OW
	}
	return VR_OB
}

func (d *decoder) readValue(ds *Dataset, tag Tag, vr string, length uint32) (interface{}, error) {
	switch {
	case vr == VR_SQ:
		return d.readSequence(length)
	case vr == VR_UN && length == undefinedLength:
		// UN with undefined length is a sequence encoded in implicit VR little endian
		explicit, order := d.explicit, d.order
		d.explicit, d.order = false, binary.LittleEndian
		items, err := d.readSequence(length)
		d.explicit, d.order = explicit, order
		return items, err
	case tag == PixelData && length == undefinedLength:
		return d.readFragments()
	case length == undefinedLength:
		return nil, fmt.Errorf("%w: undefined length for VR %s", errors.ErrMalformedObject, vr)
	case length == 0:
		return nil, nil
	}

	if tag == PixelData && !d.explicit {
		vr = pixelDataVR(ds)
	}
	if kindOf(vr) == kindBinary && d.threshold >= 0 && int64(length) > d.threshold {
		bulk := &BulkData{r: d.r, offset: d.pos, length: int64(length)}
		if d.bigEndian {
			bulk.unit = fixedSize(vr)
		}
		if d.pos+int64(length) > d.end {
			return nil, fmt.Errorf("%w: value of %d bytes exceeds data", errors.ErrMalformedObject, length)
		}
		d.pos += int64(length)
		return bulk, nil
	}

	raw, err := d.readBytes(length)
	if err != nil {
		return nil, err
	}
	return decodeValue(vr, raw, d.order)
}

func (d *decoder) readSequence(length uint32) ([]*Dataset, error) {
	var items []*Dataset
	end := int64(-1)
	if length != undefinedLength {
		end = d.pos + int64(length)
	}
	for end < 0 || d.pos < end {
		tag, _, itemLength, err := d.readHeader()
		if err != nil {
			return nil, err
		}
		switch tag {
		case SequenceDelimitationItemTag:
			return items, nil
		case ItemTag:
			item := NewDataset()
			itemEnd := int64(-1)
			if itemLength != undefinedLength {
				itemEnd = d.pos + int64(itemLength)
			}
			if err := d.readDataset(item, itemEnd); err != nil {
				return nil, err
			}
			items = append(items, item)
		default:
			return nil, fmt.Errorf("%w: unexpected %s in sequence", errors.ErrMalformedObject, tag)
		}
	}
	return items, nil
}

func (d *decoder) readFragments() (*Fragments, error) {
	frags := &Fragments{}
	first := true
	for {
		tag, _, length, err := d.readHeader()
		if err != nil {
			return nil, err
		}
		switch tag {
		case SequenceDelimitationItemTag:
			return frags, nil
		case ItemTag:
		default:
			return nil, fmt.Errorf("%w: unexpected %s in encapsulated pixel data", errors.ErrMalformedObject, tag)
		}
		if first {
			first = false
			if frags.Offsets, err = d.readBytes(length); err != nil {
				return nil, err
			}
			continue
		}
		if d.pos+int64(length) > d.end {
			return nil, fmt.Errorf("%w: fragment of %d bytes exceeds data", errors.ErrMalformedObject, length)
		}
		if d.threshold < 0 {
			data, err := d.readBytes(length)
			if err != nil {
				return nil, err
			}
			frags.Items = append(frags.Items, inMemory(data))
			continue
		}
		frags.Items = append(frags.Items, &BulkData{r: d.r, offset: d.pos, length: int64(length)})
		d.pos += int64(length)
	}
}

func decodeValue(vr string, raw []byte, order binary.ByteOrder) (interface{}, error) {
	switch kindOf(vr) {
	case kindInt:
		size := fixedSize(vr)
		if len(raw)%size != 0 {
			return nil, fmt.Errorf("%w: %d bytes for VR %s", errors.ErrMalformedObject, len(raw), vr)
		}
		values := make([]int64, 0, len(raw)/size)
		for i := 0; i < len(raw); i += size {
			switch vr {
			case VR_US:
				values = append(values, int64(order.Uint16(raw[i:])))
			case VR_SS:
				values = append(values, int64(int16(order.Uint16(raw[i:]))))
			case VR_UL:
				values = append(values, int64(order.Uint32(raw[i:])))
			case VR_SL:
				values = append(values, int64(int32(order.Uint32(raw[i:]))))
			default:
				values = append(values, int64(order.Uint64(raw[i:])))
			}
		}
		return values, nil
	case kindFloat:
		size := fixedSize(vr)
		if len(raw)%size != 0 {
			return nil, fmt.Errorf("%w: %d bytes for VR %s", errors.ErrMalformedObject, len(raw), vr)
		}
		values := make([]float64, 0, len(raw)/size)
		for i := 0; i < len(raw); i += size {
			if vr == VR_FL {
				values = append(values, float64(math.Float32frombits(order.Uint32(raw[i:]))))
			} else {
				values = append(values, math.Float64frombits(order.Uint64(raw[i:])))
			}
		}
		return values, nil
	case kindTag:
		values := make([]Tag, 0, len(raw)/4)
		for i := 0; i+4 <= len(raw); i += 4 {
			values = append(values, Tag{Group: order.Uint16(raw[i:]), Element: order.Uint16(raw[i+2:])})
		}
		return values, nil
	case kindBinary:
		if order == binary.BigEndian {
			if unit := fixedSize(vr); unit > 1 {
				swapBytes(raw, unit)
			}
		}
		return raw, nil
	}

	s := strings.TrimRight(string(raw), "\x00 ")
	switch vr {
	case VR_LT, VR_ST, VR_UT, VR_UR:
		return []string{s}, nil
	}
	return strings.Split(s, "\\"), nil
}
