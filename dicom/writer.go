package dicom

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/types"
)

// WriteDataset encodes ds in the given transfer syntax. Group 0002 and group
// length elements are skipped; sequences and encapsulated pixel data are
// written with undefined length.
func WriteDataset(w io.Writer, ds *Dataset, transferSyntaxUID string) error {
	ts := types.GetTransferSyntaxInfo(transferSyntaxUID)
	if !ts.Known {
		return fmt.Errorf("%w: %s", errors.ErrUnsupportedTransfer, transferSyntaxUID)
	}
	if ts.Deflated {
		fw, err := flate.NewWriter(w, flate.DefaultCompression)
		if err != nil {
			return err
		}
		enc := newEncoder(fw, ts)
		if err := enc.writeDataset(ds); err != nil {
			return err
		}
		return fw.Close()
	}
	return newEncoder(w, ts).writeDataset(ds)
}

// EncodeDataset encodes ds in the given transfer syntax into memory.
func EncodeDataset(ds *Dataset, transferSyntaxUID string) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteDataset(&buf, ds, transferSyntaxUID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes a Part 10 object: preamble, "DICM", meta information with
// a computed group length, then ds in the transfer syntax named by meta.
// It returns the number of bytes written.
func WriteFile(w io.Writer, meta, ds *Dataset) (int64, error) {
	tsuid := meta.GetString(TransferSyntaxUID)
	if tsuid == "" {
		return 0, fmt.Errorf("%w: file meta information has no transfer syntax", errors.ErrMalformedObject)
	}

	var group bytes.Buffer
	metaEnc := newEncoder(&group, types.GetTransferSyntaxInfo(types.ExplicitVRLittleEndian))
	for _, tag := range meta.Tags() {
		if tag.Group != 0x0002 || tag.IsGroupLength() {
			continue
		}
		if err := metaEnc.writeElement(meta.Elements[tag]); err != nil {
			return 0, err
		}
	}

	cw := &countingWriter{w: w}
	bw := bufio.NewWriterSize(cw, 32*1024)
	var header [144]byte
	copy(header[128:], "DICM")
	binary.LittleEndian.PutUint16(header[132:], FileMetaInformationGroupLength.Group)
	binary.LittleEndian.PutUint16(header[134:], FileMetaInformationGroupLength.Element)
	copy(header[136:], VR_UL)
	binary.LittleEndian.PutUint16(header[138:], 4)
	binary.LittleEndian.PutUint32(header[140:], uint32(group.Len()))
	if _, err := bw.Write(header[:]); err != nil {
		return cw.n, err
	}
	if _, err := group.WriteTo(bw); err != nil {
		return cw.n, err
	}
	if err := WriteDataset(bw, ds, tsuid); err != nil {
		return cw.n, err
	}
	err := bw.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type encoder struct {
	w         io.Writer
	order     binary.AppendByteOrder
	explicit  bool
	bigEndian bool
	buf       [12]byte
}

func newEncoder(w io.Writer, ts *types.TransferSyntaxInfo) *encoder {
	return &encoder{
		w:         w,
		order:     appendByteOrder(ts.BigEndian),
		explicit:  ts.ExplicitVR,
		bigEndian: ts.BigEndian,
	}
}

func appendByteOrder(bigEndian bool) binary.AppendByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (e *encoder) writeDataset(ds *Dataset) error {
	for _, tag := range ds.Tags() {
		if tag.Group == 0x0002 || tag.IsGroupLength() {
			continue
		}
		if err := e.writeElement(ds.Elements[tag]); err != nil {
			return fmt.Errorf("element %s: %w", tag, err)
		}
	}
	return nil
}

func (e *encoder) writeHeader(tag Tag, vr string, length uint32) error {
	b := e.buf[:0]
	b = e.order.AppendUint16(b, tag.Group)
	b = e.order.AppendUint16(b, tag.Element)
	switch {
	case tag.Group == 0xFFFE || !e.explicit:
		b = e.order.AppendUint32(b, length)
	case isLongVR(vr):
		b = append(b, vr[0], vr[1], 0, 0)
		b = e.order.AppendUint32(b, length)
	default:
		if length > math.MaxUint16 {
			return fmt.Errorf("value of %d bytes too long for VR %s", length, vr)
		}
		b = append(b, vr[0], vr[1])
		b = e.order.AppendUint16(b, uint16(length))
	}
	_, err := e.w.Write(b)
	return err
}

func (e *encoder) writeElement(el *Element) error {
	vr := el.VR
	if vr == "" {
		vr = VROf(el.Tag)
	}
	switch v := el.Value.(type) {
	case []*Dataset:
		return e.writeSequence(el.Tag, v)
	case *Fragments:
		return e.writeFragments(el.Tag, vr, v)
	case *BulkData:
		return e.writeBulkData(el.Tag, vr, v)
	}

	raw, err := encodeValue(vr, el.Value, e.order)
	if err != nil {
		return err
	}
	if len(raw)%2 == 1 {
		raw = append(raw, paddingByte(vr))
	}
	if err := e.writeHeader(el.Tag, vr, uint32(len(raw))); err != nil {
		return err
	}
	_, err = e.w.Write(raw)
	return err
}

func (e *encoder) writeSequence(tag Tag, items []*Dataset) error {
	if err := e.writeHeader(tag, VR_SQ, undefinedLength); err != nil {
		return err
	}
	for _, item := range items {
		if err := e.writeHeader(ItemTag, "", undefinedLength); err != nil {
			return err
		}
		if err := e.writeDataset(item); err != nil {
			return err
		}
		if err := e.writeHeader(ItemDelimitationItemTag, "", 0); err != nil {
			return err
		}
	}
	return e.writeHeader(SequenceDelimitationItemTag, "", 0)
}

func (e *encoder) writeFragments(tag Tag, vr string, frags *Fragments) error {
	if vr != VR_OB && vr != VR_OW {
		vr = VR_OB
	}
	if err := e.writeHeader(tag, vr, undefinedLength); err != nil {
		return err
	}
	if err := e.writeHeader(ItemTag, "", uint32(len(frags.Offsets))); err != nil {
		return err
	}
	if _, err := e.w.Write(frags.Offsets); err != nil {
		return err
	}
	for _, item := range frags.Items {
		length := item.Len()
		if err := e.writeHeader(ItemTag, "", uint32(length+length%2)); err != nil {
			return err
		}
		if _, err := io.Copy(e.w, item.Reader()); err != nil {
			return err
		}
		if length%2 == 1 {
			if _, err := e.w.Write([]byte{0}); err != nil {
				return err
			}
		}
	}
	return e.writeHeader(SequenceDelimitationItemTag, "", 0)
}

// writeBulkData copies a deferred value from its source, swapping words only
// when source and target byte order differ.
func (e *encoder) writeBulkData(tag Tag, vr string, bulk *BulkData) error {
	length := bulk.Len()
	padded := length + length%2
	if err := e.writeHeader(tag, vr, uint32(padded)); err != nil {
		return err
	}
	sourceBigEndian := bulk.unit > 1
	unit := fixedSize(vr)
	if sourceBigEndian == e.bigEndian || unit < 2 {
		if _, err := io.Copy(e.w, bulk.Reader()); err != nil {
			return err
		}
	} else {
		raw, err := bulk.Bytes()
		if err != nil {
			return err
		}
		if e.bigEndian {
			swapBytes(raw, unit)
		}
		if _, err := e.w.Write(raw); err != nil {
			return err
		}
	}
	if padded != length {
		_, err := e.w.Write([]byte{paddingByte(vr)})
		return err
	}
	return nil
}

func encodeValue(vr string, value interface{}, order binary.AppendByteOrder) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return []byte(strings.Join(v, "\\")), nil
	case []int64:
		size := fixedSize(vr)
		if kindOf(vr) != kindInt {
			strs := (&Element{Value: v}).Strings()
			return []byte(strings.Join(strs, "\\")), nil
		}
		out := make([]byte, 0, size*len(v))
		for _, n := range v {
			switch size {
			case 2:
				out = order.AppendUint16(out, uint16(n))
			case 4:
				out = order.AppendUint32(out, uint32(n))
			default:
				out = order.AppendUint64(out, uint64(n))
			}
		}
		return out, nil
	case []float64:
		out := make([]byte, 0, fixedSize(vr)*len(v))
		for _, f := range v {
			if vr == VR_FL {
				out = order.AppendUint32(out, math.Float32bits(float32(f)))
			} else {
				out = order.AppendUint64(out, math.Float64bits(f))
			}
		}
		return out, nil
	case []Tag:
		out := make([]byte, 0, 4*len(v))
		for _, t := range v {
			out = order.AppendUint16(out, t.Group)
			out = order.AppendUint16(out, t.Element)
		}
		return out, nil
	case []byte:
		if order == binary.BigEndian {
			if unit := fixedSize(vr); unit > 1 {
				swapped := bytes.Clone(v)
				swapBytes(swapped, unit)
				return swapped, nil
			}
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: unsupported value type %T for VR %s", errors.ErrInvalidValue, value, vr)
}
