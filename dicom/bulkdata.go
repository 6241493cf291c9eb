package dicom

import (
	"bytes"
	"fmt"
	"io"

	"github.com/caio-sobreiro/dicomarc/errors"
)

// BulkData is a binary value left in place in its source object. Reading it
// is deferred until the value is written out or explicitly decoded.
type BulkData struct {
	r      io.ReaderAt
	offset int64
	length int64
	// unit is the byte width to swap when the source is big endian; 0 when the
	// source bytes are already little endian.
	unit int
}

// NewBulkData references length bytes at offset in r.
func NewBulkData(r io.ReaderAt, offset, length int64) *BulkData {
	return &BulkData{r: r, offset: offset, length: length}
}

// Len returns the value length in bytes.
func (b *BulkData) Len() int64 {
	return b.length
}

// Offset returns the position of the value in its source.
func (b *BulkData) Offset() int64 {
	return b.offset
}

// Reader returns the value as stored, without byte swapping.
func (b *BulkData) Reader() io.Reader {
	return io.NewSectionReader(b.r, b.offset, b.length)
}

// Bytes reads the value into memory in little endian byte order.
func (b *BulkData) Bytes() ([]byte, error) {
	buf := make([]byte, b.length)
	if n, err := b.r.ReadAt(buf, b.offset); n < len(buf) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read bulk data at %d: %w", b.offset, err)
	}
	if b.unit > 1 {
		swapBytes(buf, b.unit)
	}
	return buf, nil
}

// Fragments holds encapsulated pixel data: the basic offset table followed by
// one item per compressed fragment.
type Fragments struct {
	Offsets []byte
	Items   []*BulkData
}

// NewFragments builds encapsulated pixel data from in-memory fragments.
func NewFragments(offsets []byte, frames ...[]byte) *Fragments {
	f := &Fragments{Offsets: offsets}
	for _, frame := range frames {
		f.Items = append(f.Items, inMemory(frame))
	}
	return f
}

func inMemory(data []byte) *BulkData {
	return &BulkData{r: bytes.NewReader(data), length: int64(len(data))}
}

// swapBytes reverses each unit-byte word of buf in place.
func swapBytes(buf []byte, unit int) {
	for i := 0; i+unit <= len(buf); i += unit {
		for j, k := i, i+unit-1; j < k; j, k = j+1, k-1 {
			buf[j], buf[k] = buf[k], buf[j]
		}
	}
}

// Bytes returns a native binary value in little endian order, reading it from
// its source when deferred. Encapsulated values are not returned; use the
// element's *Fragments directly.
func (d *Dataset) Bytes(tag Tag) ([]byte, error) {
	e, ok := d.GetElement(tag)
	if !ok {
		return nil, nil
	}
	switch v := e.Value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case *BulkData:
		return v.Bytes()
	}
	return nil, fmt.Errorf("%w: %s holds %T, not native binary data", errors.ErrInvalidValue, tag, e.Value)
}
