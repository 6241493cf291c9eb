package retrieve

import (
	"encoding/binary"
	"fmt"

	"github.com/caio-sobreiro/dicomarc/errors"
)

// RLE Lossless, PS3.5 Annex G. A frame is a 64 byte header listing up to 15
// segment offsets, followed by one PackBits segment per byte plane: for each
// sample, its most significant byte first.

const rleHeaderSize = 64

// decodeRLE expands one frame into interleaved little endian samples.
func decodeRLE(frame []byte, m pixelModule) ([]byte, error) {
	if len(frame) < rleHeaderSize {
		return nil, fmt.Errorf("%w: RLE frame of %d bytes", errors.ErrMalformedObject, len(frame))
	}
	bytesPerSample := m.bitsAllocated / 8
	segments := int(binary.LittleEndian.Uint32(frame))
	if segments != m.samples*bytesPerSample {
		return nil, fmt.Errorf("%w: RLE frame has %d segments, want %d", errors.ErrMalformedObject, segments, m.samples*bytesPerSample)
	}
	offsets := make([]int, segments+1)
	for i := range segments {
		offsets[i] = int(binary.LittleEndian.Uint32(frame[4+4*i:]))
	}
	offsets[segments] = len(frame)

	pixels := m.rows * m.cols
	out := make([]byte, pixels*m.samples*bytesPerSample)
	plane := make([]byte, 0, pixels)
	for seg := range segments {
		start, end := offsets[seg], offsets[seg+1]
		if start < rleHeaderSize || start > end || end > len(frame) {
			return nil, fmt.Errorf("%w: RLE segment %d at %d..%d", errors.ErrMalformedObject, seg, start, end)
		}
		var err error
		plane, err = unpackBits(plane[:0], frame[start:end], pixels)
		if err != nil {
			return nil, fmt.Errorf("RLE segment %d: %w", seg, err)
		}
		sample, msb := seg/bytesPerSample, seg%bytesPerSample
		pos := sample*bytesPerSample + (bytesPerSample - 1 - msb)
		stride := m.samples * bytesPerSample
		for i, b := range plane {
			out[i*stride+pos] = b
		}
	}
	return out, nil
}

// unpackBits decodes PackBits data until n bytes are produced.
func unpackBits(dst, src []byte, n int) ([]byte, error) {
	for i := 0; len(dst) < n; {
		if i >= len(src) {
			return nil, fmt.Errorf("%w: segment ends after %d of %d bytes", errors.ErrMalformedObject, len(dst), n)
		}
		c := int(int8(src[i]))
		i++
		switch {
		case c >= 0:
			if i+c+1 > len(src) {
				return nil, fmt.Errorf("%w: literal run past segment end", errors.ErrMalformedObject)
			}
			dst = append(dst, src[i:i+c+1]...)
			i += c + 1
		case c > -128:
			if i >= len(src) {
				return nil, fmt.Errorf("%w: replicate run past segment end", errors.ErrMalformedObject)
			}
			for range 1 - c {
				dst = append(dst, src[i])
			}
			i++
		}
	}
	return dst[:n], nil
}

// encodeRLE compresses one frame of interleaved little endian samples.
func encodeRLE(frame []byte, m pixelModule) ([]byte, error) {
	bytesPerSample := m.bitsAllocated / 8
	segments := m.samples * bytesPerSample
	if segments > 15 {
		return nil, fmt.Errorf("%w: %d byte planes do not fit an RLE header", errors.ErrUnsupportedTransfer, segments)
	}
	out := make([]byte, rleHeaderSize, rleHeaderSize+len(frame))
	binary.LittleEndian.PutUint32(out, uint32(segments))

	pixels := m.rows * m.cols
	stride := m.samples * bytesPerSample
	plane := make([]byte, pixels)
	for seg := range segments {
		binary.LittleEndian.PutUint32(out[4+4*seg:], uint32(len(out)))
		sample, msb := seg/bytesPerSample, seg%bytesPerSample
		pos := sample*bytesPerSample + (bytesPerSample - 1 - msb)
		for i := range plane {
			plane[i] = frame[i*stride+pos]
		}
		for row := 0; row < pixels; row += m.cols {
			out = packBits(out, plane[row:row+m.cols])
		}
		if len(out)%2 == 1 {
			out = append(out, 0x80)
		}
	}
	return out, nil
}

// packBits appends the PackBits encoding of src to dst.
func packBits(dst, src []byte) []byte {
	for i := 0; i < len(src); {
		j := i + 1
		for j < len(src) && j-i < 128 && src[j] == src[i] {
			j++
		}
		if j-i > 1 {
			dst = append(dst, byte(int8(1-(j-i))), src[i])
			i = j
			continue
		}
		for j < len(src) && j-i < 128 && (j+1 >= len(src) || src[j] != src[j+1]) {
			j++
		}
		dst = append(dst, byte(j-i-1))
		dst = append(dst, src[i:j]...)
		i = j
	}
	return dst
}
