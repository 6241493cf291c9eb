package retrieve

import (
	"encoding/binary"
	"fmt"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
)

// pixelModule holds the Image Pixel attributes a codec needs
type pixelModule struct {
	rows          int
	cols          int
	samples       int
	bitsAllocated int
	frames        int
	photometric   string
	planar        int
}

func readPixelModule(ds *dicom.Dataset) (pixelModule, error) {
	m := pixelModule{
		rows:          intOf(ds, dicom.Rows, 0),
		cols:          intOf(ds, dicom.Columns, 0),
		samples:       intOf(ds, dicom.SamplesPerPixel, 1),
		bitsAllocated: intOf(ds, dicom.BitsAllocated, 0),
		frames:        intOf(ds, dicom.NumberOfFrames, 1),
		photometric:   ds.GetString(dicom.PhotometricInterpretation),
		planar:        intOf(ds, dicom.PlanarConfiguration, 0),
	}
	if m.rows <= 0 || m.cols <= 0 || m.bitsAllocated <= 0 || m.bitsAllocated%8 != 0 || m.samples <= 0 || m.frames <= 0 {
		return m, fmt.Errorf("%w: image pixel module rows=%d columns=%d bits=%d samples=%d frames=%d",
			errors.ErrMalformedObject, m.rows, m.cols, m.bitsAllocated, m.samples, m.frames)
	}
	return m, nil
}

func intOf(ds *dicom.Dataset, tag dicom.Tag, def int) int {
	if n, ok := ds.GetInt(tag); ok {
		return int(n)
	}
	return def
}

// frameSize is the length in bytes of one native frame.
func (m pixelModule) frameSize() int {
	return m.rows * m.cols * m.samples * m.bitsAllocated / 8
}

// nativeVR is the VR native pixel data takes for the allocated bits.
func (m pixelModule) nativeVR() string {
	if m.bitsAllocated > 8 {
		return dicom.VR_OW
	}
	return dicom.VR_OB
}

// interleave converts a color-by-plane frame to color-by-pixel.
func (m pixelModule) interleave(frame []byte) []byte {
	if m.samples == 1 || m.planar == 0 {
		return frame
	}
	bps := m.bitsAllocated / 8
	pixels := m.rows * m.cols
	out := make([]byte, len(frame))
	for s := range m.samples {
		for i := range pixels {
			src := (s*pixels + i) * bps
			dst := (i*m.samples + s) * bps
			copy(out[dst:dst+bps], frame[src:src+bps])
		}
	}
	return out
}

// nativeFrames splits native pixel data into frames.
func nativeFrames(ds *dicom.Dataset, m pixelModule) ([][]byte, error) {
	data, err := ds.Bytes(dicom.PixelData)
	if err != nil {
		return nil, err
	}
	size := m.frameSize()
	if len(data) < size*m.frames {
		return nil, fmt.Errorf("%w: pixel data holds %d bytes, want %d", errors.ErrMalformedObject, len(data), size*m.frames)
	}
	frames := make([][]byte, m.frames)
	for i := range frames {
		frames[i] = data[i*size : (i+1)*size]
	}
	return frames, nil
}

// encapsulatedFrames reassembles compressed frames from fragments. With one
// fragment per frame the fragments are the frames; a single frame spans all
// fragments; otherwise the basic offset table delimits the frames.
func encapsulatedFrames(frags *dicom.Fragments, m pixelModule) ([][]byte, error) {
	items := make([][]byte, len(frags.Items))
	for i, item := range frags.Items {
		b, err := item.Bytes()
		if err != nil {
			return nil, err
		}
		items[i] = b
	}
	switch {
	case len(items) == m.frames:
		return items, nil
	case m.frames == 1:
		var frame []byte
		for _, b := range items {
			frame = append(frame, b...)
		}
		return [][]byte{frame}, nil
	}

	if len(frags.Offsets) != 4*m.frames {
		return nil, fmt.Errorf("%w: %d fragments for %d frames without an offset table",
			errors.ErrMalformedObject, len(items), m.frames)
	}
	starts := make([]uint32, m.frames)
	for i := range starts {
		starts[i] = binary.LittleEndian.Uint32(frags.Offsets[4*i:])
	}
	frames := make([][]byte, m.frames)
	frame := -1
	var pos uint32
	for _, b := range items {
		for frame+1 < m.frames && starts[frame+1] <= pos {
			frame++
		}
		if frame < 0 {
			return nil, fmt.Errorf("%w: offset table does not start at the first fragment", errors.ErrMalformedObject)
		}
		frames[frame] = append(frames[frame], b...)
		pos += 8 + uint32(len(b)+len(b)%2)
	}
	return frames, nil
}

// offsetTable builds a basic offset table for frames written one fragment
// each. A single frame gets an empty table.
func offsetTable(frames [][]byte) []byte {
	if len(frames) < 2 {
		return []byte{}
	}
	table := make([]byte, 0, 4*len(frames))
	var pos uint32
	for _, f := range frames {
		table = binary.LittleEndian.AppendUint32(table, pos)
		pos += 8 + uint32(len(f)+len(f)%2)
	}
	return table
}
