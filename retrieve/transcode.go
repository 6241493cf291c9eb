package retrieve

import (
	"fmt"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/types"
)

// frameCodec compresses and expands single frames of one encapsulated
// transfer syntax
type frameCodec struct {
	decode func(frame []byte, m pixelModule) ([]byte, error)
	encode func(frame []byte, m pixelModule, quality int) ([]byte, error)
	// decoded adjusts the pixel module attributes after expansion.
	decoded func(ds *dicom.Dataset, m pixelModule)
	// encoded adjusts them after compression.
	encoded func(ds *dicom.Dataset, m pixelModule)
}

var codecs = map[string]frameCodec{
	types.RLELossless: {
		decode: decodeRLE,
		encode: func(frame []byte, m pixelModule, _ int) ([]byte, error) {
			return encodeRLE(frame, m)
		},
		decoded: setInterleaved,
		encoded: setInterleaved,
	},
	types.JPEGBaseline8Bit: {
		decode: decodeJPEG,
		encode: encodeJPEG,
		decoded: func(ds *dicom.Dataset, m pixelModule) {
			if m.samples == 3 {
				ds.AddElement(dicom.PhotometricInterpretation, dicom.VR_CS, []string{"RGB"})
			}
			setInterleaved(ds, m)
		},
		encoded: func(ds *dicom.Dataset, m pixelModule) {
			if m.samples == 3 {
				ds.AddElement(dicom.PhotometricInterpretation, dicom.VR_CS, []string{"YBR_FULL_422"})
			}
			setInterleaved(ds, m)
		},
	},
}

func setInterleaved(ds *dicom.Dataset, m pixelModule) {
	if m.samples > 1 {
		ds.AddElement(dicom.PlanarConfiguration, dicom.VR_US, []int64{0})
	}
}

// Transcode converts the pixel data of ds, read in transfer syntax from, so
// that ds can be written in transfer syntax to. Native syntaxes differ only in
// encoding, which the writer handles. Compressed pixel data is expanded for
// RLE Lossless and JPEG Baseline sources, and native pixel data compressed for
// those targets; any other conversion fails with ErrUnsupportedTransfer.
func Transcode(ds *dicom.Dataset, from, to string, quality int) error {
	if from == to {
		return nil
	}
	src, dst := types.GetTransferSyntaxInfo(from), types.GetTransferSyntaxInfo(to)
	if !src.Known || !dst.Known {
		return fmt.Errorf("%w: %s to %s", errors.ErrUnsupportedTransfer, from, to)
	}
	el, ok := ds.GetElement(dicom.PixelData)
	if !ok || el.IsEmpty() {
		if src.Encapsulated || dst.Encapsulated {
			return fmt.Errorf("%w: %s to %s", errors.ErrUnsupportedTransfer, from, to)
		}
		return nil
	}

	switch {
	case types.IsNative(from) && types.IsNative(to):
		return nil
	case src.Encapsulated && !dst.Encapsulated:
		codec, ok := codecs[from]
		if !ok {
			return fmt.Errorf("%w: cannot decompress %s", errors.ErrUnsupportedTransfer, from)
		}
		return expand(ds, el, codec)
	case !src.Encapsulated && dst.Encapsulated:
		codec, ok := codecs[to]
		if !ok {
			return fmt.Errorf("%w: cannot compress to %s", errors.ErrUnsupportedTransfer, to)
		}
		return compress(ds, codec, quality, types.IsLossless(to))
	}
	return fmt.Errorf("%w: %s to %s", errors.ErrUnsupportedTransfer, from, to)
}

func expand(ds *dicom.Dataset, el *dicom.Element, codec frameCodec) error {
	frags, ok := el.Value.(*dicom.Fragments)
	if !ok {
		return fmt.Errorf("%w: compressed pixel data is not encapsulated", errors.ErrMalformedObject)
	}
	m, err := readPixelModule(ds)
	if err != nil {
		return err
	}
	frames, err := encapsulatedFrames(frags, m)
	if err != nil {
		return err
	}
	out := make([]byte, 0, m.frameSize()*m.frames)
	for i, f := range frames {
		native, err := codec.decode(f, m)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
		out = append(out, native...)
	}
	if len(out)%2 == 1 {
		out = append(out, 0)
	}
	ds.AddElement(dicom.PixelData, m.nativeVR(), out)
	codec.decoded(ds, m)
	return nil
}

func compress(ds *dicom.Dataset, codec frameCodec, quality int, lossless bool) error {
	m, err := readPixelModule(ds)
	if err != nil {
		return err
	}
	frames, err := nativeFrames(ds, m)
	if err != nil {
		return err
	}
	encoded := make([][]byte, len(frames))
	for i, f := range frames {
		encoded[i], err = codec.encode(m.interleave(f), m, quality)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
	}
	ds.AddElement(dicom.PixelData, dicom.VR_OB, dicom.NewFragments(offsetTable(encoded), encoded...))
	codec.encoded(ds, m)
	if !lossless {
		ds.AddElement(dicom.LossyImageCompression, dicom.VR_CS, []string{"01"})
	}
	return nil
}
