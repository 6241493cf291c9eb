package retrieve

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/caio-sobreiro/dicomarc/errors"
)

// decodeJPEG decodes one baseline frame to interleaved 8 bit samples. Color
// frames come out as RGB.
func decodeJPEG(frame []byte, m pixelModule) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedObject, err)
	}
	b := img.Bounds()
	if b.Dx() != m.cols || b.Dy() != m.rows {
		return nil, fmt.Errorf("%w: JPEG frame is %dx%d, image is %dx%d",
			errors.ErrMalformedObject, b.Dx(), b.Dy(), m.cols, m.rows)
	}
	if m.samples == 1 {
		if g, ok := img.(*image.Gray); ok && g.Stride == m.cols {
			return g.Pix, nil
		}
		out := make([]byte, 0, m.rows*m.cols)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out = append(out, color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			}
		}
		return out, nil
	}
	out := make([]byte, 0, m.rows*m.cols*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			out = append(out, c.R, c.G, c.B)
		}
	}
	return out, nil
}

// encodeJPEG compresses one interleaved 8 bit frame.
func encodeJPEG(frame []byte, m pixelModule, quality int) ([]byte, error) {
	if m.bitsAllocated != 8 {
		return nil, fmt.Errorf("%w: JPEG baseline needs 8 bit samples, have %d", errors.ErrUnsupportedTransfer, m.bitsAllocated)
	}
	rect := image.Rect(0, 0, m.cols, m.rows)
	var img image.Image
	switch {
	case m.samples == 1 && (m.photometric == "MONOCHROME1" || m.photometric == "MONOCHROME2"):
		img = &image.Gray{Pix: frame, Stride: m.cols, Rect: rect}
	case m.samples == 3 && m.photometric == "RGB":
		rgba := image.NewRGBA(rect)
		for i := range m.rows * m.cols {
			copy(rgba.Pix[4*i:], frame[3*i:3*i+3])
			rgba.Pix[4*i+3] = 0xFF
		}
		img = rgba
	default:
		return nil, fmt.Errorf("%w: JPEG baseline of %d sample %s images", errors.ErrUnsupportedTransfer, m.samples, m.photometric)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
