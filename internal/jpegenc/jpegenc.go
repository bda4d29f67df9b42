// SPDX-License-Identifier: MIT

// Package jpegenc encodes raw BGR frames as JPEG for the MJPEG viewer.
package jpegenc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/edupresencia/presencia/internal/vision"
)

// DefaultQuality matches the typical webcam-preview tradeoff.
const DefaultQuality = 80

// Encode converts a bgr24 frame into a JPEG byte stream.
func Encode(f *vision.Frame, quality int) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("jpegenc: nil frame")
	}
	if len(f.BGR) != f.Size() {
		return nil, fmt.Errorf("jpegenc: frame buffer size mismatch (got %d, want %d)", len(f.BGR), f.Size())
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := y * f.Width * 3
		dst := y * img.Stride
		for x := 0; x < f.Width; x++ {
			b := f.BGR[src]
			g := f.BGR[src+1]
			r := f.BGR[src+2]
			img.Pix[dst] = r
			img.Pix[dst+1] = g
			img.Pix[dst+2] = b
			img.Pix[dst+3] = 0xff
			src += 3
			dst += 4
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpegenc: encode: %w", err)
	}
	return buf.Bytes(), nil
}
