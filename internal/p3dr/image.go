package p3dr

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// grayscaleFromJPEG decodes JPEG bytes into the raw 8-bit luminance
// plane the server expects.
func grayscaleFromJPEG(data []byte) (GrayscaleImage, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return GrayscaleImage{}, fmt.Errorf("decode jpeg: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if g, ok := img.(*image.Gray); ok && g.Stride == w && bounds.Min == (image.Point{}) {
		return GrayscaleImage{Width: w, Height: h, Raw: g.Pix}, nil
	}

	raw := make([]byte, w*h)
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray.Set(x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	copy(raw, gray.Pix)
	return GrayscaleImage{Width: w, Height: h, Raw: raw}, nil
}
