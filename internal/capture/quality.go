package capture

import (
	"bytes"
	"fmt"
	"image"

	_ "image/jpeg"
	_ "image/png"
)

// brightnessStride subsamples pixels when measuring brightness; full-frame
// accuracy is unnecessary for a reject-too-dark heuristic.
const brightnessStride = 4

// Brightness returns the mean luma of an encoded image, normalized to 0..1.
func Brightness(encoded []byte) (float64, error) {
	img, _, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		return 0, fmt.Errorf("could not decode frame: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return 0, fmt.Errorf("frame has empty bounds")
	}

	var sum float64
	var n int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += brightnessStride {
		for x := bounds.Min.X; x < bounds.Max.X; x += brightnessStride {
			r, g, b, _ := img.At(x, y).RGBA()
			// Rec. 601 luma, channels are 16-bit.
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			sum += luma / 0xffff
			n++
		}
	}
	return sum / float64(n), nil
}
