// Package bitmap converts camera frames into the packed 1-bit images
// the display device consumes: grayscale, resize to the panel
// dimensions, binary threshold, then 8 pixels per byte MSB-first.
package bitmap

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Threshold is the midpoint binarisation cut. Pixels strictly brighter
// become white (bit set).
const Threshold = 128

// Pack renders img as a width x height 1bpp bitmap, row-major,
// most-significant-bit first. The output is always width*height/8
// bytes. width must be a multiple of 8 so rows pack cleanly.
func Pack(img image.Image, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 || width%8 != 0 {
		return nil, fmt.Errorf("bitmap: bad dimensions %dx%d", width, height)
	}

	gray := imaging.Grayscale(img)
	resized := imaging.Resize(gray, width, height, imaging.Box)

	out := make([]byte, width*height/8)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// NRGBA after Grayscale has R=G=B, any channel is the luma.
			r, _, _, _ := resized.At(x, y).RGBA()
			if uint8(r>>8) > Threshold {
				out[(y*width+x)/8] |= 0x80 >> (x % 8)
			}
		}
	}
	return out, nil
}

// PackGray packs an already binary (0/255) grayscale image without
// scaling. Used by tests and by callers that threshold themselves.
func PackGray(img *image.Gray) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w%8 != 0 {
		return nil, fmt.Errorf("bitmap: width %d not a multiple of 8", w)
	}
	out := make([]byte, w*h/8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y > Threshold {
				out[(y*w+x)/8] |= 0x80 >> (x % 8)
			}
		}
	}
	return out, nil
}

// Unpack expands a packed bitmap back into a 0/255 grayscale image.
func Unpack(data []byte, width, height int) (*image.Gray, error) {
	if width%8 != 0 || len(data) != width*height/8 {
		return nil, fmt.Errorf("bitmap: %d bytes does not match %dx%d", len(data), width, height)
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if data[(y*width+x)/8]&(0x80>>(x%8)) != 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img, nil
}
