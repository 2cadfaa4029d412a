// Package motion finds moving regions in a frame sequence with a
// sigma-delta background estimator and connected-component labelling,
// and draws the resulting boxes onto frames as the capture overlay.
package motion

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/disintegration/gift"
	"github.com/harrydb/go/img/grayscale"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Detector tracks a scene and reports motion bounding boxes.
type Detector struct {
	sd *sigmaDelta

	// blur smooths the motion mask before labelling so single-pixel
	// noise does not become a region.
	blur *gift.GIFT

	// minRegion is the minimum connected-component size, in pixels,
	// for a region to count as motion.
	minRegion int

	mu   sync.Mutex
	last []image.Rectangle
}

// NewDetector builds a Detector for frames of the given bounds. window
// is the sigma-delta variance amplification (2-4 works for indoor
// scenes); minRegion filters out components smaller than that many
// pixels.
func NewDetector(bounds image.Rectangle, window, minRegion int) *Detector {
	if window <= 0 {
		window = 2
	}
	return &Detector{
		sd:        newSigmaDelta(window, bounds),
		blur:      gift.New(gift.GaussianBlur(5)),
		minRegion: minRegion,
	}
}

// Update feeds one frame to the estimator and returns the bounding
// boxes of the motion regions found in it.
func (d *Detector) Update(img image.Image) []image.Rectangle {
	d.sd.update(toGray(img))

	mask := d.sd.plane("e")
	blurred := image.NewGray(d.blur.Bounds(mask.Bounds()))
	d.blur.Draw(blurred, mask)

	cocos := grayscale.CoCos(blurred, 255, grayscale.NEIGHBOR8)

	var regions []image.Rectangle
	for _, coco := range cocos {
		if len(coco) <= d.minRegion {
			continue
		}
		regions = append(regions, boundingBox(coco))
	}

	d.mu.Lock()
	d.last = regions
	d.mu.Unlock()
	return regions
}

// Regions returns the regions found by the most recent Update.
func (d *Detector) Regions() []image.Rectangle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Annotate runs Update and draws each region's box onto a copy of the
// frame. It implements the capture overlay collaborator.
func (d *Detector) Annotate(img image.Image) image.Image {
	regions := d.Update(img)
	if len(regions) == 0 {
		return img
	}

	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	for _, r := range regions {
		drawRect(out, r, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 2)
	}
	return out
}

// Plane returns a copy of one estimator plane ("m", "o", "v" or "e")
// for the debug endpoints, or nil for an unknown name.
func (d *Detector) Plane(name string) *image.Gray {
	return d.sd.plane(name)
}

// DebugImage colours each detected region of the latest mask with a
// distinct warm palette colour, for eyeballing the labelling.
func (d *Detector) DebugImage(regions []image.Rectangle) *image.RGBA {
	mask := d.sd.plane("e")
	out := image.NewRGBA(mask.Bounds())
	draw.Draw(out, out.Bounds(), mask, mask.Bounds().Min, draw.Src)

	pal := colorful.FastWarmPalette(len(regions))
	for i, r := range regions {
		c := pal[i]
		drawRect(out, r, color.RGBA{
			R: uint8(c.R * 255),
			G: uint8(c.G * 255),
			B: uint8(c.B * 255),
			A: 255,
		}, 1)
	}
	return out
}

func boundingBox(points []image.Point) image.Rectangle {
	r := image.Rectangle{Min: points[0], Max: points[0].Add(image.Pt(1, 1))}
	for _, p := range points[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X >= r.Max.X {
			r.Max.X = p.X + 1
		}
		if p.Y >= r.Max.Y {
			r.Max.Y = p.Y + 1
		}
	}
	return r
}

func drawRect(dst draw.Image, r image.Rectangle, c color.Color, thick int) {
	for t := 0; t < thick; t++ {
		for x := r.Min.X - t; x < r.Max.X+t; x++ {
			dst.Set(x, r.Min.Y-t, c)
			dst.Set(x, r.Max.Y+t-1, c)
		}
		for y := r.Min.Y - t; y < r.Max.Y+t; y++ {
			dst.Set(r.Min.X-t, y, c)
			dst.Set(r.Max.X+t-1, y, c)
		}
	}
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}
