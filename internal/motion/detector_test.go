package motion

import (
	"image"
	"image/color"
	"testing"
)

func flatFrame(bounds image.Rectangle, level uint8) *image.Gray {
	img := image.NewGray(bounds)
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

func TestStaticSceneSettles(t *testing.T) {
	bounds := image.Rect(0, 0, 64, 48)
	d := NewDetector(bounds, 2, 20)

	// Feed the same mid-gray frame repeatedly; once the estimator has
	// converged there must be no motion regions.
	frame := flatFrame(bounds, 128)
	var regions []image.Rectangle
	for i := 0; i < 200; i++ {
		regions = d.Update(frame)
	}
	if len(regions) != 0 {
		t.Errorf("static scene produced %d regions", len(regions))
	}
}

func TestSigmaDeltaMeanTracksInput(t *testing.T) {
	bounds := image.Rect(0, 0, 8, 8)
	sd := newSigmaDelta(2, bounds)

	for i := 0; i < 100; i++ {
		sd.update(flatFrame(bounds, 100))
	}
	if got := sd.plane("m").GrayAt(4, 4).Y; got != 100 {
		t.Errorf("mean plane = %d after convergence, want 100", got)
	}
}

func TestPlaneNames(t *testing.T) {
	d := NewDetector(image.Rect(0, 0, 8, 8), 2, 1)
	for _, name := range []string{"m", "o", "v", "e"} {
		if d.Plane(name) == nil {
			t.Errorf("plane %q missing", name)
		}
	}
	if d.Plane("bogus") != nil {
		t.Error("unknown plane name returned an image")
	}
}

func TestBoundingBox(t *testing.T) {
	pts := []image.Point{{3, 4}, {10, 2}, {5, 9}}
	r := boundingBox(pts)
	want := image.Rect(3, 2, 11, 10)
	if r != want {
		t.Errorf("boundingBox = %v, want %v", r, want)
	}
}

func TestAnnotateLeavesQuietFramesAlone(t *testing.T) {
	bounds := image.Rect(0, 0, 32, 32)
	d := NewDetector(bounds, 2, 5)
	frame := flatFrame(bounds, 50)
	for i := 0; i < 100; i++ {
		d.Update(frame)
	}
	out := d.Annotate(frame)
	if out != image.Image(frame) {
		// A copy is only justified when something was drawn.
		if _, ok := out.(*image.RGBA); ok {
			t.Error("quiet frame was copied and annotated")
		}
	}
}

func TestDebugImagePaintsRegions(t *testing.T) {
	bounds := image.Rect(0, 0, 32, 32)
	d := NewDetector(bounds, 2, 1)
	d.Update(flatFrame(bounds, 128))

	regions := []image.Rectangle{image.Rect(2, 2, 10, 10), image.Rect(20, 20, 30, 30)}
	img := d.DebugImage(regions)
	if img.Bounds() != bounds {
		t.Fatalf("debug image bounds = %v", img.Bounds())
	}
	// Each region border gets a distinct non-gray colour.
	r, g, b, _ := img.At(2, 2).RGBA()
	if r == g && g == b {
		t.Error("region border not coloured")
	}
}

func TestRegionsReflectsLastUpdate(t *testing.T) {
	bounds := image.Rect(0, 0, 32, 32)
	d := NewDetector(bounds, 2, 5)
	frame := flatFrame(bounds, 50)
	for i := 0; i < 100; i++ {
		d.Update(frame)
	}
	if got := d.Regions(); len(got) != 0 {
		t.Errorf("quiet scene reported %d regions", len(got))
	}
}

func TestToGrayPreservesLuma(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.Gray{Y: 200})
	src.Set(1, 0, color.Gray{Y: 10})
	g := toGray(src)
	if g.GrayAt(0, 0).Y != 200 || g.GrayAt(1, 0).Y != 10 {
		t.Errorf("gray conversion drifted: %d, %d", g.GrayAt(0, 0).Y, g.GrayAt(1, 0).Y)
	}
}
