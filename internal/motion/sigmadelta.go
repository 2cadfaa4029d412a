package motion

import (
	"image"
	"image/color"
	"sync"
)

// sigmaDelta is a sigma-delta background estimator. Each call to update
// nudges the per-pixel background mean toward the new frame, tracks a
// variance estimate, and marks pixels whose deviation exceeds it.
type sigmaDelta struct {
	mu sync.RWMutex

	// Variance amplification factor.
	n      int
	bounds image.Rectangle

	m *image.Gray // background mean estimate
	o *image.Gray // per-frame absolute deviation
	v *image.Gray // variance estimate
	e *image.Gray // motion mask, 0 or 255
}

func newSigmaDelta(n int, bounds image.Rectangle) *sigmaDelta {
	return &sigmaDelta{
		n:      n,
		bounds: bounds,
		m:      image.NewGray(bounds),
		o:      image.NewGray(bounds),
		v:      image.NewGray(bounds),
		e:      image.NewGray(bounds),
	}
}

func (s *sigmaDelta) update(in *image.Gray) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bounds

	// Mean estimator: step one level toward the input.
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			inx := in.GrayAt(x, y).Y
			mx := s.m.GrayAt(x, y).Y
			switch {
			case mx < inx:
				s.m.SetGray(x, y, color.Gray{Y: mx + 1})
			case mx > inx:
				s.m.SetGray(x, y, color.Gray{Y: mx - 1})
			}
		}
	}

	// Absolute deviation from the mean.
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d := int(s.m.GrayAt(x, y).Y) - int(in.GrayAt(x, y).Y)
			if d < 0 {
				d = -d
			}
			s.o.SetGray(x, y, color.Gray{Y: uint8(d)})
		}
	}

	// Variance estimator chases n times the deviation.
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			ox := int(s.o.GrayAt(x, y).Y)
			vx := int(s.v.GrayAt(x, y).Y)
			switch {
			case vx < s.n*ox && vx < 255:
				s.v.SetGray(x, y, color.Gray{Y: uint8(vx + 1)})
			case vx > s.n*ox && vx > 1:
				s.v.SetGray(x, y, color.Gray{Y: uint8(vx - 1)})
			}
		}
	}

	// Motion mask: deviation at or above the variance estimate.
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if s.o.GrayAt(x, y).Y < s.v.GrayAt(x, y).Y {
				s.e.SetGray(x, y, color.Gray{Y: 0})
			} else {
				s.e.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
}

// plane returns a copy of the named estimator plane, or nil.
func (s *sigmaDelta) plane(name string) *image.Gray {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var src *image.Gray
	switch name {
	case "m":
		src = s.m
	case "o":
		src = s.o
	case "v":
		src = s.v
	case "e":
		src = s.e
	default:
		return nil
	}
	out := image.NewGray(src.Bounds())
	copy(out.Pix, src.Pix)
	return out
}
