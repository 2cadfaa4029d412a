// Package jpegenc compresses images to fit a hard byte budget, trading
// quality and resolution. The budgets exist because the downstream
// consumer is a microcontroller with a few tens of KB to spare for a
// frame.
package jpegenc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// Quality ladder for the coarse search, best first.
var qualityLadder = []int{85, 75, 65, 55, 45, 35, 25}

// Resolution ladder tried once the quality ladder is exhausted.
var scaleLadder = []float64{0.8, 0.6, 0.4}

const (
	fallbackQuality = 25

	// Bisection bounds and probe budget for OptimalQuality.
	minQuality  = 10
	maxQuality  = 95
	bisectSteps = 7
)

// ErrNoFit reports that no probed quality produced output within budget.
var ErrNoFit = errors.New("jpegenc: no quality fits budget")

// Encoder produces compressed bytes for an image at a quality in
// [1,100]. Implementations must be monotonic: higher quality never
// yields smaller output. The stdlib JPEG encoder satisfies this.
type Encoder interface {
	Encode(img image.Image, quality int) ([]byte, error)
}

// JPEG is the stdlib image/jpeg Encoder.
type JPEG struct{}

func (JPEG) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Result carries compressed bytes plus the parameters that produced
// them, for logging and tests.
type Result struct {
	Data    []byte
	Quality int
	Scale   float64 // 1.0 = native resolution
}

// CompressForBudget walks the quality ladder at native resolution, then
// the scale ladder at the floor quality, and returns the first result
// within budget. If nothing fits it still returns bytes: a native
// encode at the floor quality, possibly over budget. Callers must not
// treat an over-budget Result as failure.
//
// Only a total inability to encode is an error.
func CompressForBudget(enc Encoder, img image.Image, budget int) (Result, error) {
	for _, q := range qualityLadder {
		data, err := enc.Encode(img, q)
		if err != nil {
			continue
		}
		if len(data) <= budget {
			return Result{Data: data, Quality: q, Scale: 1.0}, nil
		}
	}

	b := img.Bounds()
	for _, scale := range scaleLadder {
		w := int(float64(b.Dx()) * scale)
		h := int(float64(b.Dy()) * scale)
		small := imaging.Resize(img, w, h, imaging.Box)

		data, err := enc.Encode(small, fallbackQuality)
		if err != nil {
			continue
		}
		if len(data) <= budget {
			return Result{Data: data, Quality: fallbackQuality, Scale: scale}, nil
		}
	}

	// Best effort: native resolution at the floor quality.
	data, err := enc.Encode(img, fallbackQuality)
	if err != nil {
		return Result{}, fmt.Errorf("jpegenc: best-effort encode: %w", err)
	}
	return Result{Data: data, Quality: fallbackQuality, Scale: 1.0}, nil
}

// OptimalQuality bisects quality in [10,95] to find the highest one
// whose output fits budget. The search runs exactly 7 probes; the probe
// count, not convergence, is the stopping condition. An encode failure
// at a probe is treated as "too big". Returns ErrNoFit if no probed
// quality ever fit.
func OptimalQuality(enc Encoder, img image.Image, budget int) (Result, error) {
	low, high := minQuality, maxQuality
	var best Result
	found := false

	for i := 0; i < bisectSteps; i++ {
		mid := (low + high) / 2
		data, err := enc.Encode(img, mid)
		if err != nil {
			high = mid - 1
			continue
		}
		if len(data) <= budget {
			best = Result{Data: data, Quality: mid, Scale: 1.0}
			found = true
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	if !found {
		return Result{}, ErrNoFit
	}
	return best, nil
}
