// Package capture serialises access to the camera. The physical device
// is a single exclusively owned resource, so every
// capture+transform+encode cycle runs under one mutex, no matter how
// many HTTP handlers or device connections ask at once.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/picamd/picamd/internal/bitmap"
	"github.com/picamd/picamd/internal/camera"
	"github.com/picamd/picamd/internal/jpegenc"
)

var (
	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "picamd",
		Name:      "captures_total",
		Help:      "Completed capture cycles by kind.",
	}, []string{"kind"})

	captureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "picamd",
		Name:      "capture_errors_total",
		Help:      "Failed capture cycles by kind.",
	}, []string{"kind"})
)

// Overlay annotates a decoded frame before it is encoded, e.g. motion
// bounding boxes. It is an optional collaborator: resolved once at
// construction, never re-checked per call.
type Overlay interface {
	Annotate(img image.Image) image.Image
}

// Options configure a Service.
type Options struct {
	// Quality for plain JPEG re-encodes. Zero means jpeg.DefaultQuality.
	Quality int

	// Budget is the byte budget for CompressedJPEG.
	Budget int

	// BitmapWidth and BitmapHeight are the device panel dimensions.
	BitmapWidth  int
	BitmapHeight int

	// Overlay, when non-nil, is applied to every decoded frame.
	Overlay Overlay
}

// Service is the single gatekeeper in front of a camera.Source.
type Service struct {
	mu      sync.Mutex
	src     camera.Source
	enc     jpegenc.Encoder
	overlay Overlay
	opts    Options
	logger  *slog.Logger
}

// New builds a Service around src.
func New(src camera.Source, opts Options, logger *slog.Logger) *Service {
	if opts.Quality <= 0 {
		opts.Quality = jpeg.DefaultQuality
	}
	if opts.Budget <= 0 {
		opts.Budget = 10 * 1024
	}
	return &Service{
		src:     src,
		enc:     jpegenc.JPEG{},
		overlay: opts.Overlay,
		opts:    opts,
		logger:  logger,
	}
}

// JPEG captures one frame and returns it JPEG-encoded. Without an
// overlay the camera's own JPEG bytes pass straight through.
func (s *Service) JPEG(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overlay == nil {
		data, err := s.src.JPEG(ctx)
		return s.record("jpeg", data, err)
	}

	img, err := s.src.Image(ctx)
	if err != nil {
		return s.record("jpeg", nil, err)
	}
	data, err := s.encode(s.overlay.Annotate(img))
	return s.record("jpeg", data, err)
}

// GrayJPEG captures one frame, converts it to grayscale and returns it
// JPEG-encoded.
func (s *Service) GrayJPEG(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.src.Image(ctx)
	if err != nil {
		return s.record("gray", nil, err)
	}
	if s.overlay != nil {
		img = s.overlay.Annotate(img)
	}
	data, err := s.encode(imaging.Grayscale(img))
	return s.record("gray", data, err)
}

// CompressedJPEG captures one frame and compresses it to the configured
// byte budget via the coarse ladder search. The result may exceed the
// budget; that is best-effort, not failure.
func (s *Service) CompressedJPEG(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.src.Image(ctx)
	if err != nil {
		return s.record("compressed", nil, err)
	}
	if s.overlay != nil {
		img = s.overlay.Annotate(img)
	}
	res, err := jpegenc.CompressForBudget(s.enc, img, s.opts.Budget)
	if err != nil {
		return s.record("compressed", nil, err)
	}
	if len(res.Data) > s.opts.Budget {
		s.logger.Warn("compressed frame over budget",
			"bytes", len(res.Data), "budget", s.opts.Budget)
	} else {
		s.logger.Debug("compressed frame",
			"bytes", len(res.Data), "quality", res.Quality, "scale", res.Scale)
	}
	return s.record("compressed", res.Data, nil)
}

// Bitmap captures one frame and renders it as the packed 1bpp panel
// image for the device protocol.
func (s *Service) Bitmap(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.src.Image(ctx)
	if err != nil {
		return s.record("bitmap", nil, err)
	}
	if s.overlay != nil {
		img = s.overlay.Annotate(img)
	}
	data, err := bitmap.Pack(img, s.opts.BitmapWidth, s.opts.BitmapHeight)
	return s.record("bitmap", data, err)
}

func (s *Service) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.opts.Quality}); err != nil {
		return nil, fmt.Errorf("capture: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) record(kind string, data []byte, err error) ([]byte, error) {
	if err != nil {
		captureErrors.WithLabelValues(kind).Inc()
		s.logger.Error("capture failed", "kind", kind, "error", err)
		return nil, err
	}
	capturesTotal.WithLabelValues(kind).Inc()
	return data, nil
}
