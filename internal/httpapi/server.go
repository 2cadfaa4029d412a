// Package httpapi exposes the camera over HTTP: single-frame endpoints
// for constrained pollers, multipart and websocket streams for
// continuous viewers, plus status and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/picamd/picamd/internal/motion"
)

var framesServed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "picamd",
	Name:      "http_frames_served_total",
	Help:      "Frames written to HTTP clients by endpoint.",
}, []string{"endpoint"})

// Capture is the slice of the capture service the HTTP layer needs.
type Capture interface {
	JPEG(ctx context.Context) ([]byte, error)
	GrayJPEG(ctx context.Context) ([]byte, error)
	CompressedJPEG(ctx context.Context) ([]byte, error)
}

// Archiver receives a copy of served frames for persistence. Optional.
type Archiver interface {
	Submit(frame []byte) bool
}

// Options configure the HTTP server.
type Options struct {
	// StreamInterval paces multipart and websocket streams. The default
	// 100ms keeps slow panel clients from being overwhelmed.
	StreamInterval time.Duration

	// Motion, when non-nil, enables the estimator debug endpoints.
	Motion *motion.Detector

	// Archiver, when non-nil, gets a copy of every /frame response.
	Archiver Archiver
}

// Server serves the camera HTTP API.
type Server struct {
	cap    Capture
	opts   Options
	logger *slog.Logger
	start  time.Time
}

// New builds the HTTP server around a capture service.
func New(cap Capture, opts Options, logger *slog.Logger) *Server {
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 100 * time.Millisecond
	}
	return &Server{cap: cap, opts: opts, logger: logger, start: time.Now()}
}

// Router returns the chi router with every route mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.index)
	r.Get("/status", s.status)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/frame", s.frame("frame", s.captureAndArchive))
	r.Get("/frame_gray", s.frame("frame_gray", s.cap.GrayJPEG))
	r.Get("/frame_compressed", s.frame("frame_compressed", s.cap.CompressedJPEG))

	r.Get("/stream", s.stream("stream", s.cap.JPEG))
	r.Get("/stream_gray", s.stream("stream_gray", s.cap.GrayJPEG))
	r.Get("/stream_compressed", s.stream("stream_compressed", s.cap.CompressedJPEG))

	r.Get("/ws", s.websocket)

	if s.opts.Motion != nil {
		r.Get("/motion/debug", s.motionDebug)
		r.Get("/motion/{plane}", s.motionPlane)
	}

	return r
}

// ListenAndServe serves the router on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("http listening", "addr", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) captureAndArchive(ctx context.Context) ([]byte, error) {
	data, err := s.cap.JPEG(ctx)
	if err == nil && s.opts.Archiver != nil {
		if !s.opts.Archiver.Submit(data) {
			s.logger.Debug("archive queue full, frame not archived")
		}
	}
	return data, err
}

// frame serves one JPEG with the no-cache headers embedded device
// clients depend on.
func (s *Server) frame(name string, fn func(context.Context) ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fn(r.Context())
		if err != nil {
			s.logger.Error("frame capture failed", "endpoint", name, "error", err)
			http.Error(w, fmt.Sprintf("Server error: %v", err), http.StatusInternalServerError)
			return
		}
		if len(data) == 0 {
			http.Error(w, "Camera not available", http.StatusServiceUnavailable)
			return
		}

		h := w.Header()
		h.Set("Content-Type", "image/jpeg")
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		h.Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.Write(data)
		framesServed.WithLabelValues(name).Inc()
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.start).Seconds()),
	})
}

func (s *Server) motionDebug(w http.ResponseWriter, r *http.Request) {
	det := s.opts.Motion
	w.Header().Set("Content-Type", "image/png")
	png.Encode(w, det.DebugImage(det.Regions()))
}

func (s *Server) motionPlane(w http.ResponseWriter, r *http.Request) {
	plane := s.opts.Motion.Plane(chi.URLParam(r, "plane"))
	if plane == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	png.Encode(w, plane)
}
