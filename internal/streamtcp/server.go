// Package streamtcp serves the raw MJPEG stream: complete JFIF images
// written back to back on a TCP connection, delimited only by their
// SOI/EOI markers. This is the transport the stream client's demuxer
// parses.
package streamtcp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// FrameSource supplies JPEG frames to stream.
type FrameSource interface {
	JPEG(ctx context.Context) ([]byte, error)
}

// Server streams frames to one client at a time and goes back to
// accepting when the client drops.
type Server struct {
	src      FrameSource
	interval time.Duration
	logger   *slog.Logger
}

// New returns a Server pacing frames at interval.
func New(src FrameSource, interval time.Duration, logger *slog.Logger) *Server {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Server{src: src, interval: interval, logger: logger}
}

// Serve accepts and streams until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		s.logger.Info("stream client connected", "remote", conn.RemoteAddr())
		s.stream(ctx, conn)
		s.logger.Info("stream client disconnected", "remote", conn.RemoteAddr())
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("mjpeg stream listening", "addr", addr)
	return s.Serve(ctx, ln)
}

// stream writes frames until the client goes away or ctx is cancelled.
// A broken pipe ends only this session.
func (s *Server) stream(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		frame, err := s.src.JPEG(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("capture failed mid-stream", "error", err)
		} else if _, err := conn.Write(frame); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
