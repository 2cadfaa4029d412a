// Package deviceproto serves the display device's frame protocol: a
// persistent TCP connection carrying whitespace-trimmed text commands,
// answered with either an error token or a length-prefixed 1bpp frame.
//
// The protocol is strictly half-duplex, one command one response. The
// only recognised command is GET_FRAME:
//
//	-> "GET_FRAME\n"
//	<- "OK\n" + uint32 LE frame length + frame bytes
//
// Any other non-empty command gets "ERROR\n". A failed capture also
// gets "ERROR\n" and the connection stays open; only transport-level
// disconnection ends a session.
package deviceproto

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"net"
	"strings"
)

const (
	// CmdGetFrame requests one display frame.
	CmdGetFrame = "GET_FRAME"

	respOK    = "OK\n"
	respError = "ERROR\n"

	// readBufSize bounds one command read. Device firmware sends short
	// commands; anything longer is garbage.
	readBufSize = 1024
)

// BitmapSource produces the packed display frame for one GET_FRAME.
type BitmapSource interface {
	Bitmap(ctx context.Context) ([]byte, error)
}

// Server accepts device connections and answers commands. One
// connection is handled at a time; when it ends the server resumes
// accepting.
type Server struct {
	src    BitmapSource
	logger *slog.Logger
}

// New returns a Server answering GET_FRAME from src.
func New(src BitmapSource, logger *slog.Logger) *Server {
	return &Server{src: src, logger: logger}
}

// Serve runs the accept loop on ln until ctx is cancelled or the
// listener fails. Connection-level errors terminate only that session.
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
		s.logger.Info("device connected", "remote", conn.RemoteAddr())
		s.handle(ctx, conn)
		s.logger.Info("device disconnected", "remote", conn.RemoteAddr())
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("device protocol listening", "addr", addr)
	return s.Serve(ctx, ln)
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
		if err != nil || n == 0 {
			// Peer closed or transport failed: end this session only.
			return
		}

		cmd := strings.TrimSpace(string(buf[:n]))
		switch cmd {
		case CmdGetFrame:
			if err := s.sendFrame(ctx, conn); err != nil {
				return
			}
		case "":
			// Whitespace-only read: no response, wait for a real command.
		default:
			s.logger.Warn("unknown device command", "command", cmd)
			if _, err := conn.Write([]byte(respError)); err != nil {
				return
			}
		}
	}
}

// sendFrame writes one GET_FRAME response. A capture failure produces
// ERROR and a nil return so the session continues; only write errors
// are returned.
func (s *Server) sendFrame(ctx context.Context, conn net.Conn) error {
	frame, err := s.src.Bitmap(ctx)
	if err != nil {
		s.logger.Error("frame capture failed", "error", err)
		_, werr := conn.Write([]byte(respError))
		return werr
	}

	// OK token, 4-byte little-endian length, then exactly that many
	// bytes. No trailing delimiter.
	resp := make([]byte, 0, len(respOK)+4+len(frame))
	resp = append(resp, respOK...)
	resp = binary.LittleEndian.AppendUint32(resp, uint32(len(frame)))
	resp = append(resp, frame...)
	if _, err := conn.Write(resp); err != nil {
		return err
	}
	s.logger.Debug("frame sent", "bytes", len(frame))
	return nil
}
