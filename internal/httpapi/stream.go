package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Fixed multipart boundary. Device-side parsers in the field match this
// token literally, so it is part of the wire contract and not
// negotiable per connection.
const boundary = "frame"

// stream writes a multipart/x-mixed-replace JPEG stream. Each part is
// exactly:
//
//	--frame\r\n
//	Content-Type: image/jpeg\r\n
//	Content-Length: <N>\r\n
//	\r\n
//	<N bytes>\r\n
//
// until either side closes the connection.
func (s *Server) stream(name string, fn func(context.Context) ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)

		s.logger.Info("stream client connected", "endpoint", name, "remote", r.RemoteAddr)
		defer s.logger.Info("stream client disconnected", "endpoint", name, "remote", r.RemoteAddr)

		ticker := time.NewTicker(s.opts.StreamInterval)
		defer ticker.Stop()

		for {
			data, err := fn(r.Context())
			if err != nil {
				// Transient capture failure: hold the connection, retry on
				// the next tick.
				s.logger.Warn("stream capture failed", "endpoint", name, "error", err)
			} else {
				_, err = fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(data))
				if err == nil {
					_, err = w.Write(data)
				}
				if err == nil {
					_, err = w.Write([]byte("\r\n"))
				}
				if err != nil {
					return
				}
				flusher.Flush()
				framesServed.WithLabelValues(name).Inc()
			}

			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	// The daemon serves a trusted LAN; no origin policy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// websocket pushes JPEG frames as binary messages at the stream pace.
func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain control frames so pings and the close handshake work.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.StreamInterval)
	defer ticker.Stop()

	for {
		data, err := s.cap.JPEG(r.Context())
		if err == nil {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
			framesServed.WithLabelValues("ws").Inc()
		}

		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
