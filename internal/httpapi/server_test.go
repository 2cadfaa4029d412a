package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type stubCapture struct {
	jpeg []byte
	err  error
}

func (s *stubCapture) JPEG(context.Context) ([]byte, error)           { return s.jpeg, s.err }
func (s *stubCapture) GrayJPEG(context.Context) ([]byte, error)       { return s.jpeg, s.err }
func (s *stubCapture) CompressedJPEG(context.Context) ([]byte, error) { return s.jpeg, s.err }

func testServer(cap Capture, opts Options) *Server {
	return New(cap, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFrameHeaders(t *testing.T) {
	frame := []byte{0xff, 0xd8, 1, 2, 3, 0xff, 0xd9}
	srv := testServer(&stubCapture{jpeg: frame}, Options{})

	for _, path := range []string{"/frame", "/frame_gray", "/frame_compressed"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		h := rec.Header()
		if h.Get("Cache-Control") != "no-cache, no-store, must-revalidate" {
			t.Errorf("%s: Cache-Control = %q", path, h.Get("Cache-Control"))
		}
		if h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
			t.Errorf("%s: missing no-cache headers", path)
		}
		if h.Get("Content-Length") != strconv.Itoa(len(frame)) {
			t.Errorf("%s: Content-Length = %q, want %d", path, h.Get("Content-Length"), len(frame))
		}
		if !bytes.Equal(rec.Body.Bytes(), frame) {
			t.Errorf("%s: body mismatch", path)
		}
	}
}

func TestFrameCaptureError(t *testing.T) {
	srv := testServer(&stubCapture{err: errors.New("boom")}, Options{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/frame", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestFrameEmptyMeansUnavailable(t *testing.T) {
	srv := testServer(&stubCapture{}, Options{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/frame", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Camera not available") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestStreamPartLayout(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0xaa, 0xbb, 0xff, 0xd9}
	srv := testServer(&stubCapture{jpeg: frame}, Options{StreamInterval: 5 * time.Millisecond})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// Check two full parts byte for byte.
	r := bufio.NewReader(resp.Body)
	for part := 0; part < 2; part++ {
		for _, want := range []string{
			"--frame\r\n",
			"Content-Type: image/jpeg\r\n",
			fmt.Sprintf("Content-Length: %d\r\n", len(frame)),
			"\r\n",
		} {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Fatalf("part %d: read header: %v", part, err)
			}
			if line != want {
				t.Fatalf("part %d: header = %q, want %q", part, line, want)
			}
		}
		body := make([]byte, len(frame)+2)
		if _, err := io.ReadFull(r, body); err != nil {
			t.Fatalf("part %d: read body: %v", part, err)
		}
		if !bytes.Equal(body[:len(frame)], frame) {
			t.Fatalf("part %d: frame bytes corrupted", part)
		}
		if !bytes.Equal(body[len(frame):], []byte("\r\n")) {
			t.Fatalf("part %d: missing trailing CRLF", part)
		}
	}
}

func TestStatus(t *testing.T) {
	srv := testServer(&stubCapture{jpeg: []byte{1}}, Options{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMetricsExposed(t *testing.T) {
	srv := testServer(&stubCapture{jpeg: []byte{1}}, Options{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWebsocketPushesFrames(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0x42, 0xff, 0xd9}
	srv := testServer(&stubCapture{jpeg: frame}, Options{StreamInterval: 5 * time.Millisecond})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 2; i++ {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if typ != websocket.BinaryMessage {
			t.Fatalf("message %d type = %d", i, typ)
		}
		if !bytes.Equal(data, frame) {
			t.Fatalf("message %d = %x", i, data)
		}
	}
}

type countingArchiver struct{ n int }

func (a *countingArchiver) Submit([]byte) bool { a.n++; return true }

func TestFrameArchived(t *testing.T) {
	arch := &countingArchiver{}
	srv := testServer(&stubCapture{jpeg: []byte{0xff, 0xd8, 0xff, 0xd9}}, Options{Archiver: arch})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/frame", nil))
	if arch.n != 1 {
		t.Errorf("archiver saw %d frames, want 1", arch.n)
	}

	// Gray and compressed frames are not archived.
	srv.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/frame_gray", nil))
	if arch.n != 1 {
		t.Errorf("archiver saw %d frames after gray, want 1", arch.n)
	}
}
