package receiver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	avi "github.com/icza/mjpeg"

	"github.com/picamd/picamd/internal/frameq"
)

// drain runs fn for every frame until the queue reports end of stream.
// It keeps draining buffered frames after the receiver has stopped, so
// nothing already received is lost.
func drain(q *frameq.Queue, fn func(frame []byte) error) (int, error) {
	count := 0
	for {
		frame, ok := q.Dequeue(dequeueTimeout)
		if !ok {
			if q.Done() {
				return count, nil
			}
			continue
		}
		if err := fn(frame); err != nil {
			return count, err
		}
		count++
	}
}

// WriteStream concatenates every frame into w, producing a playable
// .mjpeg file. Returns the frame count and total bytes written.
func WriteStream(q *frameq.Queue, w io.Writer) (frames int, bytes int64, err error) {
	frames, err = drain(q, func(frame []byte) error {
		n, werr := w.Write(frame)
		bytes += int64(n)
		return werr
	})
	return frames, bytes, err
}

// SaveFrames writes up to max frames as individual frame_NNNN.jpg files
// in dir, then keeps counting the rest so the caller sees the full
// total.
func SaveFrames(q *frameq.Queue, dir string, max int) (saved, total int, err error) {
	total, err = drain(q, func(frame []byte) error {
		if saved >= max {
			return nil
		}
		name := filepath.Join(dir, fmt.Sprintf("frame_%04d.jpg", saved))
		if werr := os.WriteFile(name, frame, 0o644); werr != nil {
			return werr
		}
		saved++
		return nil
	})
	return saved, total, err
}

// Count discards frames, reporting each one to progress when non-nil.
func Count(q *frameq.Queue, progress func(n int)) (int, error) {
	n := 0
	return drain(q, func([]byte) error {
		n++
		if progress != nil {
			progress(n)
		}
		return nil
	})
}

// RecordAVI muxes frames into an MJPEG AVI so ordinary players can open
// the capture. Width and height must match the stream.
func RecordAVI(q *frameq.Queue, path string, width, height int32, fps float64) (int, error) {
	aw, err := avi.New(path, width, height, int32(fps))
	if err != nil {
		return 0, err
	}

	n, err := drain(q, aw.AddFrame)
	if cerr := aw.Close(); err == nil {
		err = cerr
	}
	return n, err
}
