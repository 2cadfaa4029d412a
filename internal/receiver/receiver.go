// Package receiver consumes a raw MJPEG TCP stream: a reader goroutine
// feeds the demuxer and a bounded frame queue, and a consumer drains
// the queue into a sink. The two sides share nothing but the queue and
// a running flag.
package receiver

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/picamd/picamd/internal/frameq"
	"github.com/picamd/picamd/internal/mjpeg"
)

const (
	// readChunkSize is the socket read size; frames span many reads.
	readChunkSize = 4096

	// dequeueTimeout is how often a consumer wakes to re-check the
	// running state while the queue is idle.
	dequeueTimeout = time.Second

	// joinTimeout bounds Stop so shutdown cannot stall indefinitely.
	joinTimeout = 2 * time.Second
)

// Receiver pulls bytes from a stream connection and queues complete
// frames.
type Receiver struct {
	src     io.ReadCloser
	queue   *frameq.Queue
	demux   *mjpeg.Demuxer
	running atomic.Bool
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// New wraps src. queueSize <= 0 uses the default capacity of 10.
func New(src io.ReadCloser, queueSize int, logger *slog.Logger) *Receiver {
	return &Receiver{
		src:    src,
		queue:  frameq.New(queueSize),
		demux:  mjpeg.NewDemuxer(),
		logger: logger,
	}
}

// Frames returns the queue consumers drain.
func (r *Receiver) Frames() *frameq.Queue {
	return r.queue
}

// Running reports whether the read loop is still alive.
func (r *Receiver) Running() bool {
	return r.running.Load()
}

// Start launches the read loop. The loop ends on connection loss, a
// zero-length read, or Stop; in every case it closes the queue so
// consumers can finish draining and observe end of stream.
func (r *Receiver) Start() {
	r.running.Store(true)
	r.wg.Add(1)
	go r.readLoop()
}

func (r *Receiver) readLoop() {
	defer r.wg.Done()
	defer r.queue.Close()
	defer r.running.Store(false)

	buf := make([]byte, readChunkSize)
	for r.running.Load() {
		n, err := r.src.Read(buf)
		if n > 0 {
			for _, frame := range r.demux.Feed(buf[:n]) {
				if !r.queue.Enqueue(frame) {
					// Queue full: the newest frame is dropped, older
					// buffered frames are kept. Lossy, not a fault.
					r.logger.Debug("frame dropped, queue full")
				}
			}
		}
		if err != nil {
			if err != io.EOF && r.running.Load() {
				r.logger.Warn("stream read failed", "error", err)
			}
			break
		}
		if n == 0 {
			break
		}
	}
	// Whatever is buffered is an unterminated partial frame; it is
	// discarded, never emitted.
	r.demux.Reset()
}

// Stop flips the running flag, forces the blocked read to return by
// closing the connection, and waits for the read loop with a bounded
// join.
func (r *Receiver) Stop() {
	r.running.Store(false)
	r.src.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		r.logger.Warn("receiver did not stop in time")
	}
}
