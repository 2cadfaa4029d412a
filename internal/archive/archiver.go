package archive

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesArchived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "picamd",
		Name:      "frames_archived_total",
		Help:      "Frames written to the archive.",
	})
	framesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "picamd",
		Name:      "archive_discards_total",
		Help:      "Frames dropped because the archive queue was full.",
	})
)

// Archiver fans frame writes out to a fixed worker pool over a bounded
// job channel. Submit never blocks the capture path; when the channel
// is full the frame is discarded and counted.
type Archiver struct {
	store   *Store
	jobs    chan []byte
	workers int
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewArchiver sizes the pool. workers and queueSize <= 0 get sane
// defaults.
func NewArchiver(store *Store, workers, queueSize int, logger *slog.Logger) *Archiver {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Archiver{
		store:   store,
		jobs:    make(chan []byte, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. They drain remaining jobs after ctx is
// cancelled so accepted frames are not lost on shutdown.
func (a *Archiver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true

	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}
}

func (a *Archiver) worker(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case frame, ok := <-a.jobs:
			if !ok {
				return
			}
			a.write(frame)
		case <-ctx.Done():
			// Drain what was already accepted.
			for {
				select {
				case frame, ok := <-a.jobs:
					if !ok {
						return
					}
					a.write(frame)
				default:
					return
				}
			}
		}
	}
}

func (a *Archiver) write(frame []byte) {
	if _, err := a.store.Insert(frame); err != nil {
		a.logger.Warn("archive insert failed", "error", err)
		return
	}
	framesArchived.Inc()
}

// Submit hands a frame to the pool. Returns false when the queue is
// full or the archiver is stopped. The send is non-blocking, so the
// capture path never waits on the archive.
func (a *Archiver) Submit(frame []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return false
	}

	select {
	case a.jobs <- frame:
		return true
	default:
		framesDiscarded.Inc()
		return false
	}
}

// Stop closes the queue and waits for the workers to finish writing.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	close(a.jobs)
	a.mu.Unlock()

	a.wg.Wait()
}
