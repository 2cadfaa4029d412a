// Package camera owns the physical capture device. The camera is an
// exclusively held resource: one process-wide Source, constructed at
// startup and passed to whatever needs frames. Serialisation of
// concurrent captures is the capture service's job, not this package's.
package camera

import (
	"context"
	"image"
)

// Source delivers frames from a camera.
//
// Image returns a decoded frame; JPEG returns a JPEG-encoded frame,
// which for MJPEG cameras is the sensor output itself. Implementations
// are not required to be safe for concurrent use.
type Source interface {
	Image(ctx context.Context) (image.Image, error)
	JPEG(ctx context.Context) ([]byte, error)
	Size() (width, height int)
	Close() error
}
