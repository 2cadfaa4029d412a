// Package mjpeg splits a continuous MJPEG byte stream into individual
// JPEG frames. Frames are delimited only by the JPEG SOI/EOI markers;
// there is no length prefix or separator on the wire.
package mjpeg

import "bytes"

var (
	soiMarker = []byte{0xff, 0xd8}
	eoiMarker = []byte{0xff, 0xd9}
)

// Demuxer accumulates byte chunks from a transport and emits complete
// JPEG frames as they become available. A partially received frame stays
// buffered across Feed calls and is never emitted without its end marker.
//
// The scan is naive byte matching. Correctly encoded JPEG entropy data
// byte-stuffs FF with a following 00, so neither marker can occur inside
// a frame body; the demuxer relies on that and does nothing defensive.
type Demuxer struct {
	buf []byte
}

// NewDemuxer returns a Demuxer with an empty accumulator.
func NewDemuxer() *Demuxer {
	return &Demuxer{}
}

// Feed appends chunk to the accumulator and returns every complete frame
// now available, in arrival order. Each returned frame is a copy and
// includes both markers. A call may return zero, one or many frames.
//
// Bytes between emitted frames that never matched a start marker are
// dropped. Bytes after the last emitted frame, including a partial
// trailing frame, stay buffered for the next call.
func (d *Demuxer) Feed(chunk []byte) [][]byte {
	d.buf = append(d.buf, chunk...)

	var frames [][]byte
	search := 0
	for {
		start := bytes.Index(d.buf[search:], soiMarker)
		if start < 0 {
			break
		}
		start += search

		end := bytes.Index(d.buf[start+len(soiMarker):], eoiMarker)
		if end < 0 {
			// Frame not finished yet, keep it buffered.
			break
		}
		end += start + len(soiMarker) + len(eoiMarker)

		frame := make([]byte, end-start)
		copy(frame, d.buf[start:end])
		frames = append(frames, frame)

		search = end
	}

	if len(frames) > 0 {
		// Discard everything up to the end of the last emitted frame.
		d.buf = append(d.buf[:0], d.buf[search:]...)
	}
	return frames
}

// Buffered reports how many bytes are held back waiting for a frame to
// complete.
func (d *Demuxer) Buffered() int {
	return len(d.buf)
}

// Reset drops any buffered partial frame. Call it when the transport
// closes; an unterminated frame is discarded, not emitted.
func (d *Demuxer) Reset() {
	d.buf = d.buf[:0]
}
