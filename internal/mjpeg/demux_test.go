package mjpeg

import (
	"bytes"
	"testing"
)

// fakeFrame builds a marker-delimited frame with the given payload. The
// payload must not contain FF D8 or FF D9, as real entropy-coded data
// never does.
func fakeFrame(payload []byte) []byte {
	f := append([]byte{0xff, 0xd8}, payload...)
	return append(f, 0xff, 0xd9)
}

func TestFeedSingleFrame(t *testing.T) {
	d := NewDemuxer()
	want := fakeFrame([]byte("hello"))

	frames := d.Feed(want)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], want) {
		t.Errorf("frame mismatch: got %x want %x", frames[0], want)
	}
	if d.Buffered() != 0 {
		t.Errorf("buffered = %d, want 0", d.Buffered())
	}
}

func TestFeedArbitraryChunking(t *testing.T) {
	src := [][]byte{
		fakeFrame([]byte("one")),
		fakeFrame([]byte("two is longer")),
		fakeFrame(nil),
		fakeFrame(bytes.Repeat([]byte{0x42}, 300)),
	}
	stream := bytes.Join(src, nil)

	// Split the stream at every possible chunk size and check the exact
	// same frames come back out.
	for chunkSize := 1; chunkSize <= len(stream); chunkSize++ {
		d := NewDemuxer()
		var got [][]byte
		for off := 0; off < len(stream); off += chunkSize {
			end := off + chunkSize
			if end > len(stream) {
				end = len(stream)
			}
			got = append(got, d.Feed(stream[off:end])...)
		}
		if len(got) != len(src) {
			t.Fatalf("chunkSize=%d: got %d frames, want %d", chunkSize, len(got), len(src))
		}
		for i := range src {
			if !bytes.Equal(got[i], src[i]) {
				t.Fatalf("chunkSize=%d: frame %d mismatch", chunkSize, i)
			}
		}
	}
}

func TestFeedManyFramesOneChunk(t *testing.T) {
	var stream []byte
	const n = 7
	for i := 0; i < n; i++ {
		stream = append(stream, fakeFrame([]byte{byte(i)})...)
	}

	d := NewDemuxer()
	frames := d.Feed(stream)
	if len(frames) != n {
		t.Fatalf("got %d frames, want %d", len(frames), n)
	}
	for i, f := range frames {
		if f[2] != byte(i) {
			t.Errorf("frame %d out of order: payload %x", i, f[2])
		}
	}
}

func TestPartialFrameHeldBack(t *testing.T) {
	d := NewDemuxer()

	// Start marker and body but no end marker, spread over several feeds.
	if got := d.Feed([]byte{0xff, 0xd8, 1, 2}); len(got) != 0 {
		t.Fatalf("emitted %d frames from open frame", len(got))
	}
	if got := d.Feed([]byte{3, 4, 5}); len(got) != 0 {
		t.Fatalf("emitted %d frames before end marker", len(got))
	}
	if got := d.Feed([]byte{6, 0xff}); len(got) != 0 {
		t.Fatalf("emitted %d frames on split end marker", len(got))
	}

	frames := d.Feed([]byte{0xd9})
	if len(frames) != 1 {
		t.Fatalf("got %d frames after end marker, want 1", len(frames))
	}
	want := []byte{0xff, 0xd8, 1, 2, 3, 4, 5, 6, 0xff, 0xd9}
	if !bytes.Equal(frames[0], want) {
		t.Errorf("frame = %x, want %x", frames[0], want)
	}
}

func TestMarkersAlwaysPresent(t *testing.T) {
	d := NewDemuxer()
	stream := append([]byte("garbage before"), fakeFrame([]byte("a"))...)
	stream = append(stream, []byte("junk between")...)
	stream = append(stream, fakeFrame([]byte("b"))...)

	for _, f := range d.Feed(stream) {
		if !bytes.HasPrefix(f, []byte{0xff, 0xd8}) {
			t.Errorf("frame missing start marker: %x", f)
		}
		if !bytes.HasSuffix(f, []byte{0xff, 0xd9}) {
			t.Errorf("frame missing end marker: %x", f)
		}
	}
}

func TestGarbageBetweenFramesDropped(t *testing.T) {
	d := NewDemuxer()
	f1 := fakeFrame([]byte("x"))
	f2 := fakeFrame([]byte("y"))

	stream := append(append(append([]byte{}, f1...), []byte("noise")...), f2...)
	frames := d.Feed(stream)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], f1) || !bytes.Equal(frames[1], f2) {
		t.Error("frames corrupted by inter-frame garbage")
	}
	if d.Buffered() != 0 {
		t.Errorf("buffered = %d, want 0", d.Buffered())
	}
}

func TestTrailingPartialSurvivesEmit(t *testing.T) {
	d := NewDemuxer()
	f1 := fakeFrame([]byte("done"))
	partial := []byte{0xff, 0xd8, 9, 9, 9}

	frames := d.Feed(append(append([]byte{}, f1...), partial...))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if d.Buffered() != len(partial) {
		t.Fatalf("buffered = %d, want %d", d.Buffered(), len(partial))
	}

	frames = d.Feed([]byte{0xff, 0xd9})
	if len(frames) != 1 {
		t.Fatalf("got %d frames completing partial, want 1", len(frames))
	}
}

func TestReset(t *testing.T) {
	d := NewDemuxer()
	d.Feed([]byte{0xff, 0xd8, 1, 2, 3})
	d.Reset()
	if d.Buffered() != 0 {
		t.Errorf("buffered = %d after Reset, want 0", d.Buffered())
	}
	// The discarded partial must not leak into the next frame.
	frames := d.Feed(fakeFrame([]byte("fresh")))
	if len(frames) != 1 || !bytes.Equal(frames[0], fakeFrame([]byte("fresh"))) {
		t.Error("stale bytes leaked past Reset")
	}
}

func TestAddMotionDHT(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0x00, 0xff, 0xda, 0x11, 0x22, 0xff, 0xd9}
	out := AddMotionDHT(frame)
	if !bytes.Contains(out, dhtMarker) {
		t.Fatal("DHT segment not inserted")
	}
	if bytes.Index(out, dhtMarker) > bytes.Index(out, sosMarker) {
		t.Error("DHT inserted after start of scan")
	}
	// Frames that already carry tables pass through untouched.
	again := AddMotionDHT(out)
	if !bytes.Equal(again, out) {
		t.Error("DHT inserted twice")
	}
}
