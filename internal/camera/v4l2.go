package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/blackjack/webcam"
)

// V4L2 fourcc codes for the pixel formats we can handle.
const (
	fmtYUYV  webcam.PixelFormat = 0x56595559
	fmtMJPEG webcam.PixelFormat = 0x47504a4d
)

var supportedFormats = map[webcam.PixelFormat]bool{
	fmtYUYV:  true,
	fmtMJPEG: true,
}

// waitTimeout passed to WaitForFrame, in seconds. Timeouts are
// transient: the read loop retries them.
const waitTimeout = 5

type byArea []webcam.FrameSize

func (s byArea) Len() int      { return len(s) }
func (s byArea) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byArea) Less(i, j int) bool {
	return s[i].MaxWidth*s[i].MaxHeight < s[j].MaxWidth*s[j].MaxHeight
}

// V4L2Source reads frames from a /dev/videoN device.
type V4L2Source struct {
	cam    *webcam.Webcam
	format webcam.PixelFormat
	w, h   uint32
	logger *slog.Logger
}

// OpenV4L2 opens dev and negotiates a pixel format and frame size.
// An empty formatName picks the first supported format; an empty
// sizeSpec picks the largest advertised size; otherwise sizeSpec is
// "WxH".
func OpenV4L2(dev, formatName, sizeSpec string, logger *slog.Logger) (*V4L2Source, error) {
	cam, err := webcam.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("camera: open %s: %w", dev, err)
	}

	formatDesc := cam.GetSupportedFormats()
	var format webcam.PixelFormat
	for f, desc := range formatDesc {
		if formatName == "" {
			if supportedFormats[f] {
				format = f
				break
			}
		} else if formatName == desc {
			if !supportedFormats[f] {
				cam.Close()
				return nil, fmt.Errorf("camera: format %q not supported", desc)
			}
			format = f
			break
		}
	}
	if format == 0 {
		cam.Close()
		return nil, fmt.Errorf("camera: no usable pixel format on %s", dev)
	}

	size, err := pickSize(cam.GetSupportedFrameSizes(format), sizeSpec)
	if err != nil {
		cam.Close()
		return nil, err
	}

	f, w, h, err := cam.SetImageFormat(format, size.MaxWidth, size.MaxHeight)
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("camera: set format: %w", err)
	}
	logger.Info("camera configured",
		"device", dev, "format", formatDesc[f], "width", w, "height", h)

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("camera: start streaming: %w", err)
	}

	return &V4L2Source{cam: cam, format: f, w: w, h: h, logger: logger}, nil
}

func pickSize(sizes []webcam.FrameSize, spec string) (webcam.FrameSize, error) {
	frames := byArea(sizes)
	sort.Sort(frames)

	switch {
	case spec == "":
		if len(frames) == 0 {
			return webcam.FrameSize{}, fmt.Errorf("camera: no frame sizes advertised")
		}
		return frames[len(frames)-1], nil
	case strings.Count(spec, "x") == 1:
		parts := strings.Split(spec, "x")
		x, xerr := strconv.Atoi(parts[0])
		y, yerr := strconv.Atoi(parts[1])
		if xerr != nil || yerr != nil {
			return webcam.FrameSize{}, fmt.Errorf("camera: bad size %q", spec)
		}
		return webcam.FrameSize{MaxWidth: uint32(x), MaxHeight: uint32(y)}, nil
	default:
		for _, f := range frames {
			if spec == f.GetString() {
				return f, nil
			}
		}
		return webcam.FrameSize{}, fmt.Errorf("camera: no frame size matching %q", spec)
	}
}

// Size returns the negotiated frame dimensions.
func (s *V4L2Source) Size() (int, int) { return int(s.w), int(s.h) }

// readFrame blocks for the next frame from the device, retrying
// timeouts until ctx is cancelled.
func (s *V4L2Source) readFrame(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := s.cam.WaitForFrame(waitTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			s.logger.Debug("frame wait timeout, retrying")
			continue
		default:
			return nil, fmt.Errorf("camera: wait for frame: %w", err)
		}

		frame, err := s.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("camera: read frame: %w", err)
		}
		if len(frame) == 0 {
			continue
		}
		out := make([]byte, len(frame))
		copy(out, frame)
		return out, nil
	}
}

// Image returns the next frame decoded to an image.
func (s *V4L2Source) Image(ctx context.Context) (image.Image, error) {
	frame, err := s.readFrame(ctx)
	if err != nil {
		return nil, err
	}
	return decodeFrame(frame, s.w, s.h, s.format)
}

// JPEG returns the next frame as JPEG bytes. MJPEG cameras deliver
// these directly (after Huffman table repair); YUYV frames are encoded
// here.
func (s *V4L2Source) JPEG(ctx context.Context) ([]byte, error) {
	frame, err := s.readFrame(ctx)
	if err != nil {
		return nil, err
	}
	return encodeFrame(frame, s.w, s.h, s.format)
}

// Close stops streaming and releases the device.
func (s *V4L2Source) Close() error {
	return s.cam.Close()
}
