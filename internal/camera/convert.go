package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/blackjack/webcam"

	"github.com/picamd/picamd/internal/mjpeg"
)

// yuyvToYCbCr unpacks a packed YUYV buffer into a 4:2:2 YCbCr image.
func yuyvToYCbCr(frame []byte, w, h uint32) (*image.YCbCr, error) {
	img := image.NewYCbCr(image.Rect(0, 0, int(w), int(h)), image.YCbCrSubsampleRatio422)
	if len(frame) < len(img.Cb)*4 {
		return nil, fmt.Errorf("camera: short YUYV frame: %d bytes for %dx%d", len(frame), w, h)
	}
	for i := range img.Cb {
		ii := i * 4
		img.Y[i*2] = frame[ii]
		img.Y[i*2+1] = frame[ii+2]
		img.Cb[i] = frame[ii+1]
		img.Cr[i] = frame[ii+3]
	}
	return img, nil
}

// decodeFrame turns a raw device frame into an image.
func decodeFrame(frame []byte, w, h uint32, format webcam.PixelFormat) (image.Image, error) {
	switch format {
	case fmtYUYV:
		return yuyvToYCbCr(frame, w, h)
	case fmtMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(mjpeg.AddMotionDHT(frame)))
		if err != nil {
			return nil, fmt.Errorf("camera: decode MJPEG frame: %w", err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("camera: unknown pixel format %#x", format)
	}
}

// encodeFrame turns a raw device frame into standalone JPEG bytes.
func encodeFrame(frame []byte, w, h uint32, format webcam.PixelFormat) ([]byte, error) {
	switch format {
	case fmtYUYV:
		img, err := yuyvToYCbCr(frame, w, h)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("camera: encode frame: %w", err)
		}
		return buf.Bytes(), nil
	case fmtMJPEG:
		return mjpeg.AddMotionDHT(frame), nil
	default:
		return nil, fmt.Errorf("camera: unknown pixel format %#x", format)
	}
}
