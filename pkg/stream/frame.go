// Package stream turns the host byte stream into thermal frames.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/itohio/isc0901/pkg/acq"
	"github.com/itohio/isc0901/pkg/config"
)

var (
	// ErrShortFrame is returned when fewer bytes than one frame are available.
	ErrShortFrame = errors.New("short frame")
	// ErrNoMarker is returned when a marker-enabled frame does not start with the marker.
	ErrNoMarker = errors.New("frame marker not found")
)

// Frame is one reconstructed thermal image. Pixels are 14-bit values stored
// row-major; even and odd lane samples alternate along each row.
type Frame struct {
	Seq       int
	Timestamp time.Time
	Width     int
	Height    int
	Pix       []uint16
}

// NewFrame allocates an empty frame.
func NewFrame(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Pix: make([]uint16, width*height)}
}

// At returns the pixel at (x, y).
func (f *Frame) At(x, y int) uint16 { return f.Pix[y*f.Width+x] }

// Set stores v at (x, y).
func (f *Frame) Set(x, y int, v uint16) { f.Pix[y*f.Width+x] = v }

// Row returns row y without copying.
func (f *Frame) Row(y int) []uint16 { return f.Pix[y*f.Width : (y+1)*f.Width] }

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = append([]uint16(nil), f.Pix...)
	return &c
}

// Gray16 returns the frame as a 16-bit grayscale image, scaled to full range.
func (f *Frame) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := f.At(x, y) << 2
			i := img.PixOffset(x, y)
			img.Pix[i] = uint8(v >> 8)
			img.Pix[i+1] = uint8(v)
		}
	}
	return img
}

// HasMarker reports whether raw starts with the frame marker.
func HasMarker(raw []byte) bool {
	return len(raw) >= len(config.MarkerBytes) && bytes.Equal(raw[:len(config.MarkerBytes)], config.MarkerBytes[:])
}

// Decode reconstructs one frame from exactly cfg.FrameBytes() bytes.
// Marker-enabled variants must start with the marker.
func Decode(cfg config.SensorConfig, raw []byte) (*Frame, error) {
	n := cfg.FrameBytes()
	if len(raw) < n {
		return nil, fmt.Errorf("%w: have %d of %d bytes", ErrShortFrame, len(raw), n)
	}
	if cfg.Marker && !HasMarker(raw) {
		return nil, fmt.Errorf("%w: got % x", ErrNoMarker, raw[:min(len(raw), 4)])
	}

	f := NewFrame(cfg.Width(), cfg.Rows)
	var b [acq.BytesPerSample]byte
	for i, x := 0, 0; i < n; i += acq.BytesPerSample {
		copy(b[:], raw[i:i+acq.BytesPerSample])
		s := acq.Decode(b)
		f.Pix[x] = s.Even
		f.Pix[x+1] = s.Odd
		x += 2
	}
	return f, nil
}

// Encode is the inverse of Decode.
func Encode(f *Frame) []byte {
	out := make([]byte, 0, len(f.Pix)*acq.BytesPerSample/2)
	for i := 0; i+1 < len(f.Pix); i += 2 {
		b := acq.Sample{Even: f.Pix[i], Odd: f.Pix[i+1]}.Bytes()
		out = append(out, b[:]...)
	}
	return out
}
