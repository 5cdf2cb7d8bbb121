package sensor

import (
	"fmt"

	"github.com/itohio/isc0901/pkg/acq"
	"github.com/itohio/isc0901/pkg/config"
)

// MarkerValue is the first even sample of a frame in marker-enabled variants.
// Its first two host bytes are config.MarkerBytes.
const MarkerValue uint16 = 0x1555

// Pattern drives the data lanes during a capture window.
type Pattern interface {
	// Lanes returns the lane levels for cycle of the capture window of row.
	Lanes(frame, row, cycle int) (even, odd bool)
}

// PixelFunc returns the 14-bit value of pixel (x, y) in frame.
type PixelFunc func(frame, x, y int) uint16

// Pixels is a Pattern built from a pixel function. Each sample pair takes
// 14 cycles; both values are sent least significant bit first.
type Pixels struct {
	Fn     PixelFunc
	Width  int  // pixels per row, two per pair
	Marker bool // replace pixel (0, 0) with MarkerValue
}

// Lanes implements Pattern.
func (p Pixels) Lanes(frame, row, cycle int) (bool, bool) {
	pair, bit := cycle/acq.SampleWidth, uint(cycle%acq.SampleWidth)
	x := 2 * pair
	if x >= p.Width {
		// trailing partial sample
		return false, false
	}
	even := p.Pixel(frame, x, row)
	odd := p.Pixel(frame, x+1, row)
	return even>>bit&1 == 1, odd>>bit&1 == 1
}

// Pixel returns the value the pattern sends for (x, y), including the marker.
func (p Pixels) Pixel(frame, x, y int) uint16 {
	if p.Marker && x == 0 && y == 0 {
		return MarkerValue
	}
	if x >= p.Width {
		return 0
	}
	return p.Fn(frame, x, y) & 0x3fff
}

// SHR is the shift-register test pattern: both lanes high on the first four
// even cycles of every 42-cycle period, low otherwise.
type SHR struct{}

// Lanes implements Pattern.
func (SHR) Lanes(_, _, cycle int) (bool, bool) {
	c := cycle % (3 * acq.SampleWidth)
	on := c < 8 && c%2 == 0
	return on, on
}

// Gradient returns a horizontal gradient that scrolls one column per frame.
func Gradient(width int) PixelFunc {
	return func(frame, x, y int) uint16 {
		return uint16(((x + frame) % width) * 0x3fff / max(width-1, 1))
	}
}

// Constant returns a flat field.
func Constant(v uint16) PixelFunc {
	return func(_, _, _ int) uint16 { return v }
}

// Checker returns an 8x8 checkerboard of lo and hi.
func Checker(lo, hi uint16) PixelFunc {
	return func(_, x, y int) uint16 {
		if (x/8+y/8)%2 == 0 {
			return lo
		}
		return hi
	}
}

// NewPattern builds a named pattern for the sensor geometry.
func NewPattern(cfg *config.Config) (Pattern, error) {
	width := cfg.Sensor.Width()
	switch cfg.Mock.Pattern {
	case "gradient":
		return Pixels{Fn: Gradient(width), Width: width, Marker: cfg.Sensor.Marker}, nil
	case "constant":
		return Pixels{Fn: Constant(cfg.Mock.Value), Width: width, Marker: cfg.Sensor.Marker}, nil
	case "checker":
		return Pixels{Fn: Checker(0x0800, 0x3000), Width: width, Marker: cfg.Sensor.Marker}, nil
	case "shr":
		return SHR{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown pattern %q", config.ErrInvalidConfig, cfg.Mock.Pattern)
	}
}
