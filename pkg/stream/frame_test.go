package stream

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/isc0901/pkg/config"
)

func smallSensor(t *testing.T, marker bool) config.SensorConfig {
	t.Helper()
	cfg, err := config.Variant(config.DefaultVariant)
	require.NoError(t, err)
	cfg.RailDelaysUS = []float64{1, 1, 1}
	cfg.Columns = 8
	cfg.Rows = 3
	cfg.CmdToLineStartCycles = 100
	cfg.LineStartOffsetCycles = 40
	cfg.Marker = marker
	return cfg
}

// testFrame fills a frame with distinct values; with marker set the first
// pixel carries the marker value.
func testFrame(cfg config.SensorConfig, seed int) *Frame {
	f := NewFrame(cfg.Width(), cfg.Rows)
	for i := range f.Pix {
		f.Pix[i] = uint16((seed*100 + i) & 0x3fff)
	}
	if cfg.Marker {
		f.Pix[0] = 0x1555
	}
	return f
}

func TestDecode_RoundTrip(t *testing.T) {
	cfg := smallSensor(t, false)
	want := testFrame(cfg, 1)

	raw := Encode(want)
	require.Len(t, raw, cfg.FrameBytes())

	got, err := Decode(cfg, raw)
	require.NoError(t, err)
	if diff := cmp.Diff(want.Pix, got.Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, cfg.Width(), got.Width)
	assert.Equal(t, cfg.Rows, got.Height)
}

func TestDecode_Layout(t *testing.T) {
	cfg := smallSensor(t, false)
	raw := make([]byte, cfg.FrameBytes())
	copy(raw, []byte{0x55, 0x15, 0xbc, 0x2a, 0xff, 0xff, 0x00, 0x00})

	f, err := Decode(cfg, raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1555), f.At(0, 0))
	assert.Equal(t, uint16(0x2abc), f.At(1, 0))
	assert.Equal(t, uint16(0x3fff), f.At(2, 0)) // upper bits of the high byte ignored
	assert.Equal(t, uint16(0), f.At(3, 0))
}

func TestDecode_Errors(t *testing.T) {
	cfg := smallSensor(t, false)
	_, err := Decode(cfg, make([]byte, cfg.FrameBytes()-1))
	assert.True(t, errors.Is(err, ErrShortFrame))

	cfg.Marker = true
	_, err = Decode(cfg, make([]byte, cfg.FrameBytes()))
	assert.True(t, errors.Is(err, ErrNoMarker))

	_, err = Decode(cfg, Encode(testFrame(cfg, 0)))
	assert.NoError(t, err)
}

func TestFrame_Gray16(t *testing.T) {
	f := NewFrame(2, 1)
	f.Set(0, 0, 0x3fff)
	f.Set(1, 0, 0x0001)

	img := f.Gray16()
	assert.Equal(t, uint16(0xfffc), img.Gray16At(0, 0).Y)
	assert.Equal(t, uint16(0x0004), img.Gray16At(1, 0).Y)
}

func TestFrame_Clone(t *testing.T) {
	f := NewFrame(2, 2)
	c := f.Clone()
	c.Set(1, 1, 7)
	assert.Equal(t, uint16(0), f.At(1, 1))
	assert.Equal(t, []uint16{0, 7}, c.Row(1))
}
