package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatFrame(seq int, v uint16) *Frame {
	f := NewFrame(2, 2)
	f.Seq = seq
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

func TestAverage(t *testing.T) {
	assert.Nil(t, Average(nil))

	one := flatFrame(4, 10)
	got := Average([]*Frame{one})
	assert.Equal(t, one.Pix, got.Pix)
	got.Pix[0] = 99
	assert.Equal(t, uint16(10), one.Pix[0], "single frame must be copied")

	got = Average([]*Frame{flatFrame(1, 10), flatFrame(2, 11)})
	assert.Equal(t, []uint16{11, 11, 11, 11}, got.Pix) // 10.5 rounds up
	assert.Equal(t, 2, got.Seq)

	got = Average([]*Frame{flatFrame(1, 0x3fff), flatFrame(2, 0x3fff), flatFrame(3, 0x3ffe)})
	assert.Equal(t, uint16(0x3fff), got.Pix[0])
}

func TestAverage_MixedGeometry(t *testing.T) {
	big := NewFrame(4, 2)
	for i := range big.Pix {
		big.Pix[i] = 100
	}
	small := NewFrame(1, 2)
	for i := range small.Pix {
		small.Pix[i] = 10
	}

	got := Average([]*Frame{flatFrame(1, 20), big, small, flatFrame(4, 30)})
	assert.Equal(t, []uint16{25, 25, 25, 25}, got.Pix)
	assert.Equal(t, 4, got.Seq)

	got = Average([]*Frame{flatFrame(1, 20), small})
	assert.Equal(t, 1, got.Width)
	assert.Equal(t, []uint16{10, 10}, got.Pix)
}

func TestNewAveragingConverter(t *testing.T) {
	in := make(chan *Frame, 5)
	out := NewAveragingConverter(2, 5)(in)

	for i, v := range []uint16{10, 20, 30} {
		in <- flatFrame(i, v)
	}
	close(in)

	var got []uint16
	for f := range out {
		got = append(got, f.Pix[0])
	}
	assert.Equal(t, []uint16{10, 15, 25}, got)
}

// TestAveragingConverter_GracefulShutdown tests that the output closes when
// the input closes.
func TestAveragingConverter_GracefulShutdown(t *testing.T) {
	in := make(chan *Frame)
	out := NewAveragingConverter(0, 0)(in)
	close(in)

	select {
	case _, ok := <-out:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Averaging output did not close")
	}
}
