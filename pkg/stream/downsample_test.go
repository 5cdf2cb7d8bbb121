package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsample_NoDownsampling(t *testing.T) {
	src := []int{1, 2, 3}

	// Test with nil dst
	result := Downsample(nil, src, 10)
	assert.Equal(t, src, result)

	// Test with sufficient capacity dst
	dst := make([]int, 0, 10)
	result = Downsample(dst, src, 10)
	assert.Equal(t, src, result)
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_WithDownsampling(t *testing.T) {
	src := make([]float64, 100)
	for i := range src {
		src[i] = float64(i)
	}

	dst := make([]float64, 0, 20)
	result := Downsample(dst, src, 10)
	require.Len(t, result, 10)
	assert.Equal(t, cap(dst), cap(result))

	// Should always include first sample
	assert.Equal(t, 0.0, result[0])
	assert.Equal(t, 90.0, result[9])
}

func TestDownsample_SmallDst(t *testing.T) {
	src := make([]byte, 50)
	result := Downsample(make([]byte, 0, 2), src, 5)
	assert.Len(t, result, 5)
}

func TestRowProfile(t *testing.T) {
	f := NewFrame(4, 2)
	copy(f.Row(1), []uint16{1, 2, 3, 4})

	assert.Equal(t, []float64{1, 2, 3, 4}, RowProfile(nil, f, 1, 10))
	assert.Equal(t, []float64{1, 3}, RowProfile(nil, f, 1, 2))
}
