package power

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayCycles(t *testing.T) {
	assert.Equal(t, uint64(50), DelayCycles(500, 1e5))
	assert.Equal(t, uint64(1500), DelayCycles(15000, 1e5))
	assert.Equal(t, uint64(400), DelayCycles(4000, 1e5))
	// 73.636 MHz * 500 us = 36818 cycles
	assert.Equal(t, uint64(36818), DelayCycles(500, 73.636e6))
	// Truncation
	assert.Equal(t, uint64(1), DelayCycles(15, 1e5))
	assert.Equal(t, uint64(0), DelayCycles(0, 1e5))
	assert.Equal(t, uint64(0), DelayCycles(10, 0))
}

func TestSequencer_ReadyAtSumOfThresholds(t *testing.T) {
	s, err := New(1e5, DefaultDelaysUS)
	require.NoError(t, err)
	require.Equal(t, uint64(1950), s.ReadyCycle())

	first := -1
	for cycle := range 4000 {
		r := s.Step()
		if r.Ready && first < 0 {
			first = cycle
		}
		if first >= 0 {
			require.True(t, r.Ready, "ready dropped at cycle %d", cycle)
		} else {
			require.False(t, r.Ready)
		}
	}
	assert.Equal(t, 1950, first)
}

func TestSequencer_RailOrder(t *testing.T) {
	s, err := New(1e5, DefaultDelaysUS)
	require.NoError(t, err)

	var on3v3, on2v5, onBoost int = -1, -1, -1
	for cycle := range 2000 {
		r := s.Step()
		if r.En3V3 && on3v3 < 0 {
			on3v3 = cycle
		}
		if r.En2V5 && on2v5 < 0 {
			on2v5 = cycle
			assert.True(t, r.En3V3, "2v5 before 3v3")
		}
		if r.EnBoost && onBoost < 0 {
			onBoost = cycle
			assert.True(t, r.En2V5, "boost before 2v5")
		}
	}
	assert.Equal(t, 50, on3v3)
	assert.Equal(t, 1550, on2v5)
	assert.Equal(t, 1950, onBoost)
	assert.Equal(t, StateBoostEnabled, s.State())
}

func TestSequencer_StatesNeverRegress(t *testing.T) {
	s, err := New(1e6, [3]float64{10, 20, 30})
	require.NoError(t, err)

	prev := s.State()
	for range 200 {
		s.Step()
		assert.GreaterOrEqual(t, s.State(), prev)
		prev = s.State()
	}
}

func TestSequencer_CounterNeverWraps(t *testing.T) {
	tests := []struct {
		name   string
		clkHz  float64
		delays [3]float64
	}{
		{name: "simulation clock", clkHz: 1e5, delays: DefaultDelaysUS},
		{name: "power of two threshold", clkHz: 1e6, delays: [3]float64{1024, 512, 256}},
		{name: "sensor clock", clkHz: 73.636e6, delays: [3]float64{5, 10, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.clkHz, tt.delays)
			require.NoError(t, err)
			limit := uint64(1) << s.CounterWidth()

			for !s.Ready() {
				s.Step()
				require.Less(t, s.Elapsed(), limit)
			}
			assert.Equal(t, s.ReadyCycle()+1, countSteps(t, tt.clkHz, tt.delays))
		})
	}
}

// countSteps returns the number of steps needed until Ready is reported.
func countSteps(t *testing.T, clkHz float64, delays [3]float64) uint64 {
	t.Helper()
	s, err := New(clkHz, delays)
	require.NoError(t, err)
	var n uint64
	for !s.Step().Ready {
		n++
	}
	return n + 1
}

func TestSequencer_Reset(t *testing.T) {
	s, err := New(1e5, DefaultDelaysUS)
	require.NoError(t, err)
	for range 2000 {
		s.Step()
	}
	require.True(t, s.Ready())

	s.Reset()
	assert.False(t, s.Ready())
	assert.Equal(t, Rails{}, s.Rails())
	assert.Equal(t, StateInit, s.State())
}

func TestNew_InvalidArgs(t *testing.T) {
	_, err := New(0, DefaultDelaysUS)
	assert.Error(t, err)

	_, err = New(1e5, [3]float64{-1, 0, 0})
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "boost-en", StateBoostEnabled.String())
	assert.Equal(t, "state(9)", State(9).String())
}
