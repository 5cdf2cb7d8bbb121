// Package power sequences the sensor supply rails.
//
// The sequencer is open loop: it enables the 3V3 rail, waits, enables the 2V5
// rail, waits, enables the boost converter and then reports ready until reset.
// It has no feedback from the rails themselves.
package power

import (
	"fmt"
	"math/bits"
)

// State is the sequencer state.
type State int

const (
	StateInit State = iota
	StateRail3V3
	StateRail2V5
	StateBoostEnabled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRail3V3:
		return "3v3-en"
	case StateRail2V5:
		return "2v5-en"
	case StateBoostEnabled:
		return "boost-en"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultDelaysUS are the datasheet delays: power-on -> 3V3, 3V3 -> 2V5, 2V5 -> boost.
var DefaultDelaysUS = [3]float64{500, 15000, 4000}

// Rails is the sequencer output for one cycle.
type Rails struct {
	En3V3   bool
	En2V5   bool
	EnBoost bool
	Ready   bool
}

// Sequencer is the rail enable state machine.
type Sequencer struct {
	thresholds [3]uint64
	width      uint

	state   State
	elapsed uint64
	rails   Rails
}

// DelayCycles converts a delay in microseconds to whole clock cycles, truncating.
func DelayCycles(us, clkHz float64) uint64 {
	if us <= 0 || clkHz <= 0 {
		return 0
	}
	return uint64(clkHz / 1e6 * us)
}

// New creates a sequencer for the given clock frequency and per-state delays.
func New(clkHz float64, delaysUS [3]float64) (*Sequencer, error) {
	if clkHz <= 0 {
		return nil, fmt.Errorf("power: clock frequency must be positive, got %g", clkHz)
	}
	s := &Sequencer{}
	var maxThreshold uint64
	for i, d := range delaysUS {
		if d < 0 {
			return nil, fmt.Errorf("power: delay %d is negative: %g", i, d)
		}
		s.thresholds[i] = DelayCycles(d, clkHz)
		maxThreshold = max(maxThreshold, s.thresholds[i])
	}
	// The counter reaches at most threshold+1 before it is reloaded.
	s.width = uint(bits.Len64(maxThreshold + 1))
	return s, nil
}

// Thresholds returns the converted per-state thresholds in cycles.
func (s *Sequencer) Thresholds() [3]uint64 { return s.thresholds }

// ReadyCycle returns the 0-based cycle index on which Ready first becomes true.
func (s *Sequencer) ReadyCycle() uint64 {
	return s.thresholds[0] + s.thresholds[1] + s.thresholds[2]
}

// CounterWidth returns the elapsed counter width in bits.
func (s *Sequencer) CounterWidth() uint { return s.width }

// Elapsed returns the elapsed counter value.
func (s *Sequencer) Elapsed() uint64 { return s.elapsed }

// State returns the current state.
func (s *Sequencer) State() State { return s.state }

// Ready reports whether all rails are enabled.
func (s *Sequencer) Ready() bool { return s.state == StateBoostEnabled }

// Rails returns the outputs of the last step.
func (s *Sequencer) Rails() Rails { return s.rails }

// Step advances the sequencer by one cycle and returns the rail outputs.
//
// The elapsed counter includes the current cycle. A state is left on the cycle
// where elapsed exceeds its threshold; that cycle is also the first elapsed
// cycle of the next state, so the counter is reloaded with 1.
func (s *Sequencer) Step() Rails {
	if s.state == StateBoostEnabled {
		return s.rails
	}

	s.elapsed++
	if s.elapsed > s.thresholds[s.state] {
		s.elapsed = 1
		switch s.state {
		case StateInit:
			s.rails.En3V3 = true
			s.state = StateRail3V3
		case StateRail3V3:
			s.rails.En2V5 = true
			s.state = StateRail2V5
		case StateRail2V5:
			s.rails.EnBoost = true
			s.rails.Ready = true
			s.state = StateBoostEnabled
		}
	}
	return s.rails
}

// Reset drops all rails and restarts the sequence.
func (s *Sequencer) Reset() {
	s.state = StateInit
	s.elapsed = 0
	s.rails = Rails{}
}
