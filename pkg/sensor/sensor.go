// Package sensor simulates the thermal sensor die on the other side of the
// core's pins. It decodes the command and bias streams and drives the two
// data lanes from a test pattern while the capture window is open.
package sensor

import (
	"fmt"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/isc"
	"github.com/itohio/isc0901/pkg/shift"
)

// Sensor is a cycle-level sensor model. It implements isc.LaneSource.
type Sensor struct {
	cfg     config.SensorConfig
	pattern Pattern

	// command decoder, MSB first
	cmdWord  uint16
	cmdBits  int
	cmdSet   []uint16
	commands []uint16 // last complete set
	cmdSets  uint64

	// bias decoder, LSB first
	biasWord  uint8
	biasBits  int
	biasWords uint64
	lastBias  uint8
	biasBad   uint64

	// capture window
	latched   bool
	window    int
	row       int
	frame     int
	lines     uint64
	unpowered uint64
}

var _ isc.LaneSource = (*Sensor)(nil)

// New creates a sensor answering with pattern.
func New(cfg config.SensorConfig, pattern Pattern) (*Sensor, error) {
	if pattern == nil {
		return nil, fmt.Errorf("%w: sensor needs a pattern", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sensor{cfg: cfg, pattern: pattern}, nil
}

// Lanes decodes this cycle's serial inputs and returns the lane levels.
func (s *Sensor) Lanes(p isc.Pins) isc.Lanes {
	powered := p.En3V3 && p.En2V5 && p.EnBoost && p.Ena

	if p.CmdActive {
		s.decodeCmd(p.Cmd)
	}
	if p.BiasActive {
		s.decodeBias(p.Bias)
	}

	if !p.Latch {
		if s.latched {
			s.endLine()
		}
		return isc.Lanes{}
	}
	if !s.latched {
		s.latched = true
		s.window = 0
	}
	cycle := s.window
	s.window++

	if !powered {
		s.unpowered++
		return isc.Lanes{}
	}
	even, odd := s.pattern.Lanes(s.frame, s.row, cycle)
	return isc.Lanes{Even: even, Odd: odd}
}

func (s *Sensor) decodeCmd(b bool) {
	s.cmdWord <<= 1
	if b {
		s.cmdWord |= 1
	}
	s.cmdBits++
	if s.cmdBits < shift.CommandWidth {
		return
	}
	s.cmdSet = append(s.cmdSet, s.cmdWord&0x3fff)
	s.cmdWord, s.cmdBits = 0, 0
	if len(s.cmdSet) == len(s.cfg.Commands) {
		// A complete command set starts a frame.
		s.commands = s.cmdSet
		s.cmdSet = nil
		s.cmdSets++
		s.row = 0
	}
}

func (s *Sensor) decodeBias(b bool) {
	if b {
		s.biasWord |= 1 << s.biasBits
	}
	s.biasBits++
	if s.biasBits < shift.BiasWidth {
		return
	}
	s.lastBias = s.biasWord
	if s.biasWord != s.cfg.BiasValue {
		s.biasBad++
	}
	s.biasWords++
	s.biasWord, s.biasBits = 0, 0
}

func (s *Sensor) endLine() {
	s.latched = false
	s.lines++
	s.row++
	if s.row == s.cfg.Rows {
		s.row = 0
		s.frame++
	}
}

// Commands returns the last complete command set received.
func (s *Sensor) Commands() []uint16 { return append([]uint16(nil), s.commands...) }

// CommandSets returns the number of complete command sets received.
func (s *Sensor) CommandSets() uint64 { return s.cmdSets }

// BiasWords returns the number of bias words received.
func (s *Sensor) BiasWords() uint64 { return s.biasWords }

// LastBias returns the most recent bias word.
func (s *Sensor) LastBias() uint8 { return s.lastBias }

// BadBias returns the number of bias words that differ from the configured value.
func (s *Sensor) BadBias() uint64 { return s.biasBad }

// Lines returns the number of capture windows seen.
func (s *Sensor) Lines() uint64 { return s.lines }

// Frame returns the index of the frame being read out.
func (s *Sensor) Frame() int { return s.frame }

// Unpowered returns the number of latched cycles seen with a rail down.
func (s *Sensor) Unpowered() uint64 { return s.unpowered }

// Reset clears all decoder and readout state.
func (s *Sensor) Reset() {
	*s = Sensor{cfg: s.cfg, pattern: s.pattern}
}
