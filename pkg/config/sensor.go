package config

import (
	"fmt"
	"sort"
)

const (
	// DefaultVariant is the sensor revision used when none is configured.
	DefaultVariant = "isc0901b0-339x262"

	// CyclesPerColumn is the number of sensor clock cycles per column period.
	CyclesPerColumn = 7
	// SampleCycles is the number of cycles needed to shift in one 14-bit sample pair.
	SampleCycles = 14
	// BytesPerPair is the number of host bytes per even/odd sample pair.
	BytesPerPair = 4
	// CommandCount is the number of configuration words sent per frame.
	CommandCount = 12
)

// MarkerBytes are the first two bytes of a frame in marker-enabled variants.
var MarkerBytes = [2]byte{0x55, 0x15}

// DefaultCommands is the configuration command stream, in send order.
var DefaultCommands = []uint16{
	0x00ff, 0x38a2, 0x36a7, 0x26aa, 0x30b7, 0x3f63,
	0x04ff, 0x2212, 0x1cc4, 0x0b8d, 0x3018, 0x1020,
}

var variants = map[string]SensorConfig{
	"isc0901b0-339x262": {
		Columns: 339,
		Rows:    262,
		Marker:  false,
	},
	"isc0901b0-364x266": {
		Columns: 364,
		Rows:    266,
		Marker:  true,
	},
}

// Variants returns the names of the known sensor revisions.
func Variants() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Variant returns the preset for a named sensor revision.
func Variant(name string) (SensorConfig, error) {
	v, ok := variants[name]
	if !ok {
		return SensorConfig{}, fmt.Errorf("%w: unknown sensor variant %q", ErrInvalidConfig, name)
	}
	v.Variant = name
	v.ClockHz = 73.636e6
	v.RailDelaysUS = []float64{500, 15000, 4000}
	v.Commands = append([]uint16(nil), DefaultCommands...)
	v.BiasValue = 0x25
	v.BiasToLatchCycles = 4
	v.InitCycles = 16
	v.CmdToLineStartCycles = 668*CyclesPerColumn + 1
	v.LineStartOffsetCycles = 2285
	v.CmdQueueDepth = len(DefaultCommands)
	v.BiasQueueDepth = 16
	return v, nil
}

// LineCycles returns the capture window length of one line.
func (s SensorConfig) LineCycles() int { return s.Columns * CyclesPerColumn }

// InterFrameCycles returns the length of the gap between frames.
func (s SensorConfig) InterFrameCycles() int { return s.LineCycles() + s.LineStartOffsetCycles }

// BiasWrites returns the number of bias words sent per line.
func (s SensorConfig) BiasWrites() int { return s.Columns - 1 }

// PairsPerLine returns the number of complete sample pairs captured per line.
// Cycles left over at the end of the window form a partial sample that is discarded.
func (s SensorConfig) PairsPerLine() int { return s.LineCycles() / SampleCycles }

// Width returns the number of pixels per reconstructed row.
func (s SensorConfig) Width() int { return 2 * s.PairsPerLine() }

// LineBytes returns the number of host bytes per line.
func (s SensorConfig) LineBytes() int { return s.PairsPerLine() * BytesPerPair }

// FrameBytes returns the number of host bytes per frame.
func (s SensorConfig) FrameBytes() int { return s.Rows * s.LineBytes() }

// RailDelays returns the rail delays as a fixed array.
func (s SensorConfig) RailDelays() [3]float64 {
	var d [3]float64
	copy(d[:], s.RailDelaysUS)
	return d
}

// Validate checks the sensor settings.
func (s SensorConfig) Validate() error {
	switch {
	case s.ClockHz <= 0:
		return fmt.Errorf("%w: sensor clock must be positive", ErrInvalidConfig)
	case len(s.RailDelaysUS) != 3:
		return fmt.Errorf("%w: expected 3 rail delays, got %d", ErrInvalidConfig, len(s.RailDelaysUS))
	case s.Columns < 2:
		return fmt.Errorf("%w: columns must be at least 2, got %d", ErrInvalidConfig, s.Columns)
	case s.Rows < 1:
		return fmt.Errorf("%w: rows must be at least 1, got %d", ErrInvalidConfig, s.Rows)
	case len(s.Commands) != CommandCount:
		return fmt.Errorf("%w: expected %d command words, got %d", ErrInvalidConfig, CommandCount, len(s.Commands))
	case s.BiasValue > 0x7f:
		return fmt.Errorf("%w: bias value %#x exceeds 7 bits", ErrInvalidConfig, s.BiasValue)
	case s.InitCycles < 1:
		return fmt.Errorf("%w: init cycles must be positive", ErrInvalidConfig)
	case s.BiasToLatchCycles < 0 || s.BiasToLatchCycles >= s.LineStartOffsetCycles || s.BiasToLatchCycles >= s.CmdToLineStartCycles:
		return fmt.Errorf("%w: bias-to-latch cycles must be shorter than the line and frame start offsets", ErrInvalidConfig)
	case s.CmdQueueDepth < 1 || s.BiasQueueDepth < 1:
		return fmt.Errorf("%w: queue depths must be positive", ErrInvalidConfig)
	}
	for i, w := range s.Commands {
		if w > 0x3fff {
			return fmt.Errorf("%w: command %d (%#x) exceeds 14 bits", ErrInvalidConfig, i, w)
		}
	}
	for i, d := range s.RailDelaysUS {
		if d < 0 {
			return fmt.Errorf("%w: rail delay %d is negative", ErrInvalidConfig, i)
		}
	}
	return nil
}
