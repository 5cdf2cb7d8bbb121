// Package isc composes the sensor-domain components into one cycle-stepped
// core and schedules it against the host clock domain.
package isc

import (
	"fmt"

	"github.com/itohio/isc0901/pkg/acq"
	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/ctrl"
	"github.com/itohio/isc0901/pkg/fifo"
	"github.com/itohio/isc0901/pkg/power"
	"github.com/itohio/isc0901/pkg/shift"
)

// Pins are the core outputs for one sensor clock cycle.
type Pins struct {
	En3V3   bool
	En2V5   bool
	EnBoost bool
	Ena     bool // sensor enable, follows En2V5

	Cmd        bool
	CmdActive  bool // a command bit is on the line; no physical pad
	Bias       bool
	BiasActive bool // a bias bit is on the line; no physical pad

	Latch bool  // capture window, routed to an aux pin
	Debug uint8 // diagnostic bus, not part of the data path
}

// Lanes are the two sensor data inputs for one cycle.
type Lanes struct {
	Even bool
	Odd  bool
}

// LaneSource answers the core's pins with the lane levels for the same cycle.
type LaneSource interface {
	Lanes(p Pins) Lanes
}

// Core is the sensor clock domain: power sequencer, command and bias
// serializers, frame controller and sample deserializer.
type Core struct {
	cfg config.SensorConfig

	power *power.Sequencer
	cmdQ  *fifo.Queue[uint16]
	biasQ *fifo.Queue[uint16]
	cmd   *shift.Engine
	bias  *shift.Engine
	ctrl  *ctrl.Controller
	acq   *acq.Deserializer
	sink  acq.Sink

	cycle uint64
}

// NewCore creates a sensor-domain core writing captured bytes to sink.
func NewCore(cfg config.SensorConfig, sink acq.Sink) (*Core, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: core needs a byte sink", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seq, err := power.New(cfg.ClockHz, cfg.RailDelays())
	if err != nil {
		return nil, fmt.Errorf("failed to create power sequencer: %w", err)
	}

	c := &Core{
		cfg:   cfg,
		power: seq,
		cmdQ:  fifo.New[uint16](cfg.CmdQueueDepth),
		biasQ: fifo.New[uint16](cfg.BiasQueueDepth),
		acq:   acq.New(acq.Options{DoubleBuffer: cfg.DoubleBuffer}),
		sink:  sink,
	}
	c.cmd = shift.NewCommand(c.cmdQ)
	c.bias = shift.NewBias(c.biasQ)

	c.ctrl, err = ctrl.New(cfg, c.cmdQ, c.biasQ)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame controller: %w", err)
	}
	return c, nil
}

// Step runs one sensor clock cycle. src is asked for the lane levels after
// the cycle's outputs are known; a nil src reads both lanes low.
func (c *Core) Step(src LaneSource) Pins {
	rails := c.power.Step()
	out := c.ctrl.Step(ctrl.Inputs{PowerReady: rails.Ready, CmdDone: c.cmd.Done()})
	co := c.cmd.Step()
	bo := c.bias.Step()

	p := Pins{
		En3V3:      rails.En3V3,
		En2V5:      rails.En2V5,
		EnBoost:    rails.EnBoost,
		Ena:        rails.En2V5,
		Cmd:        co.Bit,
		CmdActive:  co.Active,
		Bias:       bo.Bit,
		BiasActive: bo.Active,
		Latch:      out.Latch,
		Debug:      c.acq.Debug(),
	}

	var l Lanes
	if src != nil {
		l = src.Lanes(p)
	}
	c.acq.Step(out.Latch, l.Even, l.Odd, c.sink)

	c.cycle++
	return p
}

// Reset returns every component to its power-on state and empties the
// sensor-domain queues.
func (c *Core) Reset() {
	c.power.Reset()
	c.cmdQ.Reset()
	c.biasQ.Reset()
	c.cmd.Reset()
	c.bias.Reset()
	c.ctrl.Reset()
	c.acq.Reset()
	c.cycle = 0
}

// Config returns the sensor configuration.
func (c *Core) Config() config.SensorConfig { return c.cfg }

// Cycle returns the number of cycles stepped since reset.
func (c *Core) Cycle() uint64 { return c.cycle }

// Power returns the rail sequencer.
func (c *Core) Power() *power.Sequencer { return c.power }

// Controller returns the frame controller.
func (c *Core) Controller() *ctrl.Controller { return c.ctrl }

// Deserializer returns the sample deserializer.
func (c *Core) Deserializer() *acq.Deserializer { return c.acq }
