// Package ctrl implements the sensor frame controller: it waits for the power
// rails, sends the configuration command stream, triggers bias injection and
// times the line and frame capture windows.
package ctrl

import (
	"fmt"

	"github.com/itohio/isc0901/pkg/config"
)

// State is a frame controller state.
type State int

const (
	StatePowerup State = iota
	StateInit
	StateSendCmd
	StateSendCmdStrobe
	StateSendCmdAdvance
	StateWaitFrameStart
	StateReadLine
	StateWaitLine
	StateInterFrame
)

var stateNames = [...]string{
	StatePowerup:        "POWERUP",
	StateInit:           "INIT",
	StateSendCmd:        "SEND-CMD",
	StateSendCmdStrobe:  "SEND-CMD-STROBE",
	StateSendCmdAdvance: "SEND-CMD-ADVANCE",
	StateWaitFrameStart: "WAIT-FRAME-START",
	StateReadLine:       "READ-LINE",
	StateWaitLine:       "WAIT-LINE",
	StateInterFrame:     "INTER-FRAME",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Writer is the write side of a word queue feeding a serializer.
type Writer interface {
	CanWrite() bool
	Push(v uint16) bool
}

// Inputs are the controller inputs sampled at the start of a cycle.
type Inputs struct {
	PowerReady bool // rail sequencer finished
	CmdDone    bool // command serializer idle and queue empty
}

// Output is the controller output for one cycle.
type Output struct {
	State State
	Latch bool // capture window open
}

// Observer is called on every state transition. cycle is the index of the
// first cycle spent in the new state.
type Observer func(from, to State, cycle uint64)

// Controller is the frame timing state machine. Step advances it by one
// sensor clock cycle.
type Controller struct {
	cfg      config.SensorConfig
	cmd      Writer
	bias     Writer
	observer Observer

	lineCycles       int
	interFrameCycles int
	biasPerLine      int

	state  State
	ctr    int
	row    int
	cmdIdx int
	cycle  uint64

	biasLeft  int
	biasPhase bool

	frames     uint64
	lines      uint64
	cmdWrites  uint64
	biasWrites uint64
}

// New creates a controller writing command words to cmd and bias words to bias.
func New(cfg config.SensorConfig, cmd, bias Writer) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cmd == nil || bias == nil {
		return nil, fmt.Errorf("%w: controller needs command and bias queues", config.ErrInvalidConfig)
	}
	return &Controller{
		cfg:              cfg,
		cmd:              cmd,
		bias:             bias,
		lineCycles:       cfg.LineCycles(),
		interFrameCycles: cfg.InterFrameCycles(),
		biasPerLine:      cfg.BiasWrites(),
	}, nil
}

// SetObserver installs a transition hook. Pass nil to remove it.
func (c *Controller) SetObserver(o Observer) { c.observer = o }

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Row returns the row being read or waited for.
func (c *Controller) Row() int { return c.row }

// Cycle returns the number of cycles stepped since reset.
func (c *Controller) Cycle() uint64 { return c.cycle }

// Frames returns the number of completed frames.
func (c *Controller) Frames() uint64 { return c.frames }

// Lines returns the number of completed capture windows.
func (c *Controller) Lines() uint64 { return c.lines }

// CommandWrites returns the number of command words written.
func (c *Controller) CommandWrites() uint64 { return c.cmdWrites }

// BiasWrites returns the number of bias words written.
func (c *Controller) BiasWrites() uint64 { return c.biasWrites }

// BiasActive reports whether a bias injection is in progress.
func (c *Controller) BiasActive() bool { return c.biasLeft > 0 }

// Step advances the controller by one cycle.
func (c *Controller) Step(in Inputs) Output {
	out := Output{State: c.state}

	c.stepBias()

	switch c.state {
	case StatePowerup:
		if in.PowerReady {
			c.enter(StateInit)
		}

	case StateInit:
		c.ctr++
		if c.ctr >= c.cfg.InitCycles {
			c.enter(StateSendCmd)
		}

	case StateSendCmd:
		// Stalls until the queue has room; every word is written exactly once.
		if c.cmd.CanWrite() && c.cmd.Push(c.cfg.Commands[c.cmdIdx]) {
			c.cmdWrites++
			c.enter(StateSendCmdStrobe)
		}

	case StateSendCmdStrobe:
		c.enter(StateSendCmdAdvance)

	case StateSendCmdAdvance:
		if c.cmdIdx == len(c.cfg.Commands)-1 {
			c.cmdIdx = 0
			c.row = 0
			c.enter(StateWaitFrameStart)
		} else {
			c.cmdIdx++
			c.enter(StateSendCmd)
		}

	case StateWaitFrameStart:
		if !in.CmdDone {
			break
		}
		c.ctr++
		if c.ctr == c.cfg.CmdToLineStartCycles-c.cfg.BiasToLatchCycles {
			c.triggerBias()
		}
		if c.ctr >= c.cfg.CmdToLineStartCycles {
			c.enter(StateReadLine)
		}

	case StateReadLine:
		out.Latch = true
		c.ctr++
		if c.ctr == c.lineCycles {
			c.lines++
			if c.row == c.cfg.Rows-1 {
				c.row = 0
				c.cmdIdx = 0
				c.enter(StateInterFrame)
			} else {
				c.row++
				c.enter(StateWaitLine)
			}
		}

	case StateWaitLine:
		c.ctr++
		if c.ctr == c.cfg.LineStartOffsetCycles-c.cfg.BiasToLatchCycles {
			c.triggerBias()
		}
		if c.ctr == c.cfg.LineStartOffsetCycles {
			c.enter(StateReadLine)
		}

	case StateInterFrame:
		c.ctr++
		if c.ctr == c.interFrameCycles {
			c.frames++
			c.enter(StateInit)
		}
	}

	c.cycle++
	return out
}

// stepBias runs one cycle of the bias injection sub-process: a write cycle
// that waits for queue space, followed by one idle cycle.
func (c *Controller) stepBias() {
	if c.biasLeft == 0 {
		return
	}
	if c.biasPhase {
		c.biasPhase = false
		return
	}
	if c.bias.CanWrite() && c.bias.Push(uint16(c.cfg.BiasValue)) {
		c.biasWrites++
		c.biasLeft--
		c.biasPhase = true
	}
}

// triggerBias starts a new injection of cols-1 writes. A trigger arriving
// while a previous injection is still running restarts the count.
func (c *Controller) triggerBias() {
	c.biasLeft = c.biasPerLine
	c.biasPhase = false
}

func (c *Controller) enter(to State) {
	from := c.state
	c.state = to
	c.ctr = 0
	if c.observer != nil {
		c.observer(from, to, c.cycle+1)
	}
}

// Reset returns the controller to StatePowerup. Counters are cleared.
func (c *Controller) Reset() {
	obs := c.observer
	*c = Controller{
		cfg:              c.cfg,
		cmd:              c.cmd,
		bias:             c.bias,
		observer:         obs,
		lineCycles:       c.lineCycles,
		interFrameCycles: c.interFrameCycles,
		biasPerLine:      c.biasPerLine,
	}
}
