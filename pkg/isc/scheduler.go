package isc

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/itohio/isc0901/pkg/bridge"
	"github.com/itohio/isc0901/pkg/config"
)

const (
	// hostChunk is the host FIFO read size per host cycle.
	hostChunk = 64
	// yieldCycles is how many sensor cycles Run steps before yielding.
	yieldCycles = 1024
)

// Scheduler runs the sensor domain and the host domain against each other.
// The domains share only the bridge.
type Scheduler struct {
	core   *Core
	src    LaneSource
	bridge *bridge.Bridge
	out    io.Writer

	ratio float64 // host cycles per sensor cycle
	acc   float64

	sensorCycles atomic.Uint64
	hostCycles   atomic.Uint64

	buf []byte
}

// NewScheduler creates a scheduler. Host FIFO contents are written to out;
// a nil out leaves them in the FIFO for the caller to drain.
func NewScheduler(cfg *config.Config, core *Core, src LaneSource, b *bridge.Bridge, out io.Writer) (*Scheduler, error) {
	if core == nil || b == nil {
		return nil, fmt.Errorf("%w: scheduler needs a core and a bridge", config.ErrInvalidConfig)
	}
	if cfg.Sensor.ClockHz <= 0 || cfg.Bridge.HostClockHz <= 0 {
		return nil, fmt.Errorf("%w: clock rates must be positive", config.ErrInvalidConfig)
	}
	return &Scheduler{
		core:   core,
		src:    src,
		bridge: b,
		out:    out,
		ratio:  cfg.Bridge.HostClockHz / cfg.Sensor.ClockHz,
		buf:    make([]byte, hostChunk),
	}, nil
}

// SensorCycles returns the number of sensor cycles run, including cycles held in reset.
func (s *Scheduler) SensorCycles() uint64 { return s.sensorCycles.Load() }

// HostCycles returns the number of host cycles run.
func (s *Scheduler) HostCycles() uint64 { return s.hostCycles.Load() }

// sensorStep runs one sensor cycle, holding the core in reset while the
// bridge requests it.
func (s *Scheduler) sensorStep() {
	if s.bridge.InReset() {
		s.core.Reset()
	} else {
		s.core.Step(s.src)
	}
	s.sensorCycles.Add(1)
}

// hostStep runs one host cycle and forwards whatever the host FIFO holds.
func (s *Scheduler) hostStep() error {
	s.bridge.HostStep()
	s.hostCycles.Add(1)
	if s.out == nil {
		return nil
	}
	n := s.bridge.Drain(s.buf)
	if n == 0 {
		return nil
	}
	if _, err := s.out.Write(s.buf[:n]); err != nil {
		return fmt.Errorf("failed to write host stream: %w", err)
	}
	return nil
}

// RunCycles runs n sensor cycles on the calling goroutine, interleaving host
// cycles at the configured clock ratio. The interleaving is deterministic.
func (s *Scheduler) RunCycles(n uint64) error {
	for i := uint64(0); i < n; i++ {
		s.acc += s.ratio
		for s.acc >= 1 {
			s.acc--
			if err := s.hostStep(); err != nil {
				return err
			}
		}
		s.sensorStep()
	}
	return nil
}

// Run steps each domain on its own goroutine until ctx is cancelled or the
// host stream fails. The domains are not paced against each other; bytes the
// host side cannot accept in time are lost at the deserializer.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for i := 1; ctx.Err() == nil; i++ {
			s.sensorStep()
			// Let the host side in on a single CPU
			if i%yieldCycles == 0 {
				runtime.Gosched()
			}
		}
		return nil
	})

	g.Go(func() error {
		for ctx.Err() == nil {
			if err := s.hostStep(); err != nil {
				return err
			}
			if s.bridge.Pending() == 0 {
				runtime.Gosched()
			}
		}
		return nil
	})

	return g.Wait()
}
