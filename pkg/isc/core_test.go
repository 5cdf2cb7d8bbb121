package isc_test

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/isc0901/pkg/acq"
	"github.com/itohio/isc0901/pkg/bridge"
	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/ctrl"
	"github.com/itohio/isc0901/pkg/fifo"
	"github.com/itohio/isc0901/pkg/isc"
	"github.com/itohio/isc0901/pkg/sensor"
)

func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Sensor.RailDelaysUS = []float64{1, 1, 1}
	cfg.Sensor.Columns = 8
	cfg.Sensor.Rows = 3
	cfg.Sensor.CmdToLineStartCycles = 100
	cfg.Sensor.LineStartOffsetCycles = 40
	require.NoError(t, cfg.Validate())
	return cfg
}

// coords encodes frame, row and column so every pixel is distinct.
func coords(frame, x, y int) uint16 {
	return uint16(frame<<12 | y<<6 | x)
}

func expectedFrame(cfg config.SensorConfig, p sensor.Pixels, frame int) []byte {
	var out []byte
	for y := 0; y < cfg.Rows; y++ {
		for x := 0; x < cfg.Width(); x += 2 {
			b := acq.Sample{Even: p.Pixel(frame, x, y), Odd: p.Pixel(frame, x+1, y)}.Bytes()
			out = append(out, b[:]...)
		}
	}
	return out
}

func newSystem(t *testing.T, cfg *config.Config, p sensor.Pattern, out *bytes.Buffer) (*isc.Scheduler, *isc.Core, *sensor.Sensor) {
	t.Helper()
	b, err := bridge.New(cfg.Bridge)
	require.NoError(t, err)
	core, err := isc.NewCore(cfg.Sensor, b)
	require.NoError(t, err)
	s, err := sensor.New(cfg.Sensor, p)
	require.NoError(t, err)
	sched, err := isc.NewScheduler(cfg, core, s, b, out)
	require.NoError(t, err)
	return sched, core, s
}

func TestNewCore_Invalid(t *testing.T) {
	cfg := smallConfig(t)
	_, err := isc.NewCore(cfg.Sensor, nil)
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))

	cfg.Sensor.Rows = 0
	_, err = isc.NewCore(cfg.Sensor, fifo.New[byte](4))
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestCore_PinsFollowRails(t *testing.T) {
	cfg := smallConfig(t)
	core, err := isc.NewCore(cfg.Sensor, fifo.New[byte](64))
	require.NoError(t, err)

	ready := core.Power().ReadyCycle()
	for i := uint64(0); i < ready; i++ {
		p := core.Step(nil)
		require.Equal(t, p.En2V5, p.Ena)
		require.False(t, p.Latch)
		require.False(t, p.CmdActive)
	}
	p := core.Step(nil)
	assert.True(t, p.En3V3)
	assert.True(t, p.EnBoost)
	assert.True(t, p.Ena)
	assert.Equal(t, ctrl.StateInit, core.Controller().State())
}

func TestCore_Reset(t *testing.T) {
	cfg := smallConfig(t)
	core, err := isc.NewCore(cfg.Sensor, fifo.New[byte](64))
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		core.Step(nil)
	}
	core.Reset()
	assert.Equal(t, uint64(0), core.Cycle())
	assert.False(t, core.Power().Ready())
	assert.Equal(t, ctrl.StatePowerup, core.Controller().State())
	assert.False(t, core.Deserializer().HaveData())
}

func TestScheduler_EndToEnd(t *testing.T) {
	cfg := smallConfig(t)
	p := sensor.Pixels{Fn: coords, Width: cfg.Sensor.Width()}
	var out bytes.Buffer
	sched, core, s := newSystem(t, cfg, p, &out)

	for core.Controller().Frames() < 2 {
		require.NoError(t, sched.RunCycles(100))
		require.Less(t, sched.SensorCycles(), uint64(100000))
	}
	// Let the host side flush the last samples.
	require.NoError(t, sched.RunCycles(100))

	frameBytes := cfg.Sensor.FrameBytes()
	require.GreaterOrEqual(t, out.Len(), 2*frameBytes)

	want := append(expectedFrame(cfg.Sensor, p, 0), expectedFrame(cfg.Sensor, p, 1)...)
	if diff := cmp.Diff(want, out.Bytes()[:2*frameBytes]); diff != "" {
		t.Errorf("host stream mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, config.DefaultCommands, s.Commands())
	assert.Equal(t, uint64(0), s.BadBias())

	// Host cycles track the clock ratio.
	ratio := float64(sched.HostCycles()) / float64(sched.SensorCycles())
	assert.InDelta(t, cfg.Bridge.HostClockHz/cfg.Sensor.ClockHz, ratio, 0.01)
}

func TestScheduler_MarkerVariant(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Sensor.Marker = true
	p := sensor.Pixels{Fn: sensor.Constant(0x0123), Width: cfg.Sensor.Width(), Marker: true}
	var out bytes.Buffer
	sched, core, _ := newSystem(t, cfg, p, &out)

	for core.Controller().Frames() < 1 {
		require.NoError(t, sched.RunCycles(100))
	}
	require.NoError(t, sched.RunCycles(100))

	require.GreaterOrEqual(t, out.Len(), cfg.Sensor.FrameBytes())
	assert.Equal(t, config.MarkerBytes[:], out.Bytes()[:2])
	assert.Equal(t, []byte{0x23, 0x01}, out.Bytes()[2:4])
}

func TestScheduler_HostBackpressure(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Bridge.Depth = 4
	cfg.Bridge.HostFIFODepth = 8
	p := sensor.Pixels{Fn: coords, Width: cfg.Sensor.Width()}

	b, err := bridge.New(cfg.Bridge)
	require.NoError(t, err)
	core, err := isc.NewCore(cfg.Sensor, b)
	require.NoError(t, err)
	s, err := sensor.New(cfg.Sensor, p)
	require.NoError(t, err)
	sched, err := isc.NewScheduler(cfg, core, s, b, nil)
	require.NoError(t, err)

	for core.Controller().Frames() < 1 {
		require.NoError(t, sched.RunCycles(100))
	}

	// Nothing drains the host FIFO: it holds exactly its capacity and the
	// cross queue is full; the rest was lost at the deserializer.
	assert.Equal(t, 8, b.HostFIFO().Len())
	assert.Equal(t, 4, b.Pending())
	assert.Greater(t, b.Stalled(), uint64(0))

	buf := make([]byte, 8)
	n := b.Drain(buf)
	want := expectedFrame(cfg.Sensor, p, 0)[:8]
	assert.Equal(t, want, buf[:n])
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestScheduler_Run(t *testing.T) {
	cfg := smallConfig(t)
	b, err := bridge.New(cfg.Bridge)
	require.NoError(t, err)
	core, err := isc.NewCore(cfg.Sensor, b)
	require.NoError(t, err)
	s, err := sensor.New(cfg.Sensor, sensor.SHR{})
	require.NoError(t, err)

	var out syncBuffer
	sched, err := isc.NewScheduler(cfg, core, s, b, &out)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	require.Eventually(t, func() bool { return out.Len() > 0 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Greater(t, sched.SensorCycles(), uint64(0))
	assert.Greater(t, sched.HostCycles(), uint64(0))
}

// TestScheduler_RunSingleCPU checks that both domains make progress when they
// share one CPU.
func TestScheduler_RunSingleCPU(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	cfg := smallConfig(t)
	b, err := bridge.New(cfg.Bridge)
	require.NoError(t, err)
	core, err := isc.NewCore(cfg.Sensor, b)
	require.NoError(t, err)
	s, err := sensor.New(cfg.Sensor, sensor.SHR{})
	require.NoError(t, err)

	var out syncBuffer
	sched, err := isc.NewScheduler(cfg, core, s, b, &out)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	require.Eventually(t, func() bool { return out.Len() >= cfg.Sensor.FrameBytes() }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Greater(t, sched.HostCycles(), uint64(0))
}

func TestScheduler_RunWriteError(t *testing.T) {
	cfg := smallConfig(t)
	b, err := bridge.New(cfg.Bridge)
	require.NoError(t, err)
	core, err := isc.NewCore(cfg.Sensor, b)
	require.NoError(t, err)
	s, err := sensor.New(cfg.Sensor, sensor.SHR{})
	require.NoError(t, err)
	sched, err := isc.NewScheduler(cfg, core, s, b, failingWriter{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = sched.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write host stream")
}

// TestScheduler_NominalFrame runs the full-size sensor with datasheet rail
// delays through one frame.
func TestScheduler_NominalFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("nominal frame simulation")
	}
	cfg := config.Default()
	p := sensor.Pixels{Fn: sensor.Gradient(cfg.Sensor.Width()), Width: cfg.Sensor.Width()}
	var out bytes.Buffer
	sched, core, s := newSystem(t, cfg, p, &out)

	// Bias words decoded by the end of frame 0; the next frame's injection
	// starts before the stepping loop below stops.
	var frameBias uint64
	frameEnded := false
	core.Controller().SetObserver(func(from, to ctrl.State, cycle uint64) {
		if from == ctrl.StateInterFrame && !frameEnded {
			frameBias = s.BiasWords()
			frameEnded = true
		}
	})

	for core.Controller().Frames() < 1 {
		require.NoError(t, sched.RunCycles(10000))
	}
	require.NoError(t, sched.RunCycles(1000))
	require.True(t, frameEnded)

	frameBytes := cfg.Sensor.FrameBytes()
	require.Equal(t, 262*676, frameBytes)
	require.GreaterOrEqual(t, out.Len(), frameBytes)
	if diff := cmp.Diff(expectedFrame(cfg.Sensor, p, 0), out.Bytes()[:frameBytes]); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(262*338), frameBias)
	assert.GreaterOrEqual(t, s.BiasWords(), frameBias)
}
