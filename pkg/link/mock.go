package link

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/itohio/isc0901/pkg/bridge"
	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/isc"
	"github.com/itohio/isc0901/pkg/sensor"
)

// Mock runs the capture core against a simulated sensor and delivers the
// resulting host byte stream.
type Mock struct {
	cfg *config.Config

	chunks    chan []byte
	mu        sync.RWMutex
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	connected bool

	skip   int // leading bytes still to drop
	resets int
	sensor *sensor.Sensor
}

// NewMock creates a new simulated device instance.
func NewMock(cfg *config.Config) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}

	return &Mock{
		cfg:       cfg,
		chunks:    make(chan []byte, DefaultBufferSize),
		connected: false,
	}
}

// Connect builds the simulation and starts running it.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.skip = m.cfg.Mock.SkipBytes
	if err := m.start(); err != nil {
		return err
	}
	m.connected = true
	log.Printf("Simulated %s connected (pattern %s)", m.cfg.Sensor.Variant, m.cfg.Mock.Pattern)

	return nil
}

// Close stops the simulation and closes the chunk channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.stop()
	m.connected = false
	close(m.chunks)

	return nil
}

// Chunks returns the channel for reading the byte stream.
func (m *Mock) Chunks() <-chan []byte {
	return m.chunks
}

// Reset rebuilds the simulation from power-on and discards undelivered bytes.
func (m *Mock) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}

	m.stop()
	drain(m.chunks)
	m.skip = 0
	m.resets++
	return m.start()
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Resets returns the number of Reset calls served.
func (m *Mock) Resets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resets
}

// Sensor returns the simulated sensor of the current run. Only safe to
// inspect after Close.
func (m *Mock) Sensor() *sensor.Sensor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sensor
}

// start builds a fresh system and runs it. Called with mu held.
func (m *Mock) start() error {
	pattern, err := sensor.NewPattern(m.cfg)
	if err != nil {
		return fmt.Errorf("failed to create pattern: %w", err)
	}
	b, err := bridge.New(m.cfg.Bridge)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}
	core, err := isc.NewCore(m.cfg.Sensor, b)
	if err != nil {
		return fmt.Errorf("failed to create core: %w", err)
	}
	s, err := sensor.New(m.cfg.Sensor, pattern)
	if err != nil {
		return fmt.Errorf("failed to create sensor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &chunkWriter{ctx: ctx, out: m.chunks, skip: m.skip}
	sched, err := isc.NewScheduler(m.cfg, core, s, b, w)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	m.sensor = s
	m.cancel = cancel

	m.wg.Add(1)
	go m.run(ctx, sched)
	return nil
}

// stop cancels the running simulation and waits for it. Called with mu held.
func (m *Mock) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.wg.Wait()
}

func (m *Mock) run(ctx context.Context, sched *isc.Scheduler) {
	defer m.wg.Done()

	if m.cfg.Mock.Concurrent {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Simulation stopped: %v", err)
		}
		return
	}

	chunk := uint64(m.cfg.Mock.ChunkSize)
	for ctx.Err() == nil {
		if err := sched.RunCycles(chunk); err != nil {
			if ctx.Err() == nil {
				log.Printf("Simulation stopped: %v", err)
			}
			return
		}
	}
}

// chunkWriter forwards scheduler output to the chunk channel, blocking until
// the reader accepts it.
type chunkWriter struct {
	ctx  context.Context
	out  chan<- []byte
	skip int
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	n := len(p)
	if w.skip > 0 {
		k := min(w.skip, len(p))
		w.skip -= k
		p = p[k:]
	}
	if len(p) == 0 {
		return n, nil
	}

	chunk := make([]byte, len(p))
	copy(chunk, p)
	select {
	case w.out <- chunk:
		return n, nil
	case <-w.ctx.Done():
		return 0, w.ctx.Err()
	}
}
