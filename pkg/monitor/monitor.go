// Package monitor keeps rolling statistics of the live frame stream.
package monitor

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/stream"
)

var _ FrameMonitor = (*Monitor)(nil)

// Stats summarises one frame.
type Stats struct {
	Seq       int
	Timestamp time.Time
	Min       uint16
	Max       uint16
	Mean      float64
	StdDev    float64
	Center    uint16 // value of the centre pixel
	Dropped   int    // sequence numbers missing before this frame
}

// FrameMonitor processes frames, maintains a statistics window and notifies listeners.
type FrameMonitor interface {
	ProcessFrames(input <-chan *stream.Frame)
	Stats() []Stats                                                     // Statistics window, oldest first
	Drift() []float64                                                   // Mean change per second, n-1 values for n stats
	Latest() *stream.Frame                                              // Most recent frame
	OnUpdate(func(frame *stream.Frame, stats []Stats, drift []float64)) // Register callback for updates
}

// Monitor implements FrameMonitor.
// Stats and drift are FIFO buffers trimmed by timestamp, not count.
// drift[i] corresponds to the change from stats[i] to stats[i+1].
type Monitor struct {
	stats  []Stats
	drift  []float64
	latest *stream.Frame

	mu sync.RWMutex

	callbacks []func(frame *stream.Frame, stats []Stats, drift []float64)
	cbMu      sync.RWMutex

	windowDuration time.Duration

	// Set when the input channel closes; suppresses further callbacks
	shutdown bool
}

// New creates a new Monitor instance.
func New(cfg *config.Config) *Monitor {
	return &Monitor{
		stats:          make([]Stats, 0),
		drift:          make([]float64, 0),
		windowDuration: time.Duration(cfg.Monitor.WindowSeconds * float64(time.Second)),
	}
}

// Compute returns the statistics of f.
func Compute(f *stream.Frame) Stats {
	s := Stats{Seq: f.Seq, Timestamp: f.Timestamp}
	if len(f.Pix) == 0 {
		return s
	}

	vals := make([]float64, len(f.Pix))
	s.Min, s.Max = f.Pix[0], f.Pix[0]
	for i, v := range f.Pix {
		vals[i] = float64(v)
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	if len(vals) < 2 {
		s.StdDev = 0
	}
	s.Center = f.At(f.Width/2, f.Height/2)
	return s
}

// ProcessFrames consumes frames until the input channel closes.
// When the input channel closes, it sets the shutdown flag to prevent further callbacks.
func (m *Monitor) ProcessFrames(input <-chan *stream.Frame) {
	for f := range input {
		m.processFrame(f)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

func (m *Monitor) processFrame(f *stream.Frame) {
	s := Compute(f)

	m.mu.Lock()
	if n := len(m.stats); n > 0 {
		prev := m.stats[n-1]
		if gap := s.Seq - prev.Seq - 1; gap > 0 {
			s.Dropped = gap
		}
		if dt := s.Timestamp.Sub(prev.Timestamp).Seconds(); dt > 0 {
			m.drift = append(m.drift, (s.Mean-prev.Mean)/dt)
		}
	}
	m.stats = append(m.stats, s)
	m.latest = f

	// Remove stats outside the time window
	cutoff := s.Timestamp.Add(-m.windowDuration)
	cut := 0
	for cut < len(m.stats)-1 && !m.stats[cut].Timestamp.After(cutoff) {
		cut++
	}
	if cut > 0 {
		m.stats = m.stats[cut:]
	}
	// Keep n-1 drift values for n stats
	if extra := len(m.drift) - max(len(m.stats)-1, 0); extra > 0 {
		m.drift = m.drift[extra:]
	}

	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks()
	}
}

// Stats returns a copy of the statistics window.
func (m *Monitor) Stats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Stats, len(m.stats))
	copy(result, m.stats)
	return result
}

// Drift returns a copy of the mean drift buffer.
func (m *Monitor) Drift() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]float64, len(m.drift))
	copy(result, m.drift)
	return result
}

// Latest returns the most recent frame, or nil.
func (m *Monitor) Latest() *stream.Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// OnUpdate registers a callback invoked after every frame.
// The callback should copy data quickly and return as fast as possible.
func (m *Monitor) OnUpdate(callback func(frame *stream.Frame, stats []Stats, drift []float64)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown resets the shutdown flag, allowing callbacks to be sent again.
// This should be called before starting a new stream.
func (m *Monitor) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

// notifyCallbacks invokes all registered callbacks with copies of the current data.
func (m *Monitor) notifyCallbacks() {
	m.mu.RLock()
	frame := m.latest
	statsCopy := make([]Stats, len(m.stats))
	copy(statsCopy, m.stats)
	driftCopy := make([]float64, len(m.drift))
	copy(driftCopy, m.drift)
	m.mu.RUnlock()

	m.cbMu.RLock()
	callbacks := make([]func(frame *stream.Frame, stats []Stats, drift []float64), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	// Invoke callbacks without holding any locks
	for _, cb := range callbacks {
		if cb != nil {
			cb(frame, statsCopy, driftCopy)
		}
	}
}
