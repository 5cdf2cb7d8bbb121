// Package bridge moves captured bytes from the sensor clock domain to the
// host clock domain through a bounded queue.
package bridge

import (
	"fmt"
	"sync/atomic"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/fifo"
)

// Bridge is the clock-domain crossing between the sensor and host domains.
//
// The sensor domain is the only writer (CanWrite, Push, InReset). The host
// domain is the only reader (HostStep, Drain, HostFIFO). The two sides share
// nothing but the buffered channel and the reset flag, so each side may run
// on its own goroutine.
type Bridge struct {
	cross chan byte
	host  *fifo.Queue[byte]

	resetCycles int
	resetLeft   int // host side only
	inReset     atomic.Bool

	transferred uint64
	stalled     uint64
	discarded   uint64
}

// New creates a bridge and arms the startup reset window.
func New(cfg config.BridgeConfig) (*Bridge, error) {
	if cfg.Depth <= 0 || cfg.HostFIFODepth <= 0 {
		return nil, fmt.Errorf("%w: bridge depths must be positive", config.ErrInvalidConfig)
	}
	if cfg.ResetCycles < 0 {
		return nil, fmt.Errorf("%w: negative bridge reset window", config.ErrInvalidConfig)
	}
	b := &Bridge{
		cross:       make(chan byte, cfg.Depth),
		host:        fifo.New[byte](cfg.HostFIFODepth),
		resetCycles: cfg.ResetCycles,
	}
	b.Reset()
	return b, nil
}

// CanWrite reports whether the cross-domain queue has room. Sensor domain.
func (b *Bridge) CanWrite() bool { return len(b.cross) < cap(b.cross) }

// Push offers one byte to the cross-domain queue. It never blocks and returns
// false when the queue is full. Sensor domain.
func (b *Bridge) Push(v byte) bool {
	select {
	case b.cross <- v:
		return true
	default:
		return false
	}
}

// InReset reports whether the host domain holds the sensor domain in reset.
func (b *Bridge) InReset() bool { return b.inReset.Load() }

// HostStep runs one host clock cycle. During the reset window it discards
// residual bytes from the cross-domain queue. Afterwards it moves one byte
// when the queue has data and the host FIFO has space. It reports whether a
// byte was transferred.
func (b *Bridge) HostStep() bool {
	if b.resetLeft > 0 {
		for drained := false; !drained; {
			select {
			case <-b.cross:
				b.discarded++
			default:
				drained = true
			}
		}
		b.resetLeft--
		if b.resetLeft == 0 {
			b.inReset.Store(false)
		}
		return false
	}

	if len(b.cross) == 0 {
		return false
	}
	if !b.host.CanWrite() {
		b.stalled++
		return false
	}
	select {
	case v := <-b.cross:
		b.host.Push(v)
		b.transferred++
		return true
	default:
		return false
	}
}

// HostFIFO returns the host-side FIFO. Host domain.
func (b *Bridge) HostFIFO() *fifo.Queue[byte] { return b.host }

// Drain moves up to len(p) bytes out of the host FIFO. Host domain.
func (b *Bridge) Drain(p []byte) int { return b.host.Drain(p) }

// Pending returns the number of bytes waiting in the cross-domain queue.
func (b *Bridge) Pending() int { return len(b.cross) }

// Transferred returns the number of bytes moved into the host FIFO.
func (b *Bridge) Transferred() uint64 { return b.transferred }

// Stalled returns the number of host cycles lost to a full host FIFO.
func (b *Bridge) Stalled() uint64 { return b.stalled }

// Discarded returns the number of residual bytes dropped by reset windows.
func (b *Bridge) Discarded() uint64 { return b.discarded }

// Reset re-arms the startup reset window and clears the host FIFO. Host domain.
func (b *Bridge) Reset() {
	b.host.Reset()
	b.resetLeft = b.resetCycles
	b.inReset.Store(b.resetCycles > 0)
}
