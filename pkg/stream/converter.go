package stream

import (
	"bytes"
	"errors"
	"log"
	"time"

	"github.com/itohio/isc0901/pkg/config"
)

// Converter is a function type that turns a byte chunk channel into a frame channel.
type Converter func(in <-chan []byte) <-chan *Frame

// NewConverter creates a converter that assembles frames from the host stream.
func NewConverter(cfg *config.Config, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 4
	}

	return func(in <-chan []byte) <-chan *Frame {
		out := make(chan *Frame, bufSize)

		go func() {
			defer close(out)

			a := NewAssembler(cfg.Sensor)
			for chunk := range in {
				for _, f := range a.Write(chunk) {
					select {
					case out <- f:
					case <-time.After(time.Second):
						log.Printf("Converter output channel full, dropping frame %d", f.Seq)
					}
				}
			}
		}()

		return out
	}
}

// Assembler cuts the host stream into frames. In marker-enabled variants it
// locks onto the marker and relocks whenever a frame does not start with it.
type Assembler struct {
	cfg config.SensorConfig
	buf []byte

	synced  bool
	seq     int
	skipped int
	resyncs int
}

// NewAssembler creates an assembler for the sensor geometry.
func NewAssembler(cfg config.SensorConfig) *Assembler {
	return &Assembler{cfg: cfg, synced: !cfg.Marker}
}

// Write appends p and returns the frames it completed.
func (a *Assembler) Write(p []byte) []*Frame {
	a.buf = append(a.buf, p...)
	n := a.cfg.FrameBytes()

	var frames []*Frame
	for {
		if !a.synced {
			idx := bytes.Index(a.buf, config.MarkerBytes[:])
			if idx < 0 {
				// The last byte may be the first half of a marker.
				if len(a.buf) > 1 {
					a.skipped += len(a.buf) - 1
					a.buf = a.buf[len(a.buf)-1:]
				}
				break
			}
			a.skipped += idx
			a.buf = a.buf[idx:]
			a.synced = true
		}
		if len(a.buf) < n {
			break
		}

		f, err := Decode(a.cfg, a.buf[:n])
		if errors.Is(err, ErrNoMarker) {
			log.Printf("Lost frame sync after frame %d, searching for marker", a.seq)
			a.synced = false
			a.resyncs++
			continue
		}
		if err != nil {
			log.Printf("Failed to decode frame %d: %v", a.seq, err)
			break
		}

		f.Seq = a.seq
		f.Timestamp = time.Now()
		a.seq++
		frames = append(frames, f)
		a.buf = a.buf[n:]
	}

	// Compact so the buffer does not grow without bound.
	if cap(a.buf) > 4*n && len(a.buf) < n {
		a.buf = append([]byte(nil), a.buf...)
	}
	return frames
}

// Buffered returns the number of bytes waiting for a complete frame.
func (a *Assembler) Buffered() int { return len(a.buf) }

// Skipped returns the number of bytes discarded while searching for the marker.
func (a *Assembler) Skipped() int { return a.skipped }

// Resyncs returns the number of times frame sync was lost.
func (a *Assembler) Resyncs() int { return a.resyncs }
