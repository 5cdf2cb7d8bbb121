// Package acq implements the two-lane sample deserializer.
//
// While the capture window is open the deserializer shifts one bit per lane per
// cycle into two accumulators. Every SampleWidth cycles the accumulators are
// latched, and the emit phase writes the pair as four bytes:
// even-low, even-high, odd-low, odd-high.
package acq

import (
	"github.com/itohio/isc0901/pkg/shift"
)

const (
	// SampleWidth is the width of one pixel sample in bits.
	SampleWidth = 14
	// BytesPerSample is the number of bytes emitted per even/odd pair.
	BytesPerSample = 4
)

// Sample is one even/odd pixel pair in natural bit order.
type Sample struct {
	Even uint16
	Odd  uint16
}

// Bytes returns the wire encoding of s.
func (s Sample) Bytes() [BytesPerSample]byte {
	return [BytesPerSample]byte{
		byte(s.Even), byte(s.Even>>8) & 0x3f,
		byte(s.Odd), byte(s.Odd>>8) & 0x3f,
	}
}

// Decode reassembles a sample from its four wire bytes.
func Decode(b [BytesPerSample]byte) Sample {
	return Sample{
		Even: uint16(b[0]) | uint16(b[1]&0x3f)<<8,
		Odd:  uint16(b[2]) | uint16(b[3]&0x3f)<<8,
	}
}

// Sink is the write side of the output byte queue.
type Sink interface {
	CanWrite() bool
	Push(b byte) bool
}

// Options tune the deserializer.
type Options struct {
	// DoubleBuffer keeps one extra captured sample while the previous one is
	// still being emitted. Without it a capture that completes before the
	// emission finishes overwrites the unsent sample.
	DoubleBuffer bool
}

type emitPhase uint8

const (
	evenLow emitPhase = iota
	evenHigh
	oddLow
	oddHigh
)

// Deserializer is the two-lane bit accumulator and byte emitter.
type Deserializer struct {
	opts Options

	// capture
	accEven, accOdd uint32
	count           uint

	// emit
	outEven, outOdd uint32 // latched accumulators, arrival-reversed
	haveData        bool
	phase           emitPhase

	pendEven, pendOdd uint32
	havePending       bool

	captured uint64
	emitted  uint64
}

// New creates a deserializer.
func New(opts Options) *Deserializer {
	return &Deserializer{opts: opts}
}

// Step advances the deserializer by one cycle.
//
// The emit phase runs on the registers latched in earlier cycles, then the
// capture phase samples the lanes. With latch deasserted the accumulators and
// the cycle counter are held at zero, discarding any partial sample.
func (d *Deserializer) Step(latch, even, odd bool, dst Sink) {
	d.emit(dst)

	if !latch {
		d.accEven, d.accOdd, d.count = 0, 0, 0
		return
	}

	mask := shift.Mask(SampleWidth)
	d.accEven = (d.accEven<<1 | bit(even)) & mask
	d.accOdd = (d.accOdd<<1 | bit(odd)) & mask
	d.count++
	if d.count < SampleWidth {
		return
	}

	switch {
	case d.haveData && d.opts.DoubleBuffer:
		d.pendEven, d.pendOdd = d.accEven, d.accOdd
		d.havePending = true
	default:
		// Overwrites a sample that has not been fully emitted.
		d.outEven, d.outOdd = d.accEven, d.accOdd
		d.haveData = true
	}
	d.captured++
	d.accEven, d.accOdd, d.count = 0, 0, 0
}

func (d *Deserializer) emit(dst Sink) {
	if !d.haveData || dst == nil || !dst.CanWrite() {
		return
	}

	var b byte
	switch d.phase {
	case evenLow:
		b = byte(shift.Reverse(d.outEven, SampleWidth))
	case evenHigh:
		b = byte(shift.Reverse(d.outEven, SampleWidth) >> 8)
	case oddLow:
		b = byte(shift.Reverse(d.outOdd, SampleWidth))
	case oddHigh:
		b = byte(shift.Reverse(d.outOdd, SampleWidth) >> 8)
	}
	if !dst.Push(b) {
		return
	}
	d.emitted++

	if d.phase != oddHigh {
		d.phase++
		return
	}
	d.phase = evenLow
	d.haveData = false
	if d.havePending {
		d.outEven, d.outOdd = d.pendEven, d.pendOdd
		d.havePending = false
		d.haveData = true
	}
}

// HaveData reports whether a latched sample is waiting to be emitted.
func (d *Deserializer) HaveData() bool { return d.haveData }

// Pending returns the latched sample in natural bit order.
func (d *Deserializer) Pending() Sample {
	return Sample{
		Even: uint16(shift.Reverse(d.outEven, SampleWidth)),
		Odd:  uint16(shift.Reverse(d.outOdd, SampleWidth)),
	}
}

// Debug mirrors the low byte of the bit-reversed even-lane accumulator on the
// 8-bit diagnostic bus. It is not part of the data path.
func (d *Deserializer) Debug() uint8 {
	return uint8(shift.Reverse(d.accEven, SampleWidth))
}

// Captured returns the number of samples latched since creation.
func (d *Deserializer) Captured() uint64 { return d.captured }

// Emitted returns the number of bytes written to the sink since creation.
func (d *Deserializer) Emitted() uint64 { return d.emitted }

// Reset returns the deserializer to its idle state.
func (d *Deserializer) Reset() {
	*d = Deserializer{opts: d.opts}
}

func bit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
