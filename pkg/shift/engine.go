package shift

import "fmt"

const (
	// CommandWidth is the width of one sensor command word.
	CommandWidth = 14
	// BiasWidth is the width of one bias sample.
	BiasWidth = 7
)

// Source is the read side of the queue feeding an Engine.
type Source interface {
	CanRead() bool
	Pop() (uint16, bool)
}

// Output is the state of the serial output pins for one cycle.
type Output struct {
	Bit    bool // serial data line
	Active bool // a word bit was driven this cycle
	Done   bool // source empty and no word in flight after this cycle
}

// Engine is a queue-backed bit-serial transmitter.
//
// When idle it loads the head word and drives its first bit in the same cycle.
// Each following cycle drives the next bit. After width bits the next queued
// word (if any) is loaded on the very next cycle, so consecutive words are
// sent back to back.
type Engine struct {
	width uint
	order Order
	src   Source

	word   uint32
	last   uint32 // last loaded word, for diagnostics
	have   bool
	bitCtr uint
}

// New creates an engine shifting width-bit words from src in the given order.
func New(src Source, width uint, order Order) (*Engine, error) {
	if src == nil {
		return nil, fmt.Errorf("shift: nil source")
	}
	if width == 0 || width > 16 {
		return nil, fmt.Errorf("shift: unsupported word width %d", width)
	}
	return &Engine{width: width, order: order, src: src}, nil
}

// NewCommand creates the command serializer: 14-bit words, MSB first.
func NewCommand(src Source) *Engine {
	return &Engine{width: CommandWidth, order: MSBFirst, src: src}
}

// NewBias creates the bias serializer: 7-bit words, LSB first.
func NewBias(src Source) *Engine {
	return &Engine{width: BiasWidth, order: LSBFirst, src: src}
}

// Width returns the word width in bits.
func (e *Engine) Width() uint { return e.width }

// Order returns the configured bit order.
func (e *Engine) Order() Order { return e.order }

// Done reports whether the source is empty and no partial word is in flight.
func (e *Engine) Done() bool {
	return !e.have && !e.src.CanRead()
}

// Word returns the most recently loaded word.
func (e *Engine) Word() uint16 { return uint16(e.last) }

// Step advances the engine by one cycle.
func (e *Engine) Step() Output {
	if !e.have {
		w, ok := e.src.Pop()
		if !ok {
			return Output{Done: true}
		}
		e.word = uint32(w) & Mask(e.width)
		e.last = e.word
		e.have = true
		e.bitCtr = 0
	}

	out := Output{Bit: Extremal(e.word, e.width, e.order), Active: true}
	e.word = Advance(e.word, e.width, e.order)
	e.bitCtr++
	if e.bitCtr == e.width {
		e.have = false
		e.bitCtr = 0
	}

	out.Done = e.Done()
	return out
}

// Reset drops the word in flight. Queued words are left to the queue owner.
func (e *Engine) Reset() {
	e.word = 0
	e.have = false
	e.bitCtr = 0
}
