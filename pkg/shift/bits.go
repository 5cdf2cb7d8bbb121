// Package shift holds fixed-width bit-order helpers and the serial output shift engine.
package shift

// Order selects which end of a word leaves the shift register first.
type Order int

const (
	// MSBFirst shifts the most significant bit out first (command stream).
	MSBFirst Order = iota
	// LSBFirst shifts the least significant bit out first (bias stream).
	LSBFirst
)

func (o Order) String() string {
	switch o {
	case MSBFirst:
		return "msb-first"
	case LSBFirst:
		return "lsb-first"
	default:
		return "unknown"
	}
}

// Mask returns a value with the low width bits set.
func Mask(width uint) uint32 {
	if width >= 32 {
		return ^uint32(0)
	}
	return (uint32(1) << width) - 1
}

// Reverse mirrors the low width bits of v: bit i moves to bit width-1-i.
// Bits above width are discarded.
func Reverse(v uint32, width uint) uint32 {
	if width == 0 {
		return 0
	}
	v &= Mask(width)
	v = (v>>1)&0x55555555 | (v&0x55555555)<<1
	v = (v>>2)&0x33333333 | (v&0x33333333)<<2
	v = (v>>4)&0x0f0f0f0f | (v&0x0f0f0f0f)<<4
	v = (v>>8)&0x00ff00ff | (v&0x00ff00ff)<<8
	v = v>>16 | v<<16
	return v >> (32 - width)
}

// Extremal returns the bit that leaves a width-bit register next for the given order.
func Extremal(v uint32, width uint, order Order) bool {
	if order == LSBFirst {
		return v&1 != 0
	}
	return v>>(width-1)&1 != 0
}

// Advance shifts a width-bit register one position toward its emitting end.
func Advance(v uint32, width uint, order Order) uint32 {
	if order == LSBFirst {
		return v >> 1
	}
	return (v << 1) & Mask(width)
}
