package stream

import (
	"log"
	"time"
)

// NewAveragingConverter creates a converter that replaces every frame by the
// pixel-wise mean of the last windowSize frames. This reduces temporal noise.
func NewAveragingConverter(windowSize int, bufSize int) func(in <-chan *Frame) <-chan *Frame {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = 4
	}

	return func(in <-chan *Frame) <-chan *Frame {
		out := make(chan *Frame, bufSize)

		go func() {
			defer close(out)

			var window []*Frame
			for f := range in {
				window = append(window, f)
				if len(window) > windowSize {
					window = window[1:] // Remove oldest
				}

				avg := Average(window)
				select {
				case out <- avg:
				case <-time.After(time.Second):
					log.Printf("Averaging converter output channel full, dropping frame %d", avg.Seq)
				}
			}
		}()

		return out
	}
}

// Average returns the pixel-wise mean of frames, rounded to nearest.
// Sequence number, timestamp and geometry are taken from the most recent
// frame; frames with a different geometry are left out.
func Average(frames []*Frame) *Frame {
	if len(frames) == 0 {
		return nil
	}
	last := frames[len(frames)-1]
	if len(frames) == 1 {
		return last.Clone()
	}

	sums := make([]uint32, len(last.Pix))
	var n uint32
	for _, f := range frames {
		if f.Width != last.Width || f.Height != last.Height || len(f.Pix) != len(sums) {
			continue
		}
		for i, v := range f.Pix {
			sums[i] += uint32(v)
		}
		n++
	}

	out := NewFrame(last.Width, last.Height)
	out.Seq = last.Seq
	out.Timestamp = last.Timestamp
	for i, s := range sums {
		out.Pix[i] = uint16((s + n/2) / n)
	}
	return out
}
