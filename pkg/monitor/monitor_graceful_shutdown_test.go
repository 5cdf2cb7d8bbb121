package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/stream"
)

// TestMonitor_GracefulShutdown_NoCallbacksAfterClose tests that the monitor
// stops sending callbacks after the input channel is closed.
func TestMonitor_GracefulShutdown_NoCallbacksAfterClose(t *testing.T) {
	m := New(config.Default())

	calls := make(chan struct{}, 10)
	m.OnUpdate(func(*stream.Frame, []Stats, []float64) {
		calls <- struct{}{}
	})

	input := make(chan *stream.Frame, 3)
	now := time.Now()
	for i := 0; i < 3; i++ {
		input <- frameAt(i, now.Add(time.Duration(i)*time.Second), 1)
	}
	close(input)
	m.ProcessFrames(input)
	assert.Len(t, calls, 3)

	// A second run on the same monitor stays silent.
	again := make(chan *stream.Frame, 1)
	again <- frameAt(3, now.Add(3*time.Second), 1)
	close(again)
	m.ProcessFrames(again)
	assert.Len(t, calls, 3, "No callbacks should be sent after channel closes")
	assert.Equal(t, 3, m.Latest().Seq, "frames are still recorded")
}

// TestMonitor_ResetShutdown tests that ResetShutdown allows callbacks again.
func TestMonitor_ResetShutdown(t *testing.T) {
	m := New(config.Default())

	calls := 0
	m.OnUpdate(func(*stream.Frame, []Stats, []float64) { calls++ })

	first := make(chan *stream.Frame)
	close(first)
	m.ProcessFrames(first)

	m.ResetShutdown()
	second := make(chan *stream.Frame, 1)
	second <- frameAt(0, time.Now(), 1)
	close(second)
	m.ProcessFrames(second)
	assert.Equal(t, 1, calls)
}
