package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/link"
)

// Result is the outcome of a capture.
type Result struct {
	Frames   []*Frame
	Raw      []byte // exactly len(Frames) * FrameBytes
	Attempts int
}

// Capture reads n frames from d. When a frame lacks the marker the device is
// reset and the whole capture starts over, at most cfg.Capture.Retries times.
func Capture(ctx context.Context, cfg *config.Config, d link.Device, n int) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: frame count must be positive", config.ErrInvalidConfig)
	}
	need := n * cfg.Sensor.FrameBytes()

	for attempt := 1; ; attempt++ {
		raw, err := readBytes(ctx, d, need, cfg.Capture.Timeout)
		if err != nil {
			return nil, err
		}

		frames, err := decodeAll(cfg.Sensor, raw)
		if err == nil {
			return &Result{Frames: frames, Raw: raw, Attempts: attempt}, nil
		}
		if !errors.Is(err, ErrNoMarker) || attempt > cfg.Capture.Retries {
			return nil, fmt.Errorf("failed to capture after %d attempts: %w", attempt, err)
		}

		log.Printf("Frame marker missing (attempt %d of %d), resetting device", attempt, cfg.Capture.Retries+1)
		if err := d.Reset(); err != nil {
			return nil, fmt.Errorf("failed to reset device: %w", err)
		}
	}
}

func decodeAll(cfg config.SensorConfig, raw []byte) ([]*Frame, error) {
	size := cfg.FrameBytes()
	frames := make([]*Frame, 0, len(raw)/size)
	now := time.Now()
	for i := 0; i+size <= len(raw); i += size {
		f, err := Decode(cfg, raw[i:i+size])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(frames), err)
		}
		f.Seq = len(frames)
		f.Timestamp = now
		frames = append(frames, f)
	}
	return frames, nil
}

// readBytes collects exactly n bytes from d. A zero timeout waits for ctx only.
func readBytes(ctx context.Context, d link.Device, n int, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	raw := make([]byte, 0, n)
	for len(raw) < n {
		select {
		case chunk, ok := <-d.Chunks():
			if !ok {
				return nil, fmt.Errorf("failed to read stream: %w after %d of %d bytes", io.ErrUnexpectedEOF, len(raw), n)
			}
			raw = append(raw, chunk[:min(len(chunk), n-len(raw))]...)
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to read stream after %d of %d bytes: %w", len(raw), n, ctx.Err())
		}
	}
	return raw, nil
}
