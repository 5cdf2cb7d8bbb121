package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/link"
	"github.com/itohio/isc0901/pkg/process"
	"github.com/itohio/isc0901/pkg/store"
	"github.com/itohio/isc0901/pkg/stream"
)

// options are the command line choices that are not configuration.
type options struct {
	mock    bool
	png     string
	hist    string
	replay  string
	preview bool
	device  link.Device // overrides mock and serial, used by tests
}

// run captures (or replays) frames, dumps the raw stream, prints the preview
// and writes the requested outputs.
func run(ctx context.Context, cfg *config.Config, opts options, w io.Writer) error {
	var res *stream.Result
	var err error
	if opts.replay != "" {
		res, err = replay(cfg.Sensor, opts.replay)
	} else {
		res, err = capture(ctx, cfg, opts)
	}
	if err != nil {
		return err
	}

	if opts.replay == "" && cfg.Capture.Output != "" {
		if err := stream.WriteRaw(cfg.Capture.Output, res.Raw); err != nil {
			return err
		}
		log.Printf("Wrote %d frames (%d bytes) to %s", len(res.Frames), len(res.Raw), cfg.Capture.Output)
	}

	if opts.preview {
		if err := stream.Preview(w, res.Raw, cfg.Sensor.FrameBytes()); err != nil {
			return fmt.Errorf("failed to print preview: %w", err)
		}
	}

	frame, rep := process.Apply(cfg.Process, res.Frames)
	if opts.png != "" {
		img := process.Gray(frame, cfg.Process.LowPercentile, cfg.Process.HighPercentile)
		if err := process.SavePNG(opts.png, img); err != nil {
			return err
		}
		log.Printf("Wrote %s (%d frames averaged, %d outliers replaced)", opts.png, rep.Averaged, rep.Outliers)
	}
	if opts.hist != "" {
		if err := process.SaveHistogram(opts.hist, frame, 64); err != nil {
			return err
		}
	}

	if cfg.Store.Path != "" && opts.replay == "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		id, err := s.SaveCapture(ctx, cfg.Sensor.Variant, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "capture %s\n", id)
	}
	return nil
}

func capture(ctx context.Context, cfg *config.Config, opts options) (*stream.Result, error) {
	d := opts.device
	switch {
	case d != nil:
	case opts.mock:
		d = link.NewMock(cfg)
	default:
		d = link.New(cfg.Serial.Port, cfg.Serial.BaudRate, link.DefaultBufferSize)
	}
	if err := d.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer d.Close()

	start := time.Now()
	res, err := stream.Capture(ctx, cfg, d, cfg.Capture.Frames)
	if err != nil {
		return nil, err
	}
	log.Printf("Captured %d frames in %v (%d attempts)", len(res.Frames), time.Since(start).Round(time.Millisecond), res.Attempts)
	return res, nil
}

// replay decodes whole frames from a raw stream dump. A trailing partial
// frame is ignored.
func replay(cfg config.SensorConfig, path string) (*stream.Result, error) {
	raw, err := stream.ReadRaw(path)
	if err != nil {
		return nil, err
	}
	size := cfg.FrameBytes()
	res := &stream.Result{}
	for off := 0; off+size <= len(raw); off += size {
		f, err := stream.Decode(cfg, raw[off:off+size])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(res.Frames), err)
		}
		f.Seq = len(res.Frames)
		res.Frames = append(res.Frames, f)
	}
	if len(res.Frames) == 0 {
		return nil, fmt.Errorf("%s: %w", path, stream.ErrShortFrame)
	}
	res.Raw = raw[:len(res.Frames)*size]
	return res, nil
}

// listArchive prints the archived captures.
func listArchive(ctx context.Context, cfg *config.Config, w io.Writer) error {
	if cfg.Store.Path == "" {
		return fmt.Errorf("%w: no archive configured", config.ErrInvalidConfig)
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	captures, err := s.Captures(ctx)
	if err != nil {
		return err
	}
	for _, c := range captures {
		fmt.Fprintf(w, "%s  %s  %s  %dx%d  %d frames\n",
			c.ID, c.CreatedAt.Format(time.RFC3339), c.Variant, c.Width, c.Height, c.Frames)
	}
	return nil
}
