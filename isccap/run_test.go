package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/stream"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Sensor.RailDelaysUS = []float64{1, 1, 1}
	cfg.Sensor.Columns = 8
	cfg.Sensor.Rows = 3
	cfg.Sensor.CmdToLineStartCycles = 100
	cfg.Sensor.LineStartOffsetCycles = 40
	cfg.Mock.Pattern = "constant"
	cfg.Mock.Value = 0x2abc
	cfg.Mock.ChunkSize = 256
	cfg.Capture.Frames = 2
	cfg.Capture.Timeout = 5 * time.Second
	cfg.Capture.Output = filepath.Join(dir, "frame.bin")
	cfg.Store.Path = filepath.Join(dir, "captures.db")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRun_Mock(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Dir(cfg.Capture.Output)
	opts := options{
		mock:    true,
		png:     filepath.Join(dir, "frame.png"),
		preview: true,
	}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, opts, &out))

	raw, err := os.ReadFile(cfg.Capture.Output)
	require.NoError(t, err)
	assert.Len(t, raw, 2*cfg.Sensor.FrameBytes())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "BC, 2A, BC, 2A, "), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "capture "))

	_, err = os.Stat(opts.png)
	assert.NoError(t, err)

	var list bytes.Buffer
	require.NoError(t, listArchive(context.Background(), cfg, &list))
	assert.Contains(t, list.String(), "2 frames")
}

func TestRun_Replay(t *testing.T) {
	cfg := testConfig(t)
	f := stream.NewFrame(cfg.Sensor.Width(), cfg.Sensor.Rows)
	for i := range f.Pix {
		f.Pix[i] = 0x0123 + uint16(i)
	}
	raw := append(stream.Encode(f), 0xff) // trailing partial frame
	require.NoError(t, stream.WriteRaw(cfg.Capture.Output, raw))

	var out bytes.Buffer
	hist := filepath.Join(t.TempDir(), "hist.png")
	opts := options{replay: cfg.Capture.Output, hist: hist, preview: true}
	require.NoError(t, run(context.Background(), cfg, opts, &out))
	assert.True(t, strings.HasPrefix(out.String(), "23, 01, 24, 01, "), out.String())
	assert.NotContains(t, out.String(), "capture ")

	_, err := os.Stat(hist)
	assert.NoError(t, err)
}

func TestReplay_Short(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, stream.WriteRaw(cfg.Capture.Output, []byte{1, 2, 3}))
	_, err := replay(cfg.Sensor, cfg.Capture.Output)
	assert.True(t, errors.Is(err, stream.ErrShortFrame))
}

func TestListArchive_NotConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = ""
	err := listArchive(context.Background(), cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
