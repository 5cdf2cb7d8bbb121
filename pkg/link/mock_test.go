package link

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/isc0901/pkg/acq"
	"github.com/itohio/isc0901/pkg/config"
)

func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Sensor.RailDelaysUS = []float64{1, 1, 1}
	cfg.Sensor.Columns = 8
	cfg.Sensor.Rows = 3
	cfg.Sensor.CmdToLineStartCycles = 100
	cfg.Sensor.LineStartOffsetCycles = 40
	cfg.Mock.Pattern = "constant"
	cfg.Mock.Value = 0x2abc
	cfg.Mock.ChunkSize = 256
	require.NoError(t, cfg.Validate())
	return cfg
}

// readN collects at least n bytes from the device.
func readN(t *testing.T, d Device, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	timeout := time.After(5 * time.Second)
	for buf.Len() < n {
		select {
		case chunk, ok := <-d.Chunks():
			require.True(t, ok, "chunk channel closed early")
			buf.Write(chunk)
		case <-timeout:
			t.Fatalf("timed out after %d of %d bytes", buf.Len(), n)
		}
	}
	return buf.Bytes()
}

func TestMock_Stream(t *testing.T) {
	cfg := smallConfig(t)
	m := NewMock(cfg)
	require.NoError(t, m.Connect())
	defer m.Close()
	assert.True(t, m.IsConnected())

	got := readN(t, m, cfg.Sensor.FrameBytes())
	sample := acq.Sample{Even: 0x2abc, Odd: 0x2abc}.Bytes()
	for i := 0; i < cfg.Sensor.FrameBytes(); i += acq.BytesPerSample {
		require.Equal(t, sample[:], got[i:i+acq.BytesPerSample], "offset %d", i)
	}
}

func TestMock_Concurrent(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Mock.Concurrent = true
	m := NewMock(cfg)
	require.NoError(t, m.Connect())
	defer m.Close()

	got := readN(t, m, 64)
	assert.GreaterOrEqual(t, len(got), 64)
}

func TestMock_SkipUntilReset(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Mock.SkipBytes = 1
	m := NewMock(cfg)
	require.NoError(t, m.Connect())
	defer m.Close()

	// One byte short: every sample now starts on its high byte.
	got := readN(t, m, 4)
	assert.Equal(t, []byte{0x2a, 0xbc, 0x2a}, got[:3])

	require.NoError(t, m.Reset())
	assert.Equal(t, 1, m.Resets())

	got = readN(t, m, 4)
	assert.Equal(t, []byte{0xbc, 0x2a, 0xbc, 0x2a}, got[:4])
}

func TestMock_NotConnected(t *testing.T) {
	m := NewMock(smallConfig(t))
	assert.False(t, m.IsConnected())
	assert.True(t, errors.Is(m.Reset(), ErrNotConnected))
	assert.NoError(t, m.Close())
}

func TestMock_DoubleConnect(t *testing.T) {
	m := NewMock(smallConfig(t))
	require.NoError(t, m.Connect())
	defer m.Close()
	assert.Error(t, m.Connect())
}

func TestMock_BadPattern(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Mock.Pattern = "plasma"
	m := NewMock(cfg)
	err := m.Connect()
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
	assert.False(t, m.IsConnected())
}

func TestMock_SensorDecodes(t *testing.T) {
	cfg := smallConfig(t)
	m := NewMock(cfg)
	require.NoError(t, m.Connect())

	readN(t, m, 2*cfg.Sensor.FrameBytes())
	require.NoError(t, m.Close())

	s := m.Sensor()
	require.NotNil(t, s)
	assert.Equal(t, config.DefaultCommands, s.Commands())
	assert.Equal(t, uint64(0), s.BadBias())
}
