package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate for inconsistent settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration.
type Config struct {
	Sensor  SensorConfig  `yaml:"sensor"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Serial  SerialConfig  `yaml:"serial"`
	Capture CaptureConfig `yaml:"capture"`
	Process ProcessConfig `yaml:"process"`
	Monitor MonitorConfig `yaml:"monitor"`
	View    ViewConfig    `yaml:"view"`
	Store   StoreConfig   `yaml:"store"`
	Mock    MockConfig    `yaml:"mock"`
}

// SensorConfig contains the per-revision sensor geometry and timing.
// All cycle counts are in sensor clock cycles.
type SensorConfig struct {
	Variant               string    `yaml:"variant"`
	ClockHz               float64   `yaml:"clock_hz"`
	RailDelaysUS          []float64 `yaml:"rail_delays_us"` // 3V3, 2V5, boost
	Columns               int       `yaml:"columns"`
	Rows                  int       `yaml:"rows"`
	Commands              []uint16  `yaml:"commands"`
	BiasValue             uint8     `yaml:"bias_value"`
	BiasToLatchCycles     int       `yaml:"bias_to_latch_cycles"`
	InitCycles            int       `yaml:"init_cycles"`
	CmdToLineStartCycles  int       `yaml:"cmd_to_line_start_cycles"`
	LineStartOffsetCycles int       `yaml:"line_start_offset_cycles"`
	CmdQueueDepth         int       `yaml:"cmd_queue_depth"`
	BiasQueueDepth        int       `yaml:"bias_queue_depth"`
	Marker                bool      `yaml:"marker"`        // first sample carries 0x55 0x15
	DoubleBuffer          bool      `yaml:"double_buffer"` // deserializer keeps one extra sample
}

// BridgeConfig contains the clock-domain crossing parameters.
type BridgeConfig struct {
	HostClockHz   float64 `yaml:"host_clock_hz"`
	Depth         int     `yaml:"depth"`           // cross-domain queue
	HostFIFODepth int     `yaml:"host_fifo_depth"` // host-side FIFO
	ResetCycles   int     `yaml:"reset_cycles"`    // host cycles the sensor domain is held in reset
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// CaptureConfig contains host capture parameters.
type CaptureConfig struct {
	Frames  int           `yaml:"frames"`
	Retries int           `yaml:"retries"` // reset-and-retry attempts on a missing marker
	Output  string        `yaml:"output"`  // raw byte dump
	Timeout time.Duration `yaml:"timeout"`
}

// ProcessConfig contains offline post-processing parameters.
type ProcessConfig struct {
	OutlierSigma   float64 `yaml:"outlier_sigma"`   // 0 disables outlier removal
	AverageFrames  int     `yaml:"average_frames"`  // 0 or 1 disables averaging
	LowPercentile  float64 `yaml:"low_percentile"`  // normalisation floor
	HighPercentile float64 `yaml:"high_percentile"` // normalisation ceiling
}

// MonitorConfig contains live frame statistics parameters.
type MonitorConfig struct {
	WindowSeconds float64 `yaml:"window_seconds"` // statistics history length
}

// ViewConfig contains live viewer display settings.
type ViewConfig struct {
	Palette       string `yaml:"palette"`        // iron or gray
	ProfilePoints int    `yaml:"profile_points"` // row profile display limit
}

// StoreConfig contains capture archive configuration.
type StoreConfig struct {
	Path string `yaml:"path"` // empty disables the archive
}

// MockConfig contains simulated sensor configuration.
type MockConfig struct {
	Pattern    string `yaml:"pattern"`    // gradient, constant, shr, checker
	Value      uint16 `yaml:"value"`      // constant pattern value
	Concurrent bool   `yaml:"concurrent"` // run clock domains on separate goroutines
	SkipBytes  int    `yaml:"skip_bytes"` // leading bytes dropped until the first reset
	ChunkSize  int    `yaml:"chunk_size"` // sensor cycles simulated per step
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	sensor, _ := Variant(DefaultVariant)
	return &Config{
		Sensor: sensor,
		Bridge: BridgeConfig{
			HostClockHz:   48e6,
			Depth:         128,
			HostFIFODepth: 4096,
			ResetCycles:   7,
		},
		Serial: SerialConfig{
			Port:     "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
			BaudRate: 115200,
		},
		Capture: CaptureConfig{
			Frames:  50,
			Retries: 3,
			Output:  "frame.bin",
			Timeout: 10 * time.Second,
		},
		Process: ProcessConfig{
			OutlierSigma:   3.0,
			AverageFrames:  0,
			LowPercentile:  0.01,
			HighPercentile: 0.99,
		},
		Monitor: MonitorConfig{
			WindowSeconds: 10,
		},
		View: ViewConfig{
			Palette:       "iron",
			ProfilePoints: 500,
		},
		Store: StoreConfig{
			Path: "",
		},
		Mock: MockConfig{
			Pattern:    "gradient",
			Value:      0x1000,
			Concurrent: false,
			SkipBytes:  0,
			ChunkSize:  4096,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// A variant name selects the preset the rest of the file overrides.
	var head struct {
		Sensor struct {
			Variant string `yaml:"variant"`
		} `yaml:"sensor"`
		Bridge struct {
			ResetCycles *int `yaml:"reset_cycles"`
		} `yaml:"bridge"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if head.Sensor.Variant != "" {
		preset, err := Variant(head.Sensor.Variant)
		if err != nil {
			return nil, err
		}
		cfg.Sensor = preset
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()
	// Zero reset cycles is a valid explicit setting.
	if head.Bridge.ResetCycles != nil {
		cfg.Bridge.ResetCycles = *head.Bridge.ResetCycles
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()
	preset, err := Variant(c.Sensor.Variant)
	if err != nil {
		preset = def.Sensor
	}

	if c.Sensor.ClockHz == 0 {
		c.Sensor.ClockHz = preset.ClockHz
	}
	if len(c.Sensor.RailDelaysUS) == 0 {
		c.Sensor.RailDelaysUS = preset.RailDelaysUS
	}
	if len(c.Sensor.Commands) == 0 {
		c.Sensor.Commands = preset.Commands
	}
	if c.Sensor.CmdQueueDepth == 0 {
		c.Sensor.CmdQueueDepth = len(c.Sensor.Commands)
	}
	if c.Sensor.BiasQueueDepth == 0 {
		c.Sensor.BiasQueueDepth = preset.BiasQueueDepth
	}

	if c.Bridge.HostClockHz == 0 {
		c.Bridge.HostClockHz = def.Bridge.HostClockHz
	}
	if c.Bridge.Depth == 0 {
		c.Bridge.Depth = def.Bridge.Depth
	}
	if c.Bridge.HostFIFODepth == 0 {
		c.Bridge.HostFIFODepth = def.Bridge.HostFIFODepth
	}
	if c.Bridge.ResetCycles == 0 {
		c.Bridge.ResetCycles = def.Bridge.ResetCycles
	}

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Capture.Frames == 0 {
		c.Capture.Frames = def.Capture.Frames
	}
	if c.Capture.Timeout == 0 {
		c.Capture.Timeout = def.Capture.Timeout
	}

	if c.Process.HighPercentile == 0 {
		c.Process.HighPercentile = def.Process.HighPercentile
	}

	if c.Monitor.WindowSeconds == 0 {
		c.Monitor.WindowSeconds = def.Monitor.WindowSeconds
	}

	if c.View.Palette == "" {
		c.View.Palette = def.View.Palette
	}
	if c.View.ProfilePoints == 0 {
		c.View.ProfilePoints = def.View.ProfilePoints
	}

	if c.Mock.Pattern == "" {
		c.Mock.Pattern = def.Mock.Pattern
	}
	if c.Mock.ChunkSize == 0 {
		c.Mock.ChunkSize = def.Mock.ChunkSize
	}
}

// Validate checks that the sensor timing and geometry are self-consistent.
func (c *Config) Validate() error {
	if err := c.Sensor.Validate(); err != nil {
		return err
	}
	if c.Bridge.HostClockHz <= 0 {
		return fmt.Errorf("%w: host clock must be positive", ErrInvalidConfig)
	}
	if c.Bridge.Depth <= 0 || c.Bridge.HostFIFODepth <= 0 {
		return fmt.Errorf("%w: bridge queue depths must be positive", ErrInvalidConfig)
	}
	if c.Bridge.ResetCycles < 0 {
		return fmt.Errorf("%w: bridge reset cycles must not be negative", ErrInvalidConfig)
	}
	if c.Capture.Retries < 0 {
		return fmt.Errorf("%w: capture retries must not be negative", ErrInvalidConfig)
	}
	if c.Process.LowPercentile < 0 || c.Process.HighPercentile > 1 || c.Process.LowPercentile >= c.Process.HighPercentile {
		return fmt.Errorf("%w: percentiles must satisfy 0 <= low < high <= 1", ErrInvalidConfig)
	}
	return nil
}
