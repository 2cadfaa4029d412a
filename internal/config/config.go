// Package config loads the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete picamd configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Stream      StreamConfig      `yaml:"stream"`
	Device      DeviceConfig      `yaml:"device"`
	Camera      CameraConfig      `yaml:"camera"`
	Compression CompressionConfig `yaml:"compression"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Motion      MotionConfig      `yaml:"motion"`
	Log         LogConfig         `yaml:"log"`
}

// HTTPConfig configures the web interface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// StreamConfig configures the raw MJPEG TCP stream.
type StreamConfig struct {
	Addr       string `yaml:"addr"`
	IntervalMS int    `yaml:"interval_ms"`
}

// DeviceConfig configures the bitmap frame protocol for display
// devices.
type DeviceConfig struct {
	Addr   string `yaml:"addr"`
	Width  int    `yaml:"width"`  // must be a multiple of 8
	Height int    `yaml:"height"`
}

// CameraConfig selects and tunes the video device.
type CameraConfig struct {
	Device  string `yaml:"device"`
	Format  string `yaml:"format"` // YUYV or MJPEG
	Size    string `yaml:"size"`   // "WxH", empty picks the largest
	Quality int    `yaml:"quality"`
}

// CompressionConfig bounds the compressed-frame endpoint.
type CompressionConfig struct {
	BudgetKB int `yaml:"budget_kb"`
}

// ArchiveConfig configures background frame persistence.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
}

// MotionConfig configures motion detection overlays.
type MotionConfig struct {
	Enabled   bool `yaml:"enabled"`
	Window    int  `yaml:"window"`     // sigma-delta amplification factor
	MinRegion int  `yaml:"min_region"` // smallest region, in pixels, worth reporting
}

// LogConfig selects the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP:        HTTPConfig{Addr: ":8080"},
		Stream:      StreamConfig{Addr: ":8081", IntervalMS: 100},
		Device:      DeviceConfig{Addr: ":8082", Width: 240, Height: 320},
		Camera:      CameraConfig{Device: "/dev/video0", Format: "YUYV", Quality: 85},
		Compression: CompressionConfig{BudgetKB: 16},
		Archive:     ArchiveConfig{Path: "frames.db", Workers: 2, QueueSize: 16},
		Motion:      MotionConfig{Window: 4, MinRegion: 16},
		Log:         LogConfig{Level: "info"},
	}
}

// Load reads path and overlays it onto the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Device.Width%8 != 0 {
		return fmt.Errorf("device width %d is not a multiple of 8", c.Device.Width)
	}
	if c.Device.Width <= 0 || c.Device.Height <= 0 {
		return fmt.Errorf("device size %dx%d is not positive", c.Device.Width, c.Device.Height)
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		return fmt.Errorf("camera quality %d outside 1..100", c.Camera.Quality)
	}
	if c.Compression.BudgetKB <= 0 {
		return fmt.Errorf("compression budget %dKB is not positive", c.Compression.BudgetKB)
	}
	if c.Stream.IntervalMS <= 0 {
		return fmt.Errorf("stream interval %dms is not positive", c.Stream.IntervalMS)
	}
	switch c.Camera.Format {
	case "YUYV", "MJPEG":
	default:
		return fmt.Errorf("unknown camera format %q", c.Camera.Format)
	}
	return nil
}

// StreamInterval returns the stream pacing as a duration.
func (c *Config) StreamInterval() time.Duration {
	return time.Duration(c.Stream.IntervalMS) * time.Millisecond
}

// Budget returns the compression budget in bytes.
func (c *Config) Budget() int {
	return c.Compression.BudgetKB * 1024
}
