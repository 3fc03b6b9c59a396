package config

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// HostConfig holds settings for `mrdesktop host`.
type HostConfig struct {
	Listen           string        `yaml:"listen"`
	Test             bool          `yaml:"test"`
	TestFrames       int           `yaml:"test_frames"`
	Display          int           `yaml:"display"` // -1 = primary
	FrameInterval    time.Duration `yaml:"frame_interval"`
	NegotiateTimeout time.Duration `yaml:"negotiate_timeout"`
	StatusEvery      int           `yaml:"status_every"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	LogLevel         string        `yaml:"log_level"`

	ConfigFile string `yaml:"-"`
}

// SetDefaults fills zero fields with built-in defaults.
func (c *HostConfig) SetDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.TestFrames == 0 {
		c.TestFrames = DefaultTestFrames
	}
	if c.Display == 0 {
		c.Display = -1
	}
	if c.FrameInterval == 0 {
		c.FrameInterval = 16 * time.Millisecond
	}
	if c.NegotiateTimeout == 0 {
		c.NegotiateTimeout = 2 * time.Second
	}
	if c.StatusEvery == 0 {
		c.StatusEvery = 30
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// ApplyEnv overlays MRDESKTOP_* variables onto the current values.
func (c *HostConfig) ApplyEnv() {
	c.ConfigFile = getEnv("HOST_CONFIG", c.ConfigFile)
	c.Listen = getEnv("LISTEN", c.Listen)
	envBool("TEST", &c.Test)
	envInt("TEST_FRAMES", &c.TestFrames)
	envInt("DISPLAY", &c.Display)
	envDuration("FRAME_INTERVAL", &c.FrameInterval)
	envDuration("NEGOTIATE_TIMEOUT", &c.NegotiateTimeout)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// LoadFile populates the config from a YAML file. Keys absent from the
// file keep their current values.
func (c *HostConfig) LoadFile(path string) error {
	return loadYAML(path, c)
}

func (c *HostConfig) configFile() *string { return &c.ConfigFile }

// BindFlags registers host flags on fs using the current values as defaults.
func (c *HostConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML config file")
	fs.StringVar(&c.Listen, "listen", c.Listen, "listen address")
	fs.BoolVar(&c.Test, "test", c.Test, "stream a synthetic test pattern and exit after -frames")
	fs.IntVar(&c.TestFrames, "frames", c.TestFrames, "frames to send in test mode")
	fs.IntVar(&c.Display, "display", c.Display, "display index to capture (-1 = primary)")
	fs.DurationVar(&c.FrameInterval, "frame-interval", c.FrameInterval, "pause between captured frames")
	fs.DurationVar(&c.NegotiateTimeout, "negotiate-timeout", c.NegotiateTimeout, "how long to wait for the viewer's compression request")
	fs.IntVar(&c.StatusEvery, "status-every", c.StatusEvery, "log FPS every N frames")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address (empty disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (trace, debug, info, warn, error, none)")
}

// Validate reports the first invalid setting.
func (c *HostConfig) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}
	if c.Test && c.TestFrames <= 0 {
		return fmt.Errorf("frames must be positive in test mode, got %d", c.TestFrames)
	}
	if c.FrameInterval < 0 || c.NegotiateTimeout <= 0 {
		return errors.New("frame-interval must be >= 0 and negotiate-timeout > 0")
	}
	return validLevel(c.LogLevel)
}
