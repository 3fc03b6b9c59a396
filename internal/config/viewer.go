package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

// ViewerConfig holds settings for `mrdesktop view`.
type ViewerConfig struct {
	Addr         string        `yaml:"addr"`
	Compression  string        `yaml:"compression"`
	Test         bool          `yaml:"test"`
	TestFrames   int           `yaml:"test_frames"`
	QueueSlots   int           `yaml:"queue_slots"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	LogLevel     string        `yaml:"log_level"`

	ConfigFile string `yaml:"-"`
}

func (c *ViewerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultHostAddr
	}
	if c.Compression == "" {
		c.Compression = DefaultCompression
	}
	if c.TestFrames == 0 {
		c.TestFrames = DefaultTestFrames
	}
	if c.QueueSlots == 0 {
		c.QueueSlots = 4
	}
	if c.PollInterval == 0 {
		c.PollInterval = 10 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func (c *ViewerConfig) ApplyEnv() {
	c.ConfigFile = getEnv("VIEWER_CONFIG", c.ConfigFile)
	c.Addr = getEnv("ADDR", c.Addr)
	c.Compression = getEnv("COMPRESSION", c.Compression)
	envBool("TEST", &c.Test)
	envInt("TEST_FRAMES", &c.TestFrames)
	envInt("QUEUE_SLOTS", &c.QueueSlots)
	envDuration("POLL_INTERVAL", &c.PollInterval)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func (c *ViewerConfig) LoadFile(path string) error {
	return loadYAML(path, c)
}

func (c *ViewerConfig) configFile() *string { return &c.ConfigFile }

// BindFlags registers viewer flags on fs. The first positional argument,
// if any, is taken as the host address by the caller.
func (c *ViewerConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML config file")
	fs.StringVar(&c.Addr, "addr", c.Addr, "host address (host:port)")
	fs.StringVar(&c.Compression, "compression", c.Compression, "requested compression: none, h264, h265 or av1")
	fs.BoolVar(&c.Test, "test", c.Test, "validate test-pattern frames and exit")
	fs.IntVar(&c.TestFrames, "frames", c.TestFrames, "frames to validate in test mode")
	fs.IntVar(&c.QueueSlots, "queue", c.QueueSlots, "decoded frames buffered for display")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "idle wait between empty polls")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address (empty disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (trace, debug, info, warn, error, none)")
}

// Mode returns the parsed compression setting.
func (c *ViewerConfig) Mode() (protocol.Compression, error) {
	return validCompression(c.Compression)
}

func (c *ViewerConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("host address is empty")
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if c.Test && c.TestFrames <= 0 {
		return fmt.Errorf("frames must be positive in test mode, got %d", c.TestFrames)
	}
	if c.QueueSlots <= 0 {
		return fmt.Errorf("queue must be positive, got %d", c.QueueSlots)
	}
	return validLevel(c.LogLevel)
}
