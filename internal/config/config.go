// Package config resolves host and viewer settings. Precedence is
// defaults < YAML file < MRDESKTOP_* environment < command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MRDESKTOP_"

const (
	DefaultListen      = ":8080"
	DefaultHostAddr    = "127.0.0.1:8080"
	DefaultCompression = "h265"
	DefaultTestFrames  = 3
	DefaultLogLevel    = "info"
)

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string, dst *bool) {
	if v := getEnv(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := getEnv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func loadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// PathFromArgs returns the value of --config (or -config) in args, or "".
// It lets the file be loaded before flags are bound and parsed.
func PathFromArgs(args []string) string {
	for i, a := range args {
		a = strings.TrimPrefix(a, "-")
		switch {
		case a == "-config" || a == "config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "config="):
			return strings.TrimPrefix(a, "config=")
		}
	}
	return ""
}

// Load applies the usual precedence up to, but not including, flags:
// defaults, then ConfigFile (from args or env; a missing file is not an
// error), then env again so it overrides the file.
func Load[T interface {
	SetDefaults()
	ApplyEnv()
	LoadFile(string) error
	configFile() *string
}](c T, args []string) error {
	c.SetDefaults()
	c.ApplyEnv()
	if p := PathFromArgs(args); p != "" {
		*c.configFile() = p
	}
	if path := *c.configFile(); path != "" {
		if err := c.LoadFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	c.ApplyEnv()
	return nil
}

func validLevel(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "trace", "debug", "info", "warn", "warning", "error", "fatal", "none", "off", "disabled":
		return nil
	}
	return fmt.Errorf("unknown log level %q", s)
}

func validCompression(s string) (protocol.Compression, error) {
	return protocol.ParseCompression(s)
}
