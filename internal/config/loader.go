package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"predictd/internal/common/fsutil"
	"predictd/internal/engine"
)

// DefaultAddr is the port the fixture has always listened on.
const DefaultAddr = ":18812"

// DefaultMaxMessageBytes bounds a single gRPC message. Models travel inline.
const DefaultMaxMessageBytes = 256 << 20

// Config holds runtime parameters for the server.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr               string   `json:"addr" yaml:"addr" toml:"addr"`
	Backend            string   `json:"backend" yaml:"backend" toml:"backend"`
	Precision          string   `json:"precision" yaml:"precision" toml:"precision"`
	OnnxRuntimeLib     string   `json:"onnxruntime_lib" yaml:"onnxruntime_lib" toml:"onnxruntime_lib"`
	LogLevel           string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat          string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	MaxMessageBytes    int      `json:"max_message_bytes" yaml:"max_message_bytes" toml:"max_message_bytes"`
	StrictDecoding     *bool    `json:"strict_decoding" yaml:"strict_decoding" toml:"strict_decoding"`
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := fsutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Backend == "" {
		c.Backend = string(engine.DefaultTarget.Backend)
	}
	if c.Precision == "" {
		c.Precision = string(engine.DefaultTarget.Precision)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.StrictDecoding == nil {
		strict := true
		c.StrictDecoding = &strict
	}
}

// Strict reports the effective decoding policy.
func (c Config) Strict() bool { return c.StrictDecoding == nil || *c.StrictDecoding }

// Target resolves the configured execution target.
func (c Config) Target() (engine.Target, error) {
	return engine.ParseTarget(c.Backend, c.Precision)
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if _, err := c.Target(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	if c.MaxMessageBytes < 0 {
		return fmt.Errorf("max_message_bytes must not be negative")
	}
	return nil
}
