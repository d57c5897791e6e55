package config

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// such as "500ms" or "1m30s" in YAML, TOML and JSON.
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// JSONSchema describes durations as strings in the generated schema.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$|^0$`,
		Description: "Go duration string, e.g. 500ms, 5s, 1m",
	}
}

// ConnectionConfig tunes the websocket transport and the protocol driver.
type ConnectionConfig struct {
	HandshakeTimeout Duration `yaml:"handshake_timeout,omitempty" toml:"handshake_timeout,omitempty" json:"handshake_timeout,omitempty" jsonschema:"description=Timeout for the websocket handshake"`
	WriteTimeout     Duration `yaml:"write_timeout,omitempty" toml:"write_timeout,omitempty" json:"write_timeout,omitempty" jsonschema:"description=Deadline for writing a single frame"`
	PingInterval     Duration `yaml:"ping_interval,omitempty" toml:"ping_interval,omitempty" json:"ping_interval,omitempty" jsonschema:"description=Keepalive ping interval (0 disables pings)"`
	// RequestTimeout bounds one subscribe/unsubscribe exchange. Zero waits
	// until the connection drops.
	RequestTimeout Duration `yaml:"request_timeout,omitempty" toml:"request_timeout,omitempty" json:"request_timeout,omitempty" jsonschema:"description=Upper bound for one subscribe or unsubscribe exchange (0 waits forever)"`
}

// RetryConfig configures exponential backoff for fetches and subscribes.
type RetryConfig struct {
	InitialInterval     Duration `yaml:"initial_interval,omitempty" toml:"initial_interval,omitempty" json:"initial_interval,omitempty" jsonschema:"description=Delay before the first retry"`
	MaxInterval         Duration `yaml:"max_interval,omitempty" toml:"max_interval,omitempty" json:"max_interval,omitempty" jsonschema:"description=Upper bound for a single delay"`
	Multiplier          float64  `yaml:"multiplier,omitempty" toml:"multiplier,omitempty" json:"multiplier,omitempty" jsonschema:"description=Growth factor between delays,minimum=1"`
	RandomizationFactor float64  `yaml:"randomization_factor,omitempty" toml:"randomization_factor,omitempty" json:"randomization_factor,omitempty" jsonschema:"description=Jitter applied to each delay,minimum=0,maximum=1"`
	MaxElapsedTime      Duration `yaml:"max_elapsed_time,omitempty" toml:"max_elapsed_time,omitempty" json:"max_elapsed_time,omitempty" jsonschema:"description=Give up after this long (0 retries forever)"`
}

// ServerConfig configures the reference hub started by `live serve`.
type ServerConfig struct {
	Listen  string `yaml:"listen,omitempty" toml:"listen,omitempty" json:"listen,omitempty" jsonschema:"description=Address the hub listens on,example=127.0.0.1:8000"`
	DataDir string `yaml:"data_dir,omitempty" toml:"data_dir,omitempty" json:"data_dir,omitempty" jsonschema:"description=Directory for the leveldb store (empty keeps data in memory)"`
}

// Config is the root of live.yml.
type Config struct {
	Version string `yaml:"version" toml:"version" json:"version" jsonschema:"description=Configuration version (e.g. '1.0')"`

	// APIURL is the REST base URL. The websocket endpoint lives on the same host.
	APIURL string `yaml:"api_url,omitempty" toml:"api_url,omitempty" json:"api_url,omitempty" jsonschema:"description=Base URL of the REST API,example=http://localhost:8000"`
	// WSPath is the websocket path; the protocol suffix is appended to it.
	WSPath string `yaml:"ws_path,omitempty" toml:"ws_path,omitempty" json:"ws_path,omitempty" jsonschema:"description=Websocket path on the API host,default=/ws"`
	// Interactive selects live subscriptions (true) or fetch-only rendering (false).
	Interactive *bool `yaml:"interactive,omitempty" toml:"interactive,omitempty" json:"interactive,omitempty" jsonschema:"description=Open live subscriptions (false fetches once without a websocket),default=true"`

	Connection ConnectionConfig `yaml:"connection,omitempty" toml:"connection,omitempty" json:"connection,omitempty" jsonschema:"description=Websocket connection settings"`
	Retry      RetryConfig      `yaml:"retry,omitempty" toml:"retry,omitempty" json:"retry,omitempty" jsonschema:"description=Exponential backoff settings"`
	Server     ServerConfig     `yaml:"server,omitempty" toml:"server,omitempty" json:"server,omitempty" jsonschema:"description=Reference hub settings"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" jsonschema:"-"`
}

// IsInteractive reports whether subscriptions should be opened.
func (c *Config) IsInteractive() bool {
	return c.Interactive == nil || *c.Interactive
}

// Default values applied by SetDefaults.
const (
	DefaultVersion          = "1.0"
	DefaultAPIURL           = "http://localhost:8000"
	DefaultWSPath           = "/ws"
	DefaultListen           = "127.0.0.1:8000"
	DefaultHandshakeTimeout = Duration(10 * time.Second)
	DefaultWriteTimeout     = Duration(5 * time.Second)
	DefaultPingInterval     = Duration(30 * time.Second)
)

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.WSPath == "" {
		c.WSPath = DefaultWSPath
	}
	if c.Interactive == nil {
		interactive := true
		c.Interactive = &interactive
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded live.yml into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// ToYAML renders the configuration, extensions included.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
