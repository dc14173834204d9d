package wssession

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedConfig = errors.New("unsupported config file extension")

// Config is the file configuration of a session. Options are passed to Connect as is, so
// they accept the same keys as the connect options map.
type Config struct {
	URL           string          `toml:"url" yaml:"url"`
	AutoReconnect bool            `toml:"auto_reconnect" yaml:"auto_reconnect"`
	RetryDelay    time.Duration   `toml:"retry_delay" yaml:"retry_delay"`
	LogLevel      string          `toml:"log_level" yaml:"log_level"`
	Transport     TransportConfig `toml:"transport" yaml:"transport"`
	Options       map[string]any  `toml:"options" yaml:"options"`
}

func DefaultConfig() Config {
	return Config{
		RetryDelay: DefaultRetryDelay,
		LogLevel:   "info",
		Transport:  DefaultTransportConfig(),
	}
}

// LoadConfig reads a .toml, .yaml or .yml file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "load config %s", path)
		}
	case ".yaml", ".yml":
		bts, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "load config %s", path)
		}
		if err := yaml.Unmarshal(bts, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "decode config %s", path)
		}
	default:
		return Config{}, errors.Wrap(ErrUnsupportedConfig, path)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.URL = strings.TrimSpace(c.URL)
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	c.Transport = c.Transport.withDefaults()
}

// Validate checks the url, when one is set, and rejects negative durations.
func (c Config) Validate() error {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return errors.Wrapf(ErrInvalidArgument, "url %q: %s", c.URL, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return errors.Wrapf(ErrInvalidArgument, "url %q: scheme must be ws or wss", c.URL)
		}
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"retry_delay", c.RetryDelay},
		{"transport.handshake_timeout", c.Transport.HandshakeTimeout},
		{"transport.write_timeout", c.Transport.WriteTimeout},
		{"transport.close_timeout", c.Transport.CloseTimeout},
		{"transport.ping_interval", c.Transport.PingInterval},
	}
	for _, d := range durations {
		if d.value < 0 {
			return errors.Wrapf(ErrInvalidArgument, "%s must not be negative", d.name)
		}
	}
	if c.Transport.MaxQueueSize < 0 {
		return errors.Wrap(ErrInvalidArgument, "transport.max_queue_size must not be negative")
	}
	return nil
}

// ConnectOptions returns the options map for Connect, with autoReconnect taken from the
// file unless Options already sets it.
func (c Config) ConnectOptions() map[string]any {
	options := make(map[string]any, len(c.Options)+1)
	for k, v := range c.Options {
		options[k] = v
	}
	if _, ok := options[optionAutoReconnect]; !ok {
		options[optionAutoReconnect] = c.AutoReconnect
	}
	return options
}

// ControllerOptions maps the file settings onto controller options.
func (c Config) ControllerOptions() []Option {
	return []Option{
		WithBaseConfig(c.Transport),
		WithRetryDelay(c.RetryDelay),
	}
}
