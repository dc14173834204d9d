package wssession

import (
	"net/http"
	"time"
)

const (
	// DefaultMaxQueueSize is the outbound buffer ceiling, in bytes, above which sends are
	// rejected.
	DefaultMaxQueueSize int64 = 16 << 20

	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultCloseTimeout     = 60 * time.Second
)

type (
	// TransportConfig is the effective configuration of one connect attempt.
	TransportConfig struct {
		HandshakeTimeout   time.Duration `toml:"handshake_timeout" yaml:"handshake_timeout"`
		WriteTimeout       time.Duration `toml:"write_timeout" yaml:"write_timeout"`
		CloseTimeout       time.Duration `toml:"close_timeout" yaml:"close_timeout"`
		PingInterval       time.Duration `toml:"ping_interval" yaml:"ping_interval"`
		MaxQueueSize       int64         `toml:"max_queue_size" yaml:"max_queue_size"`
		Header             http.Header   `toml:"header" yaml:"header"`
		Subprotocols       []string      `toml:"subprotocols" yaml:"subprotocols"`
		EnableCompression  bool          `toml:"enable_compression" yaml:"enable_compression"`
		InsecureSkipVerify bool          `toml:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	}

	// Configurator derives the effective transport config from the base config and the
	// connect options. It runs once per connect attempt and must not mutate base.
	Configurator func(base TransportConfig, options map[string]any) TransportConfig
)

// DefaultTransportConfig returns the base config used when none is supplied.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		CloseTimeout:     DefaultCloseTimeout,
		MaxQueueSize:     DefaultMaxQueueSize,
	}
}

// withDefaults fills zero values, so a partially populated config is still usable.
func (c TransportConfig) withDefaults() TransportConfig {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	return c
}

func (c TransportConfig) clone() TransportConfig {
	c.Header = c.Header.Clone()
	if c.Subprotocols != nil {
		c.Subprotocols = append([]string(nil), c.Subprotocols...)
	}
	return c
}

// DefaultConfigurator understands the option keys headers, subprotocols, handshakeTimeout,
// writeTimeout, closeTimeout, pingInterval (milliseconds), enableCompression and
// insecureSkipVerify. Any other key is ignored.
func DefaultConfigurator(base TransportConfig, options map[string]any) TransportConfig {
	cfg := base.clone()

	if headers, ok := options["headers"].(map[string]any); ok {
		if cfg.Header == nil {
			cfg.Header = make(http.Header)
		}
		for k, v := range headers {
			switch value := v.(type) {
			case string:
				cfg.Header.Set(k, value)
			case []string:
				for _, s := range value {
					cfg.Header.Add(k, s)
				}
			case []any:
				for _, s := range value {
					if str, ok := s.(string); ok {
						cfg.Header.Add(k, str)
					}
				}
			}
		}
	}

	switch protocols := options["subprotocols"].(type) {
	case []string:
		cfg.Subprotocols = append([]string(nil), protocols...)
	case []any:
		cfg.Subprotocols = nil
		for _, p := range protocols {
			if s, ok := p.(string); ok {
				cfg.Subprotocols = append(cfg.Subprotocols, s)
			}
		}
	}

	if d, ok := millisOption(options, "handshakeTimeout"); ok {
		cfg.HandshakeTimeout = d
	}
	if d, ok := millisOption(options, "writeTimeout"); ok {
		cfg.WriteTimeout = d
	}
	if d, ok := millisOption(options, "closeTimeout"); ok {
		cfg.CloseTimeout = d
	}
	if d, ok := millisOption(options, "pingInterval"); ok {
		cfg.PingInterval = d
	}
	if b, ok := options["enableCompression"].(bool); ok {
		cfg.EnableCompression = b
	}
	if b, ok := options["insecureSkipVerify"].(bool); ok {
		cfg.InsecureSkipVerify = b
	}

	return cfg
}

func millisOption(options map[string]any, key string) (time.Duration, bool) {
	n, ok := intArgument(options[key])
	if !ok || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

// intArgument accepts the numeric shapes a decoded method call may carry.
func intArgument(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case uint:
		return int(n), true
	default:
		return 0, false
	}
}

func boolOption(options map[string]any, key string) bool {
	b, ok := options[key].(bool)
	return ok && b
}
