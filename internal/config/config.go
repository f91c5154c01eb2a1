package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/tradeflow/internal/model"
)

// Config is the root configuration for a tradeflow instance.
type Config struct {
	Instance    InstanceConfig            `yaml:"instance"`
	Exchanges   map[string]ExchangeConfig `yaml:"exchanges"` // keyed by exchange name
	Connections ConnectionsConfig         `yaml:"connections"`
	Retention   RetentionConfig           `yaml:"retention"`
	Feeds       []FeedConfig              `yaml:"feeds"`
	Logging     LoggingConfig             `yaml:"logging"`
	Health      HealthConfig              `yaml:"health"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ExchangeConfig holds per-exchange overrides.
type ExchangeConfig struct {
	WSURL        string `yaml:"ws_url"`
	Enabled      *bool  `yaml:"enabled"`       // nil means enabled
	ReleaseEvent string `yaml:"release_event"` // bitfinex only: "subscribe" or "unsubscribe"
	Retention    string `yaml:"retention"`     // overrides retention.spec for this exchange
}

// IsEnabled reports whether the exchange may be subscribed to.
func (e ExchangeConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// ConnectionsConfig holds WebSocket client settings shared by all exchanges.
type ConnectionsConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// RetentionConfig holds the initial retention spec: a window such as "10m"
// or "1h", a record count such as "500", or "0" to keep everything.
type RetentionConfig struct {
	Spec string `yaml:"spec"`
}

// FeedConfig is one exchange/symbol pair to subscribe at startup.
type FeedConfig struct {
	Exchange string `yaml:"exchange"`
	Symbol   string `yaml:"symbol"` // defaults to the exchange's default symbol
	Totals   string `yaml:"totals"` // window for buy/sell volume totals

	// Minimum hides trades smaller than this size from the feed's view.
	// Volume totals still count every trade.
	Minimum string `yaml:"minimum"`
}

// MinimumSize returns the parsed minimum trade size, zero when unset.
func (f FeedConfig) MinimumSize() (decimal.Decimal, error) {
	if f.Minimum == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(f.Minimum)
}

// LoggingConfig holds slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// HealthConfig holds the diagnostics HTTP server settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// Exchange returns the settings for the named exchange, or the zero value.
// Names match case-insensitively, as in model.ParseExchange.
func (c *Config) Exchange(name string) ExchangeConfig {
	if e, ok := c.Exchanges[name]; ok {
		return e
	}
	want, err := model.ParseExchange(name)
	if err != nil {
		return ExchangeConfig{}
	}
	for key, e := range c.Exchanges {
		if ex, err := model.ParseExchange(key); err == nil && ex == want {
			return e
		}
	}
	return ExchangeConfig{}
}
