package config

import (
	"strings"
	"time"

	"github.com/rickgao/tradeflow/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultInstanceID       = "tradeflow"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 90 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultBufferSize       = 1000
	DefaultRetention        = "10m"
	DefaultTotals           = "5m"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultHealthPort       = 8080
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Exchange names are matched case-insensitively. Keys that collide once
	// normalized are left alone for Validate to report.
	if len(c.Exchanges) > 0 {
		exchanges := make(map[string]ExchangeConfig, len(c.Exchanges))
		for name, e := range c.Exchanges {
			exchanges[strings.ToLower(strings.TrimSpace(name))] = e
		}
		if len(exchanges) == len(c.Exchanges) {
			c.Exchanges = exchanges
		}
	}

	// Connections defaults
	if c.Connections.HandshakeTimeout == 0 {
		c.Connections.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connections.PingInterval == 0 {
		c.Connections.PingInterval = DefaultPingInterval
	}
	if c.Connections.PingTimeout == 0 {
		c.Connections.PingTimeout = DefaultPingTimeout
	}
	if c.Connections.WriteTimeout == 0 {
		c.Connections.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connections.BufferSize == 0 {
		c.Connections.BufferSize = DefaultBufferSize
	}

	if c.Retention.Spec == "" {
		c.Retention.Spec = DefaultRetention
	}

	// Feeds: normalize names, fill default symbols and totals windows
	for i := range c.Feeds {
		f := &c.Feeds[i]
		f.Exchange = strings.ToLower(strings.TrimSpace(f.Exchange))
		if f.Symbol == "" {
			if ex, err := model.ParseExchange(f.Exchange); err == nil {
				f.Symbol = ex.Info().DefaultSymbol
			}
		}
		f.Symbol = model.NormalizeSymbol(f.Symbol)
		if f.Totals == "" {
			f.Totals = DefaultTotals
		}
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
