package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-tradeflow
exchanges:
  bitfinex:
    release_event: unsubscribe
  gdax:
    ws_url: wss://ws-feed-public.sandbox.exchange.coinbase.com
connections:
  ping_timeout: 45s
retention:
  spec: "500"
feeds:
  - exchange: gdax
    symbol: BTC-USD
  - exchange: bitfinex
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-tradeflow", cfg.Instance.ID)
	assert.Equal(t, "unsubscribe", cfg.Exchange("bitfinex").ReleaseEvent)
	assert.Equal(t, "wss://ws-feed-public.sandbox.exchange.coinbase.com", cfg.Exchange("gdax").WSURL)
	assert.Equal(t, 45*time.Second, cfg.Connections.PingTimeout)
	assert.Equal(t, "500", cfg.Retention.Spec)
	require.Len(t, cfg.Feeds, 2)
	assert.Equal(t, "BTC-USD", cfg.Feeds[0].Symbol)
	assert.Empty(t, cfg.Feeds[1].Symbol, "Load applies no defaults")
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_GDAX_URL", "ws://127.0.0.1:9999")
	t.Setenv("TEST_RETENTION", "1h")

	yaml := `
exchanges:
  gdax:
    ws_url: ${TEST_GDAX_URL}
retention:
  spec: ${TEST_RETENTION}
feeds:
  - exchange: gdax
`
	cfg, err := Load(writeTempFile(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "ws://127.0.0.1:9999", cfg.Exchange("gdax").WSURL)
	assert.Equal(t, "1h", cfg.Retention.Spec)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = Load(writeTempFile(t, "feeds: [unterminated"))
	assert.ErrorContains(t, err, "parse config yaml")
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
exchanges:
  BitMEX:
    enabled: false
feeds:
  - exchange: BitFlyer
  - exchange: gdax
    symbol: eth-usd
    totals: 1h
`
	cfg, err := LoadWithDefaults(writeTempFile(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, DefaultInstanceID, cfg.Instance.ID)
	assert.Equal(t, DefaultHandshakeTimeout, cfg.Connections.HandshakeTimeout)
	assert.Equal(t, DefaultPingInterval, cfg.Connections.PingInterval)
	assert.Equal(t, DefaultPingTimeout, cfg.Connections.PingTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.Connections.WriteTimeout)
	assert.Equal(t, DefaultBufferSize, cfg.Connections.BufferSize)
	assert.Equal(t, DefaultRetention, cfg.Retention.Spec)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, DefaultHealthPort, cfg.Health.Port)

	assert.Equal(t, FeedConfig{Exchange: "bitflyer", Symbol: "BTC_JPY", Totals: DefaultTotals}, cfg.Feeds[0])
	assert.Equal(t, FeedConfig{Exchange: "gdax", Symbol: "ETH-USD", Totals: "1h"}, cfg.Feeds[1])

	assert.False(t, cfg.Exchange("bitmex").IsEnabled())
	assert.True(t, cfg.Exchange("gdax").IsEnabled())
}

func TestLoadAndValidate(t *testing.T) {
	_, err := LoadAndValidate(writeTempFile(t, "instance:\n  id: x\n"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "validate config: "), err.Error())

	cfg, err := LoadAndValidate(writeTempFile(t, "feeds:\n  - exchange: bitfinex\n"))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSD", cfg.Feeds[0].Symbol)
}

func validConfig() Config {
	cfg := Config{
		Feeds: []FeedConfig{{Exchange: "gdax"}},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	disabled := false

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "unknown exchange section",
			mutate:  func(c *Config) { c.Exchanges = map[string]ExchangeConfig{"kraken": {}} },
			wantErr: `exchanges.kraken: unknown exchange "kraken"`,
		},
		{
			name: "bad release event",
			mutate: func(c *Config) {
				c.Exchanges = map[string]ExchangeConfig{"bitfinex": {ReleaseEvent: "leave"}}
			},
			wantErr: `exchanges.bitfinex.release_event must be subscribe or unsubscribe, got "leave"`,
		},
		{
			name: "bad exchange retention",
			mutate: func(c *Config) {
				c.Exchanges = map[string]ExchangeConfig{"gdax": {Retention: "0m"}}
			},
			wantErr: `exchanges.gdax.retention "0m" is neither a time window nor a record count`,
		},
		{
			name:    "ping timeout shorter than interval",
			mutate:  func(c *Config) { c.Connections.PingTimeout = time.Second },
			wantErr: "connections.ping_timeout (1s) cannot be shorter than ping_interval (30s)",
		},
		{
			name:    "zero buffer",
			mutate:  func(c *Config) { c.Connections.BufferSize = 0 },
			wantErr: "connections.buffer_size must be >= 1",
		},
		{
			name:    "bad retention",
			mutate:  func(c *Config) { c.Retention.Spec = "-5" },
			wantErr: `retention.spec "-5" is neither a time window nor a record count`,
		},
		{
			name:    "zero retention keeps everything",
			mutate:  func(c *Config) { c.Retention.Spec = "0" },
			wantErr: "",
		},
		{
			name:    "no feeds",
			mutate:  func(c *Config) { c.Feeds = nil },
			wantErr: "feeds must list at least one exchange/symbol",
		},
		{
			name:    "unknown feed exchange",
			mutate:  func(c *Config) { c.Feeds[0].Exchange = "kraken" },
			wantErr: `feeds[0].exchange: unknown exchange "kraken"`,
		},
		{
			name: "disabled feed exchange",
			mutate: func(c *Config) {
				c.Exchanges = map[string]ExchangeConfig{"gdax": {Enabled: &disabled}}
			},
			wantErr: `feeds[0].exchange "gdax" is disabled`,
		},
		{
			name: "disabled exchange under mixed-case key",
			mutate: func(c *Config) {
				c.Exchanges = map[string]ExchangeConfig{"GDAX": {Enabled: &disabled}}
			},
			wantErr: `feeds[0].exchange "gdax" is disabled`,
		},
		{
			name: "duplicate exchange sections",
			mutate: func(c *Config) {
				c.Exchanges = map[string]ExchangeConfig{"gdax": {}, "GDAX": {}}
			},
			wantErr: "exchanges.gdax duplicates exchanges.GDAX",
		},
		{
			name:    "fractional minimum",
			mutate:  func(c *Config) { c.Feeds[0].Minimum = "0.5" },
			wantErr: "",
		},
		{
			name:    "negative minimum",
			mutate:  func(c *Config) { c.Feeds[0].Minimum = "-1" },
			wantErr: `feeds[0].minimum "-1" must be a non-negative number`,
		},
		{
			name:    "non-numeric minimum",
			mutate:  func(c *Config) { c.Feeds[0].Minimum = "lots" },
			wantErr: `feeds[0].minimum "lots" must be a non-negative number`,
		},
		{
			name:    "count totals",
			mutate:  func(c *Config) { c.Feeds[0].Totals = "100" },
			wantErr: `feeds[0].totals "100" must be a time window`,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: `logging.level must be one of debug, info, warn, error, got "trace"`,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
		{
			name:    "bad health port",
			mutate:  func(c *Config) { c.Health.Port = 70000 },
			wantErr: "health.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestExchangeLookupIgnoresCase(t *testing.T) {
	disabled := false
	cfg := Config{Exchanges: map[string]ExchangeConfig{
		"BitMEX": {Enabled: &disabled, Retention: "100"},
	}}

	assert.Equal(t, "100", cfg.Exchange("bitmex").Retention)
	assert.Equal(t, "100", cfg.Exchange(" BITMEX ").Retention)
	assert.False(t, cfg.Exchange("bitmex").IsEnabled())
	assert.True(t, cfg.Exchange("gdax").IsEnabled())
	assert.Equal(t, ExchangeConfig{}, cfg.Exchange("kraken"))
}

func TestFeedMinimumSize(t *testing.T) {
	size, err := FeedConfig{}.MinimumSize()
	require.NoError(t, err)
	assert.True(t, size.IsZero())

	size, err = FeedConfig{Minimum: "2.5"}.MinimumSize()
	require.NoError(t, err)
	assert.Equal(t, "2.5", size.String())

	_, err = FeedConfig{Minimum: "x"}.MinimumSize()
	assert.Error(t, err)
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
