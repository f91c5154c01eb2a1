package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/retention"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	seen := make(map[model.Exchange]string, len(c.Exchanges))
	for _, name := range sortedKeys(c.Exchanges) {
		ex, err := model.ParseExchange(name)
		if err != nil {
			return fmt.Errorf("exchanges.%s: %w", name, err)
		}
		if prev, ok := seen[ex]; ok {
			return fmt.Errorf("exchanges.%s duplicates exchanges.%s", name, prev)
		}
		seen[ex] = name
		if err := c.Exchanges[name].validate("exchanges." + name); err != nil {
			return err
		}
	}

	if err := c.Connections.validate("connections"); err != nil {
		return err
	}

	if !retention.Valid(c.Retention.Spec) {
		return fmt.Errorf("retention.spec %q is neither a time window nor a record count", c.Retention.Spec)
	}

	if len(c.Feeds) == 0 {
		return errors.New("feeds must list at least one exchange/symbol")
	}
	for i, f := range c.Feeds {
		prefix := fmt.Sprintf("feeds[%d]", i)
		if _, err := model.ParseExchange(f.Exchange); err != nil {
			return fmt.Errorf("%s.exchange: %w", prefix, err)
		}
		if !c.Exchange(f.Exchange).IsEnabled() {
			return fmt.Errorf("%s.exchange %q is disabled", prefix, f.Exchange)
		}
		if f.Symbol == "" {
			return fmt.Errorf("%s.symbol is required", prefix)
		}
		if retention.Parse(f.Totals).Kind() != retention.Window {
			return fmt.Errorf("%s.totals %q must be a time window", prefix, f.Totals)
		}
		if size, err := f.MinimumSize(); err != nil || size.IsNegative() {
			return fmt.Errorf("%s.minimum %q must be a non-negative number", prefix, f.Minimum)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (e ExchangeConfig) validate(prefix string) error {
	switch e.ReleaseEvent {
	case "", "subscribe", "unsubscribe":
	default:
		return fmt.Errorf("%s.release_event must be subscribe or unsubscribe, got %q", prefix, e.ReleaseEvent)
	}
	if e.Retention != "" && !retention.Valid(e.Retention) {
		return fmt.Errorf("%s.retention %q is neither a time window nor a record count", prefix, e.Retention)
	}
	return nil
}

func (cc *ConnectionsConfig) validate(prefix string) error {
	if cc.HandshakeTimeout <= 0 {
		return fmt.Errorf("%s.handshake_timeout must be > 0", prefix)
	}
	if cc.PingInterval <= 0 {
		return fmt.Errorf("%s.ping_interval must be > 0", prefix)
	}
	if cc.PingTimeout < cc.PingInterval {
		return fmt.Errorf("%s.ping_timeout (%s) cannot be shorter than ping_interval (%s)", prefix, cc.PingTimeout, cc.PingInterval)
	}
	if cc.WriteTimeout <= 0 {
		return fmt.Errorf("%s.write_timeout must be > 0", prefix)
	}
	if cc.BufferSize < 1 {
		return fmt.Errorf("%s.buffer_size must be >= 1", prefix)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
