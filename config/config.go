/*
Package config loads server configuration from TOML.

PURPOSE:
  One small struct covering everything the server binary needs: listen
  address, journal path, per-instrument recognition policies, log level.
  Defaults work out of the box; a config file overrides them; flags on
  the CLI override the file.

EXAMPLE (revenue.toml):

  [server]
  host = "127.0.0.1"
  port = 8080

  [database]
  path = "./data/revenue.db"

  [policies]
  gift_card = "payments_only"
  deposit = "deferred_contra"
  invoice = "deferred_contra"
  online_advance_order = "payments_only"

  [logging]
  level = "info"
*/
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/warp/revenue-engine/ledger"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Policies PolicyConfig   `toml:"policies"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	// Path is the SQLite journal location. ":memory:" keeps everything
	// in-process, which is what the demo scenarios want.
	Path string `toml:"path"`
}

// PolicyConfig names a RecognitionPolicy per instrument kind.
type PolicyConfig struct {
	GiftCard           string `toml:"gift_card"`
	Invoice            string `toml:"invoice"`
	Deposit            string `toml:"deposit"`
	OnlineAdvanceOrder string `toml:"online_advance_order"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server:   ServerConfig{Host: "127.0.0.1", Port: 8080},
		Database: DatabaseConfig{Path: "revenue.db"},
		Policies: PolicyConfig{
			GiftCard:           string(ledger.PolicyPaymentsOnly),
			Invoice:            string(ledger.PolicyDeferredContra),
			Deposit:            string(ledger.PolicyDeferredContra),
			OnlineAdvanceOrder: string(ledger.PolicyPaymentsOnly),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a TOML file over the defaults. A missing path (empty string)
// returns the defaults; a present-but-broken file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, fmt.Errorf("config file not found: %s", path)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	for kind, name := range map[string]string{
		"gift_card":            c.Policies.GiftCard,
		"invoice":              c.Policies.Invoice,
		"deposit":              c.Policies.Deposit,
		"online_advance_order": c.Policies.OnlineAdvanceOrder,
	} {
		if name != "" && !ledger.RecognitionPolicy(name).Valid() {
			return fmt.Errorf("unknown recognition policy %q for %s", name, kind)
		}
	}
	return nil
}

// PolicySet converts the configured names into the engine's policy map.
// Unset entries fall back to the engine defaults.
func (c Config) PolicySet() ledger.PolicySet {
	ps := ledger.DefaultPolicies()
	set := func(kind ledger.InstrumentKind, name string) {
		if p := ledger.RecognitionPolicy(name); p.Valid() {
			ps[kind] = p
		}
	}
	set(ledger.InstrumentGiftCard, c.Policies.GiftCard)
	set(ledger.InstrumentInvoice, c.Policies.Invoice)
	set(ledger.InstrumentDeposit, c.Policies.Deposit)
	set(ledger.InstrumentOnlineAdvanceOrder, c.Policies.OnlineAdvanceOrder)
	return ps
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
