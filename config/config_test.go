package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/warp/revenue-engine/config"
	"github.com/warp/revenue-engine/ledger"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "revenue.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr() = %s, want 127.0.0.1:8080", cfg.Addr())
	}
	if cfg.Database.Path != "revenue.db" {
		t.Errorf("Database.Path = %s", cfg.Database.Path)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s", cfg.Logging.Level)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 9090

[database]
path = ":memory:"

[policies]
gift_card = "deferred_contra"

[logging]
level = "debug"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:9090" {
		t.Errorf("Addr() = %s", cfg.Addr())
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("Database.Path = %s", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s", cfg.Logging.Level)
	}

	// An overridden policy applies; untouched kinds keep their defaults.
	ps := cfg.PolicySet()
	if got := ps[ledger.InstrumentGiftCard]; got != ledger.PolicyDeferredContra {
		t.Errorf("gift_card policy = %s, want deferred_contra", got)
	}
	if got := ps[ledger.InstrumentDeposit]; got != ledger.PolicyDeferredContra {
		t.Errorf("deposit policy = %s, want default deferred_contra", got)
	}
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Load of a missing explicit path should fail")
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "bad port",
			content: "[server]\nport = 70000\n",
		},
		{
			name:    "unknown policy name",
			content: "[policies]\ngift_card = \"cash_basis\"\n",
		},
		{
			name:    "malformed toml",
			content: "[server\nport = 8080\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := config.Load(writeConfig(t, tc.content)); err == nil {
				t.Errorf("Load should reject: %s", tc.content)
			}
		})
	}
}
