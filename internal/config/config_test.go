package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := Config{
		StateFile:    "./data/ledger.json",
		Journal:      "./data/events.jsonl",
		MaxRetries:   5,
		RetryBackoff: 50 * time.Millisecond,
		LogLevel:     "info",
	}
	if cfg != want {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "amm.yaml")
	content := "state-file: /var/lib/amm/ledger.json\nmax-retries: 2\nlog-level: debug\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AMM_RETRY_BACKOFF", "250ms")
	t.Setenv("AMM_PG_DSN", "postgres://amm@localhost/amm")
	t.Setenv("AMM_METRICS_FILE", "/var/lib/node_exporter/amm.prom")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("journal", "./data/events.jsonl", "")
	if err := flags.Parse([]string{"--log-level=warn", "--journal="}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(cfgFile, flags)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.StateFile != "/var/lib/amm/ledger.json" {
		t.Fatalf("state file from config file: %q", cfg.StateFile)
	}
	if cfg.MaxRetries != 2 {
		t.Fatalf("max retries from config file: %d", cfg.MaxRetries)
	}
	if cfg.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("retry backoff from env: %s", cfg.RetryBackoff)
	}
	if cfg.PGDSN != "postgres://amm@localhost/amm" {
		t.Fatalf("pg dsn from env: %q", cfg.PGDSN)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("changed flag should win over config file: %q", cfg.LogLevel)
	}
	if cfg.MetricsFile != "/var/lib/node_exporter/amm.prom" {
		t.Fatalf("metrics file from env: %q", cfg.MetricsFile)
	}
	if cfg.Journal != "" {
		t.Fatalf("empty journal flag should disable the journal: %q", cfg.Journal)
	}
}

func TestLoadRejectsNegativeRetries(t *testing.T) {
	t.Setenv("AMM_MAX_RETRIES", "-1")
	if _, err := Load("", nil); err == nil {
		t.Fatalf("expected error for negative retries")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for explicit missing config file")
	}
}
