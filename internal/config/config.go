package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	StateFile    string
	PGDSN        string
	Journal      string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
	MetricsFile  string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("state-file", "./data/ledger.json")
	v.SetDefault("pg-dsn", "")
	v.SetDefault("journal", "./data/events.jsonl")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 50*time.Millisecond)
	v.SetDefault("log-level", "info")
	v.SetDefault("metrics-file", "")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		StateFile:    strings.TrimSpace(v.GetString("state-file")),
		PGDSN:        strings.TrimSpace(v.GetString("pg-dsn")),
		Journal:      strings.TrimSpace(v.GetString("journal")),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
		MetricsFile:  strings.TrimSpace(v.GetString("metrics-file")),
	}
	if cfg.MaxRetries < 0 {
		return Config{}, fmt.Errorf("max-retries must not be negative")
	}
	if cfg.StateFile == "" && cfg.PGDSN == "" {
		return Config{}, fmt.Errorf("either state-file or pg-dsn is required")
	}

	return cfg, nil
}
