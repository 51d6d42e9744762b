package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolLedger/internal/config"
	"poolLedger/internal/ledger"
	"poolLedger/internal/storage"
	"poolLedger/internal/storage/postgres"
)

// app bundles what every subcommand needs.
type app struct {
	ledger      *ledger.Service
	logger      *zap.Logger
	store       storage.Store
	journal     *storage.JsonlJournal
	registry    *prometheus.Registry
	metricsFile string
}

// Close releases the store and journal and writes the metrics file.
func (a *app) Close() error {
	var err error
	if a.metricsFile != "" {
		if werr := prometheus.WriteToTextfile(a.metricsFile, a.registry); werr != nil {
			err = fmt.Errorf("write metrics: %w", werr)
		}
	}
	if a.journal != nil {
		if cerr := a.journal.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close journal: %w", cerr)
		}
	}
	a.store.Close()
	_ = a.logger.Sync()
	return err
}

func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		store = pg
	} else {
		fs, err := storage.OpenFileStore(cfg.StateFile)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	a := &app{
		logger:      logger,
		store:       store,
		registry:    prometheus.NewRegistry(),
		metricsFile: cfg.MetricsFile,
	}

	var journal storage.Journal
	if cfg.Journal != "" {
		a.journal = storage.NewJsonlJournal(cfg.Journal)
		journal = a.journal
	}

	a.ledger = ledger.NewService(ledger.Config{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, store, journal, logger, ledger.NewMetrics(a.registry))

	logger.Debug("ledger opened",
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.String("state_file", cfg.StateFile),
		zap.String("journal", cfg.Journal),
		zap.String("metrics_file", cfg.MetricsFile),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("retry_backoff", cfg.RetryBackoff),
	)

	return a, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
