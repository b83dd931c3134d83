package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/retail-ledger/internal/app"
	"github.com/odyssey-erp/retail-ledger/internal/platform/cache"
	"github.com/odyssey-erp/retail-ledger/internal/platform/db"
	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

type rootOptions struct {
	actor   int64
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the retail ledger",
		Long: `ledgerctl runs maintenance tasks against the ledger database.

Example:
  ledgerctl seed --file chart.yaml
  ledgerctl trial-balance --as-of 2024-03-31
  ledgerctl sequence sync
  ledgerctl jobs trigger integrity`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().Int64Var(&opts.actor, "actor", 0, "user id recorded in the audit log")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	cmd.AddCommand(
		newSeedCmd(opts),
		newTrialBalanceCmd(opts),
		newSequenceCmd(opts),
		newJobsCmd(opts),
	)
	return cmd
}

// environment holds the connections a command needs.
type environment struct {
	cfg      *app.Config
	logger   *slog.Logger
	services *app.Services
	close    func()
}

// context returns ctx carrying the configured actor.
func (o *rootOptions) context(ctx context.Context) context.Context {
	if o.actor > 0 {
		return shared.ContextWithActor(ctx, o.actor)
	}
	return ctx
}

func (o *rootOptions) config() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if o.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, app.NewLoggerTo(cfg, os.Stderr), nil
}

// open connects to Postgres and, when reachable, Redis.
func (o *rootOptions) open(ctx context.Context) (*environment, error) {
	cfg, logger, err := o.config()
	if err != nil {
		return nil, err
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 4})
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Debug("redis unavailable, balance cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	closeAll := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		pool.Close()
	}
	services, err := app.BuildServices(ctx, cfg, pool, redisClient, nil, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger, services: services, close: closeAll}, nil
}
