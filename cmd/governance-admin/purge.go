package main

import (
	"flag"
	"fmt"

	"github.com/edunexus/governance/config"
	"github.com/edunexus/governance/internal/bootstrap"
	"github.com/edunexus/governance/internal/data"
	"github.com/edunexus/governance/internal/service"
)

type purgeOptions struct {
	BatchSize int
}

func parsePurgeFlags(args []string, defaults config.ReaperConfig) (purgeOptions, error) {
	fs := flag.NewFlagSet("purge-idempotency", flag.ContinueOnError)
	opts := purgeOptions{}
	fs.IntVar(&opts.BatchSize, "batch", defaults.BatchSize, "rows deleted per statement")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.BatchSize < 1 {
		return opts, fmt.Errorf("batch must be positive, got %d", opts.BatchSize)
	}
	return opts, nil
}

func runPurgeIdempotency(cmdCtx *commandContext, args []string) error {
	opts, err := parsePurgeFlags(args, cmdCtx.Config.Reaper)
	if err != nil {
		return err
	}
	if cmdCtx.Config.Idempotency.Backend == config.IdempotencyBackendRedis {
		return writeln(cmdCtx.Out, "redis backend: records expire through their key TTL, nothing to purge")
	}

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	reaperCfg := cmdCtx.Config.Reaper
	reaperCfg.BatchSize = opts.BatchSize
	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:   data.NewIdempotencyRepo(db, data.IdempotencyRepoOptions{Logger: cmdCtx.Logger}),
		Config: reaperCfg,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	deleted, err := reaper.PurgeExpired(cmdCtx.Ctx)
	if err != nil {
		return err
	}
	return writef(cmdCtx.Out, "deleted %d expired idempotency records\n", deleted)
}
