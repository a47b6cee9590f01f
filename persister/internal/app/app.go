package app

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	pcfg "github.com/sitesearch/pipeline/persister/internal/infra/config"
	phandler "github.com/sitesearch/pipeline/persister/internal/handler"
	"github.com/sitesearch/pipeline/core/handler"
	"github.com/sitesearch/pipeline/core/queue"
	rediscli "github.com/sitesearch/pipeline/core/libs/redis"
)

// Run parses flags, connects Postgres and Redis, and runs the persist loop
// until ctx is cancelled.
func Run(ctx context.Context) error {
	var configPath, workerID string
	flag.StringVar(&configPath, "config", "./configs/persister.yaml", "path to persister config")
	flag.StringVar(&workerID, "worker-id", "", "worker identifier assigned by the supervisor")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := pcfg.MustLoad(configPath)

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	poolCfg.MaxConns = cfg.Postgres.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	rdb, err := rediscli.NewClient(rediscli.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	qm := queue.New(rdb)
	h := phandler.New(pool, rdb)

	return handler.Loop(ctx, handler.Config{
		Stage:       "persister",
		WorkerID:    workerID,
		InputQueue:  cfg.InputQueue,
		OutputQueue: cfg.OutputQueue,
		PollTimeout: cfg.Stage.PollTimeout,
		MaxRetries:  cfg.Stage.MaxRetries,
		Logger:      log,
	}, qm, h)
}
