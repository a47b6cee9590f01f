// Package app wires the fetcher worker's dependencies and runs the shared
// stage loop, matching the teacher's per-service cmd/<service>/main.go +
// internal/app shape.
package app

import (
	"context"
	"flag"
	"log/slog"
	"os"

	rediscli "github.com/sitesearch/pipeline/core/libs/redis"
	"github.com/sitesearch/pipeline/core/handler"
	"github.com/sitesearch/pipeline/core/queue"
	fcfg "github.com/sitesearch/pipeline/fetcher/internal/infra/config"
	fhandler "github.com/sitesearch/pipeline/fetcher/internal/handler"
)

// Run parses flags, connects Redis, and runs the fetch loop until ctx is
// cancelled.
func Run(ctx context.Context) error {
	var configPath, workerID string
	flag.StringVar(&configPath, "config", "./configs/fetcher.yaml", "path to fetcher config")
	flag.StringVar(&workerID, "worker-id", "", "worker identifier assigned by the supervisor")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := fcfg.MustLoad(configPath)

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

	h, err := fhandler.New(cfg, qm, log)
	if err != nil {
		return err
	}

	return handler.Loop(ctx, handler.Config{
		Stage:       "fetcher",
		WorkerID:    workerID,
		InputQueue:  cfg.InputQueue,
		OutputQueue: cfg.OutputQueue,
		PollTimeout: cfg.Stage.PollTimeout,
		MaxRetries:  cfg.Stage.MaxRetries,
		Logger:      log,
	}, qm, h)
}
