package app

import (
	"context"
	"flag"
	"log/slog"
	"os"

	rediscli "github.com/sitesearch/pipeline/core/libs/redis"
	"github.com/sitesearch/pipeline/core/handler"
	"github.com/sitesearch/pipeline/core/queue"
	ccfg "github.com/sitesearch/pipeline/cleaner/internal/infra/config"
	chandler "github.com/sitesearch/pipeline/cleaner/internal/handler"
)

// Run parses flags, connects Redis, and runs the clean loop until ctx is
// cancelled.
func Run(ctx context.Context) error {
	var configPath, workerID string
	flag.StringVar(&configPath, "config", "./configs/cleaner.yaml", "path to cleaner config")
	flag.StringVar(&workerID, "worker-id", "", "worker identifier assigned by the supervisor")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := ccfg.MustLoad(configPath)

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
	h := chandler.New(rdb)

	return handler.Loop(ctx, handler.Config{
		Stage:       "cleaner",
		WorkerID:    workerID,
		InputQueue:  cfg.InputQueue,
		OutputQueue: cfg.OutputQueue,
		PollTimeout: cfg.Stage.PollTimeout,
		MaxRetries:  cfg.Stage.MaxRetries,
		Logger:      log,
	}, qm, h)
}
