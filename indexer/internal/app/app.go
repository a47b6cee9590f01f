package app

import (
	"context"
	"flag"
	"log/slog"
	"os"

	icfg "github.com/sitesearch/pipeline/indexer/internal/infra/config"
	ihandler "github.com/sitesearch/pipeline/indexer/internal/handler"
	"github.com/sitesearch/pipeline/indexer/internal/stub"
	"github.com/sitesearch/pipeline/core/chunk"
	"github.com/sitesearch/pipeline/core/handler"
	"github.com/sitesearch/pipeline/core/queue"
	rediscli "github.com/sitesearch/pipeline/core/libs/redis"
)

// Run parses flags, connects Redis, and runs the index loop until ctx is
// cancelled. The embedding and vector-store collaborators are the local
// deterministic stubs; wiring a real embedding service or vector database
// means swapping the two arguments to ihandler.New.
func Run(ctx context.Context) error {
	var configPath, workerID string
	flag.StringVar(&configPath, "config", "./configs/indexer.yaml", "path to indexer config")
	flag.StringVar(&workerID, "worker-id", "", "worker identifier assigned by the supervisor")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := icfg.MustLoad(configPath)

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
	h := ihandler.New(
		stub.NewEmbeddingProvider(32),
		stub.NewVectorStore(),
		chunk.Options{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
	)

	return handler.Loop(ctx, handler.Config{
		Stage:       "indexer",
		WorkerID:    workerID,
		InputQueue:  cfg.InputQueue,
		OutputQueue: "",
		PollTimeout: cfg.Stage.PollTimeout,
		MaxRetries:  cfg.Stage.MaxRetries,
		Logger:      log,
	}, qm, h)
}
