package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sitesearch/pipeline/core/domain"
	natsq "github.com/sitesearch/pipeline/core/libs/nats"
	rediscli "github.com/sitesearch/pipeline/core/libs/redis"
	"github.com/sitesearch/pipeline/core/queue"
	"github.com/sitesearch/pipeline/internal/infra/config"
	"github.com/sitesearch/pipeline/internal/infra/metrics"
	"github.com/sitesearch/pipeline/internal/monitor"
	"github.com/sitesearch/pipeline/internal/supervisor"
	"github.com/sitesearch/pipeline/internal/transport"
	"github.com/sitesearch/pipeline/internal/usecase"
)

const cfgPath = "./configs/local.yaml"

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis *redis.Client
	qm    *queue.Manager

	natsConn *nats.Conn

	supervisor *supervisor.Supervisor
	monitor    *monitor.Monitor
	collectors *metrics.Collectors

	server *http.Server
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(cfgPath)
	}
	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("RedisClient: %+v", err)
		}
		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) QueueManager(ctx context.Context) *queue.Manager {
	if di.qm == nil {
		di.qm = queue.New(di.RedisClient(ctx))
	}
	return di.qm
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		if cfg.URL == "" {
			return nil
		}
		conn, err := natsq.NewConnect(cfg.URL, natsq.Config{Name: cfg.Name, MaxReconnects: cfg.MaxReconnects})
		if err != nil {
			di.Logger().Warn("nats connect failed, alerts will not be published", slog.String("error", err.Error()))
			return nil
		}
		di.natsConn = conn
		di.Logger().Info("connected to nats", slog.String("url", cfg.URL))
	}
	return di.natsConn
}

// queueNames returns the real Redis queue names each stage consumes from
// (url/crawl/clean/index), not the stage names themselves, so the Monitor
// samples and the admin surface reports the queues that actually exist.
func (di *dependencyInjector) queueNames() []string {
	cfg := di.Config()
	names := make([]string, 0, len(cfg.Stages))
	for _, launch := range cfg.Stages {
		if launch.InputQueue == "" {
			continue
		}
		names = append(names, launch.InputQueue)
	}
	return names
}

func (di *dependencyInjector) Supervisor(ctx context.Context) *supervisor.Supervisor {
	if di.supervisor == nil {
		di.supervisor = supervisor.New(di.Config(), di.QueueManager(ctx), di.Logger())

		collectors := di.Collectors()
		di.supervisor.SetStageObserver(func(stage string, active, desired int) {
			collectors.ObserveStage(stage, active, desired)
		})
	}
	return di.supervisor
}

func (di *dependencyInjector) Monitor(ctx context.Context) *monitor.Monitor {
	if di.monitor == nil {
		cfg := di.Config()
		di.monitor = monitor.New(di.QueueManager(ctx), monitor.Config{
			QueueNames:      di.queueNames(),
			CheckInterval:   cfg.MonitorInterval,
			MaxPending:      cfg.MonitorMaxPending,
			MaxErrorRate:    cfg.MonitorMaxErrorRate,
			ActivityTimeout: cfg.MonitorActivityTimeout,
		}, di.Logger(), di.NATSConn(ctx))

		collectors := di.Collectors()
		di.monitor.AddSampleCallback(func(status domain.QueueHealthStatus) {
			collectors.ObserveQueue(status.Metrics)
		})
	}
	return di.monitor
}

func (di *dependencyInjector) Collectors() *metrics.Collectors {
	if di.collectors == nil {
		di.collectors = metrics.NewCollectors(prometheus.DefaultRegisterer)
	}
	return di.collectors
}

func (di *dependencyInjector) Router(ctx context.Context) http.Handler {
	uc := usecase.New(di.QueueManager(ctx), di.Supervisor(ctx), di.Monitor(ctx))
	return transport.NewRouter(uc, di.queueNames())
}

func (di *dependencyInjector) Server(ctx context.Context) *http.Server {
	if di.server == nil {
		di.server = &http.Server{
			Addr:    di.Config().AdminAddr,
			Handler: di.Router(ctx),
		}
	}
	return di.server
}
