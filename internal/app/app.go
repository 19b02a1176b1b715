package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/data/db"
	apphttp "github.com/optio-learning/optio-backend/internal/http"
	"github.com/optio-learning/optio-backend/internal/jobs/worker"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/realtime"
	"github.com/optio-learning/optio-backend/internal/realtime/bus"
)

var version = "dev"

// Options selects which runtime roles New wires.
type Options struct {
	HTTP   bool
	Worker bool
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Metrics  *observability.Metrics
	Bus      bus.Bus
	SSEHub   *realtime.SSEHub
	Repos    Repos
	Services Services
	Worker   *worker.Worker
	Server   *apphttp.Server

	opts            Options
	shutdownTracing func(context.Context) error
}

// NewLogger builds the process logger for cfg.LogMode.
func NewLogger(cfg Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDatabase connects and migrates the schema.
func OpenDatabase(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	theDB, err := db.Open(cfg.dbConfig(), log)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateAll(theDB); err != nil {
		_ = db.Close(theDB)
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return theDB, nil
}

func New(ctx context.Context, cfg Config, log *logger.Logger, opts Options) (*App, error) {
	if err := cfg.ValidateCore(); err != nil {
		return nil, err
	}
	if opts.HTTP {
		if err := cfg.ValidateHTTP(); err != nil {
			return nil, err
		}
	}

	a := &App{Log: log, Cfg: cfg, opts: opts}
	a.shutdownTracing = observability.InitTracing(ctx, log, observability.TracingConfig{
		Enabled:     cfg.Observability.OTelEnabled,
		ServiceName: cfg.Observability.ServiceName,
		Environment: cfg.Observability.Environment,
		Version:     version,
		Endpoint:    cfg.Observability.Endpoint,
		Insecure:    cfg.Observability.Insecure,
		Headers:     observability.ParseHeaders(cfg.Observability.Headers),
		SampleRatio: cfg.Observability.SampleRatio,
	})
	if cfg.Observability.MetricsEnabled {
		a.Metrics = observability.NewMetrics()
	}

	theDB, err := OpenDatabase(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.DB = theDB

	eventBus, err := wireBus(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Bus = eventBus
	a.SSEHub = realtime.NewSSEHub(log)

	a.Repos = wireRepos(theDB, log)
	a.Services, err = wireServices(ctx, theDB, log, cfg, a.Repos, eventBus, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	if opts.Worker {
		a.Worker, err = wireWorker(log, cfg, a.Repos, a.Services, a.Metrics)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	if opts.HTTP {
		a.Server = apphttp.NewServer(wireRouter(log, cfg, theDB, a.Services, a.SSEHub, a.Metrics))
	}
	return a, nil
}

func wireBus(log *logger.Logger, cfg Config) (bus.Bus, error) {
	if cfg.Redis.Addr == "" {
		log.Info("REDIS_ADDR not set; realtime events stay in-process")
		return bus.NewLocalBus(), nil
	}
	b, err := bus.NewRedisBus(log, bus.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Channel:  cfg.Redis.Channel,
	})
	if err != nil {
		return nil, fmt.Errorf("init redis bus: %w", err)
	}
	return b, nil
}

// Run blocks until ctx is canceled. It starts the bus forwarder and HTTP
// server when wired, and the job worker when wired; on return every
// in-flight job has finished.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return errors.New("app not initialized")
	}
	if a.Worker != nil {
		a.Worker.Start(ctx)
		defer a.Worker.Wait()
	}
	if a.Server == nil {
		<-ctx.Done()
		return nil
	}
	if err := a.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
		return fmt.Errorf("start realtime forwarder: %w", err)
	}
	addr := ":" + a.Cfg.Server.Port
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.Server.Run(ctx, addr, a.Cfg.Server.ShutdownTimeout)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			a.Log.Warn("bus close failed", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.Server.ShutdownTimeout)
		if err := a.shutdownTracing(ctx); err != nil {
			a.Log.Warn("tracing shutdown failed", "error", err)
		}
		cancel()
	}
	if a.DB != nil {
		if err := db.Close(a.DB); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	a.Log.Sync()
}
