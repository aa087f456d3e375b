package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	appHandler "labelcheck/internal/application/handler"
	appMetrics "labelcheck/internal/application/metrics"
	appService "labelcheck/internal/application/service"
	appStore "labelcheck/internal/application/store"
	"labelcheck/internal/batch/discovery"
	"labelcheck/internal/batch/extractor"
	batchHandler "labelcheck/internal/batch/handler"
	"labelcheck/internal/batch/imagestore"
	batchMetrics "labelcheck/internal/batch/metrics"
	batchService "labelcheck/internal/batch/service"
	batchStore "labelcheck/internal/batch/store"
	jwttoken "labelcheck/internal/jwt_token"
	"labelcheck/internal/notify"
	notifyHandler "labelcheck/internal/notify/handler"
	notifyMetrics "labelcheck/internal/notify/metrics"
	"labelcheck/internal/notify/relay"
	"labelcheck/internal/platform/config"
	"labelcheck/internal/platform/httpserver"
	"labelcheck/internal/platform/kafka"
	"labelcheck/internal/platform/metrics"
	"labelcheck/internal/platform/middleware"
	"labelcheck/internal/platform/postgres"
	"labelcheck/internal/platform/redis"
	httptransport "labelcheck/internal/transport/http"
	"labelcheck/pkg/platform/circuit"
	"labelcheck/pkg/platform/fallback"
)

// app holds every long-lived component so shutdown can unwind them in order.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	server  *http.Server
	streams *notifyHandler.Handler
	batches *batchService.Service
	bus     *notify.Bus
	relay   *relay.Relay
	closers []func() error
}

func postgresConfig(c config.Database) postgres.Config {
	return postgres.Config{
		URL:             c.URL,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	for _, dir := range []string{cfg.Batch.StagingDir, cfg.Batch.UploadDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	reg := metrics.New(version())
	health := map[string]httptransport.HealthCheck{}

	db, err := postgres.Open(ctx, postgresConfig(cfg.Database))
	if err != nil {
		return nil, err
	}
	if db != nil {
		a.closers = append(a.closers, db.Close)
		if err := postgres.Bootstrap(ctx, db); err != nil {
			return nil, err
		}
		health["postgres"] = db.PingContext
	}

	nm := notifyMetrics.New(reg.Registry)
	a.bus = notify.NewBus(
		notify.WithBufferSize(cfg.NotifyBuffer),
		notify.WithLogger(log),
		notify.WithMetrics(nm),
	)

	apps := appService.New(a.applicationStore(db), a.bus,
		appService.WithLogger(log),
		appService.WithMetrics(appMetrics.New(reg.Registry)),
		appService.WithTracer(otel.Tracer("labelcheck/application")),
		appService.WithLockTimeout(cfg.LockTimeout),
	)

	images, err := imagestore.New(cfg.Batch.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("open image store: %w", err)
	}
	a.batches = batchService.New(a.batchStore(db), apps, extractor.New(), images, a.bus,
		batchService.WithLogger(log),
		batchService.WithMetrics(batchMetrics.New(reg.Registry)),
		batchService.WithTracer(otel.Tracer("labelcheck/batch")),
		batchService.WithWorkers(cfg.Batch.Workers),
		batchService.WithMaxAttempts(cfg.Batch.MaxAttempts),
		batchService.WithMaxItems(cfg.Batch.MaxItems),
		batchService.WithRetryBackoff(batchService.RetryBackoff{Initial: cfg.Batch.RetryInitial, Max: cfg.Batch.RetryMax}),
		batchService.WithArchiveLimits(discovery.Limits{MaxFiles: cfg.Batch.MaxArchiveFiles, MaxBytes: cfg.Batch.MaxArchiveBytes}),
		batchService.WithStagingDir(cfg.Batch.StagingDir),
	)

	sinks, err := a.sinks(ctx, health)
	if err != nil {
		return nil, err
	}
	if len(sinks) > 0 {
		a.relay = relay.New(a.bus, sinks, relay.WithLogger(log), relay.WithMetrics(nm))
	}

	auth := middleware.RequireActor(jwttoken.New(cfg.Auth.JWTSigningKey), log)
	if cfg.Auth.Disabled {
		auth = middleware.TrustHeaders(log)
	}
	a.streams = notifyHandler.New(a.bus, apps, log, notifyHandler.WithHeartbeat(cfg.SSEHeartbeat))
	router := httptransport.NewRouter(httptransport.Deps{
		Logger: log,
		Auth:   auth,
		Modules: []httptransport.Registrar{
			appHandler.New(apps, log),
			batchHandler.New(a.batches, log,
				batchHandler.WithUploadDir(cfg.Batch.UploadDir),
				batchHandler.WithMaxUploadBytes(cfg.Batch.MaxUploadBytes),
			),
			a.streams,
		},
		Metrics: reg.Handler(),
		Health:  health,
	})
	a.server = httpserver.New(cfg.Server.Addr, router)
	a.server.RegisterOnShutdown(a.streams.Close)
	return a, nil
}

// applicationStore keeps state in memory and mirrors it to Postgres when a
// database is configured.
func (a *app) applicationStore(db *sql.DB) appService.Store {
	memory := appStore.NewInMemory()
	if db == nil {
		return memory
	}
	return appStore.NewFallback(memory, appStore.NewPostgres(db), a.guard("applications"))
}

func (a *app) batchStore(db *sql.DB) batchStore.Repository {
	memory := batchStore.NewInMemory()
	if db == nil {
		return memory
	}
	return batchStore.NewFallback(memory, batchStore.NewPostgres(db), a.guard("batches"))
}

func (a *app) guard(name string) *fallback.Guard {
	breaker := circuit.New(name,
		circuit.WithFailureThreshold(a.cfg.BreakerFailures),
		circuit.WithCooldown(a.cfg.BreakerCooldown),
	)
	return fallback.NewGuard(name, breaker, a.logger)
}

// sinks connects the configured notification relays.
func (a *app) sinks(ctx context.Context, health map[string]httptransport.HealthCheck) ([]relay.Sink, error) {
	var sinks []relay.Sink

	rc, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, rc.Close)
		health["redis"] = rc.Health
		sinks = append(sinks, relay.NewRedisSink(rc.Client, a.cfg.Redis.Channel))
	}

	kc, err := kafka.New(ctx, a.cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if kc != nil {
		sink := relay.NewKafkaSink(kc, a.cfg.Kafka.Topic)
		a.closers = append(a.closers, sink.Close)
		if err := relay.EnsureTopic(ctx, kc, a.cfg.Kafka.Topic, int32(a.cfg.Kafka.Partitions), int16(a.cfg.Kafka.Replicas)); err != nil {
			return nil, err
		}
		health["kafka"] = kc.Ping
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

// run serves until ctx is cancelled, then drains HTTP, waits for running
// batches, closes the bus and releases connections.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.relay != nil {
		g.Go(func() error {
			// The relay stops when the bus closes during shutdown.
			if err := a.relay.Run(context.WithoutCancel(gctx)); err != nil {
				return fmt.Errorf("notification relay: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer a.shutdownBackground()
		return httpserver.Run(gctx, a.server, a.cfg.Server.ShutdownTimeout, a.logger)
	})

	err := g.Wait()
	a.close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("labelcheck stopped")
	return nil
}

func (a *app) shutdownBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.batches.Shutdown(ctx); err != nil {
		a.logger.Warn("batch jobs still running at shutdown", "error", err)
	}
	a.bus.Close()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
