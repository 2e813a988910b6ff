package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/hashicorp/go-multierror"
	"github.com/kursadbilgin/claim-validation/internal/config"
	"github.com/kursadbilgin/claim-validation/internal/handler"
	"github.com/kursadbilgin/claim-validation/internal/infra/postgresql"
	"github.com/kursadbilgin/claim-validation/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/claim-validation/internal/infra/redis"
	"github.com/kursadbilgin/claim-validation/internal/observability"
	"github.com/kursadbilgin/claim-validation/internal/queue"
	"github.com/kursadbilgin/claim-validation/internal/ratelimit"
	"github.com/kursadbilgin/claim-validation/internal/repository"
	"github.com/kursadbilgin/claim-validation/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// app holds the resources shared by every long-running command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	sqlDB   *sql.DB
	rdb     *redis.Client
	rabbit  *queue.RabbitMQ
	metrics *observability.Metrics
	closers []func() error
}

func newApp(ctx context.Context, name string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(name, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("postgres initialization failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	a.db, a.sqlDB = db, sqlDB
	a.closers = append(a.closers, sqlDB.Close)

	if cfg.AutoMigrate {
		if err := migrations.Migrate(db); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("database migrations failed: %w", err)
		}
	}

	if cfg.RedisURL != "" {
		rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("redis initialization failed: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, rdb.Close)
	}

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}

func (a *app) stores() repository.Stores {
	return repository.NewStores(a.db)
}

func (a *app) rabbitMQ() (*queue.RabbitMQ, error) {
	if a.rabbit != nil {
		return a.rabbit, nil
	}

	client, err := queue.NewRabbitMQ(a.cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	a.rabbit = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

func (a *app) publisher() (queue.Publisher, error) {
	switch a.cfg.Backend {
	case queue.BackendKafka:
		p, err := queue.NewKafkaPublisher(a.cfg.Brokers())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	default:
		client, err := a.rabbitMQ()
		if err != nil {
			return nil, err
		}
		p := queue.NewRabbitMQPublisher(client)
		a.closers = append(a.closers, p.Close)
		return p, nil
	}
}

func (a *app) consumer() (queue.Consumer, error) {
	switch a.cfg.Backend {
	case queue.BackendKafka:
		c, err := queue.NewKafkaConsumer(a.cfg.Brokers(), a.cfg.KafkaGroupID, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return c, nil
	default:
		client, err := a.rabbitMQ()
		if err != nil {
			return nil, err
		}
		c := queue.NewRabbitMQConsumer(client, a.cfg.WorkerConcurrency, a.logger)
		a.closers = append(a.closers, c.Close)
		return c, nil
	}
}

// rateLimiter shares the per-client budget through redis when configured.
func (a *app) rateLimiter() (ratelimit.RateLimiter, error) {
	if a.rdb == nil {
		a.logger.Warn("REDIS_URL not set, using in-process rate limiter")
		return ratelimit.NewLocalRateLimiter(a.cfg.ClientRateLimit), nil
	}
	limiter, err := infraredis.NewRedisRateLimiter(a.rdb, a.cfg.ClientRateLimit)
	if err != nil {
		return nil, fmt.Errorf("redis rate limiter initialization failed: %w", err)
	}
	return limiter, nil
}

// newFiber builds an app with the shared middleware, health and metrics routes.
func (a *app) newFiber() *fiber.App {
	f := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(a.logger),
	})
	f.Use(observability.CorrelationMiddleware())
	f.Use(a.metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(f, a.sqlDB, a.rdb)
	f.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	return f
}

// serve listens on API_PORT until ctx is cancelled, then shuts down gracefully.
func (a *app) serve(ctx context.Context, f *fiber.App) error {
	addr := fmt.Sprintf(":%d", a.cfg.APIPort)
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.Listen(addr)
	}()

	a.logger.Info("http server listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		return f.ShutdownWithTimeout(shutdownTimeout)
	case err := <-errCh:
		return err
	}
}
