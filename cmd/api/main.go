package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/resizr/resizr/internal/api/handlers/health"
	"github.com/resizr/resizr/internal/api/handlers/image"
	"github.com/resizr/resizr/internal/api/router"
	"github.com/resizr/resizr/internal/api/server"
	"github.com/resizr/resizr/internal/config"
	"github.com/resizr/resizr/internal/infra/rabbitmq"
	"github.com/resizr/resizr/internal/processor"
	"github.com/resizr/resizr/internal/repository"
	imagerepo "github.com/resizr/resizr/internal/repository/image"
	imagesvc "github.com/resizr/resizr/internal/service/image"
	"github.com/resizr/resizr/internal/storage"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := repository.RunMigrations(db.Master, cfg.Database.MigrationsDir); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Retry strategy for queue publishes and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Initialize file storage (local filesystem or MinIO).
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	// Connect to RabbitMQ and declare the durable job queue.
	mq, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, strategy)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}

	// Initialize repository, producer, processor, and service layer.
	repo := imagerepo.NewRepository(db)
	p := rabbitmq.NewProducer(mq, strategy)
	proc := processor.New(store)
	service := imagesvc.NewService(store, p, proc, repo)

	// HTTP handlers.
	imgHandler := image.NewHandler(service)
	healthHandler := health.NewHandler(db.Master, mq)

	// Start HTTP server.
	r := router.Setup(imgHandler, healthHandler)
	s := server.New(cfg.Server, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	// Close the broker connection.
	if err := mq.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close rabbitmq client")
	}
}
