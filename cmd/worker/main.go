package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/resizr/resizr/internal/config"
	"github.com/resizr/resizr/internal/infra/rabbitmq"
	"github.com/resizr/resizr/internal/processor"
	imagemsg "github.com/resizr/resizr/internal/queue/handlers/image"
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

	// Initialize file storage (local filesystem or MinIO).
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	// Establish the broker connection with bounded retry: a fixed number of
	// attempts with a fixed delay. Exhausting them is fatal.
	connectStrategy := retry.Strategy{
		Attempts: cfg.Worker.ConnectAttempts,
		Delay:    cfg.Worker.ConnectDelay,
		Backoff:  1,
	}

	mq, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, connectStrategy)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}

	// Retry strategy for publishes and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Initialize repository, producer, processor, and service layer.
	repo := imagerepo.NewRepository(db)
	p := rabbitmq.NewProducer(mq, strategy)
	proc := processor.New(store)
	service := imagesvc.NewService(store, p, proc, repo)

	// Queue message handler for submitted images.
	createdHandler := imagemsg.NewCreatedHandler(service)

	// Consumer drains the queue one message at a time (QoS 1).
	c := rabbitmq.NewConsumer(mq, createdHandler)

	var wg sync.WaitGroup
	wg.Add(1)
	go c.Consume(ctx, &wg)

	zlog.Logger.Info().Msg("worker is ready to process messages")

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for the consumer goroutine to finish.
	wg.Wait()

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
