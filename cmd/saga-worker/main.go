package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zoff-tech/go-order-saga/migrations"
	"github.com/zoff-tech/go-order-saga/pkg/broker"
	"github.com/zoff-tech/go-order-saga/pkg/config"
	"github.com/zoff-tech/go-order-saga/pkg/idempotency"
	"github.com/zoff-tech/go-order-saga/pkg/order"
	"github.com/zoff-tech/go-order-saga/pkg/outbox"
	"github.com/zoff-tech/go-order-saga/pkg/payment"
	"github.com/zoff-tech/go-order-saga/pkg/product"
	"github.com/zoff-tech/go-order-saga/pkg/promotion"
	"github.com/zoff-tech/go-order-saga/pkg/publisher"
	"github.com/zoff-tech/go-order-saga/pkg/saga"
	"github.com/zoff-tech/go-order-saga/pkg/store"
	"github.com/zoff-tech/go-order-saga/pkg/telemetry"
)

func main() {
	godotenv.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Load configuration from file or environment
	cfg, err := config.LoadFromFile("./cmd/saga-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading configuration")
	}

	// Initialize telemetry (tracing)
	shutdownTelemetry, err := telemetry.Init(cfg.Observability)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer shutdownTelemetry()

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := store.Migrate(db, migrations.FS); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	txm := store.NewSQLTxManager(db)
	outboxRepo := outbox.NewPostgresRepository(db)
	idemStore := idempotency.NewPostgresStore(db)
	lock := store.NewAdvisoryLock(db)

	// Initialize the message broker
	pub, err := broker.NewPublisher(ctx, &cfg.Broker)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize broker")
	}
	defer pub.Close()

	relay := publisher.NewOutboxPublisher(outboxRepo, pub, lock, cfg.Publisher, logger)
	sweeper := idempotency.NewSweeper(idemStore, cfg.Idempotency.SweepInterval, logger)

	g, ctx := errgroup.WithContext(ctx)

	// Each participant runs as an independent consumer group.
	participants := []struct {
		name     string
		register func(*saga.Registry)
	}{
		{"order-service", func(reg *saga.Registry) {
			order.RegisterListeners(reg, txm, order.NewPostgresStore(db), idemStore, outboxRepo, logger)
		}},
		{"product-service", func(reg *saga.Registry) {
			product.RegisterListeners(reg, txm, product.NewPostgresStore(db), idemStore, outboxRepo, logger)
		}},
		{"promotion-service", func(reg *saga.Registry) {
			promotion.RegisterListeners(reg, txm, promotion.NewPostgresStore(db), idemStore, outboxRepo, logger)
		}},
		{"payment-service", func(reg *saga.Registry) {
			payment.RegisterListeners(reg, txm, payment.NewPostgresStore(db), idemStore, outboxRepo, logger)
		}},
	}

	if cfg.Broker.Type == "kafka" {
		for _, p := range participants {
			reg := saga.NewRegistry(logger.With().Str("participant", p.name).Logger())
			p.register(reg)

			groupID := p.name
			if cfg.Broker.GroupID != "" {
				groupID = cfg.Broker.GroupID + "-" + p.name
			}
			consumer, err := broker.NewConsumer(cfg.Broker.Brokers, groupID, logger)
			if err != nil {
				logger.Fatal().Err(err).Str("participant", p.name).Msg("failed to initialize consumer")
			}
			defer consumer.Close()

			topics := reg.Topics()
			g.Go(func() error {
				return consumer.Run(ctx, topics, reg.Handle)
			})
		}
	} else {
		// RabbitMQ and Pub/Sub are publish-only transports here; the worker
		// then acts as a relay sidecar next to externally hosted consumers.
		logger.Warn().Str("broker", cfg.Broker.Type).Msg("running in relay-only mode, no consumers started")
	}

	g.Go(func() error {
		sweeper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return relay.Run(ctx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
	logger.Info().Msg("worker shut down")
}
