package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omnidesk/backend/internal/auth"
	"github.com/omnidesk/backend/internal/clock"
	"github.com/omnidesk/backend/internal/config"
	"github.com/omnidesk/backend/internal/consumer"
	"github.com/omnidesk/backend/internal/db"
	"github.com/omnidesk/backend/internal/directory"
	"github.com/omnidesk/backend/internal/events"
	httpapi "github.com/omnidesk/backend/internal/http"
	"github.com/omnidesk/backend/internal/memdb"
	"github.com/omnidesk/backend/internal/policy"
	"github.com/omnidesk/backend/internal/routing"
	"github.com/omnidesk/backend/internal/store"
)

const (
	producer       = "attendance-router"
	eventQueueSize = 1024
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", producer).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.InMemory() {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		st = memdb.New()
	} else {
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer pg.Close()
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				logger.Fatal().Err(err).Msg("migration failed")
			}
		}
		st = pg
	}

	hub := events.NewHub(logger)
	publishers := events.Multi{hub}

	var conn *amqp091.Connection
	if cfg.AMQPURL != "" {
		conn, err = events.DialWithRetry(ctx, cfg.AMQPURL, 5, time.Second, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbit unavailable")
		}
		defer conn.Close()
		pub, err := events.NewAMQPPublisher(conn, cfg.AMQPExchange, producer, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to declare event exchange")
		}
		publishers = append(publishers, events.NewQueued(pub, eventQueueSize, 5*time.Second, logger))
	} else {
		logger.Info().Msg("AMQP_URL not set, events stay in-process")
		publishers = append(publishers, events.NewFallback(logger))
	}
	defer publishers.Close()

	clk := clock.Real()
	emitter := events.NewEmitter(publishers, clk, logger)
	dir := directory.New(st, clk, emitter, logger)
	engine := routing.New(st, dir, emitter, clk, policy.Rules{
		TransferredClaim: policy.ParseTransferredClaim(cfg.TransferredClaim),
	}, logger)

	if conn != nil {
		sub, err := consumer.NewSubscriber(conn, cfg.AMQPMessagesExchange, consumer.NewDispatcher(engine), cfg.AMQPWorkers, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open consumer channel")
		}
		if err := sub.Start(cfg.AMQPQueue); err != nil {
			logger.Fatal().Err(err).Msg("failed to start consumer")
		}
		defer sub.Close()
	}

	go engine.RunJobs(ctx, cfg.ReconcileInterval, cfg.UrgencySweepInterval)

	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set, every API call will be rejected")
	}
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)

	router := httpapi.Router(cfg, httpapi.Deps{
		Store:     st,
		Engine:    engine,
		Directory: dir,
		Hub:       hub,
		Tokens:    tokens,
	}, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	// Stream handlers only return once their subscription closes.
	_ = hub.Close()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
