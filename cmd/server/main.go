package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/vogiaan1904/ticketbottle-allocation/config"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/cache"
	httpdelivery "github.com/vogiaan1904/ticketbottle-allocation/internal/delivery/http"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/delivery/kafka/consumer"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/queue"
	repo "github.com/vogiaan1904/ticketbottle-allocation/internal/repository/mongo"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/service"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/clock"
	pkgkafka "github.com/vogiaan1904/ticketbottle-allocation/pkg/kafka"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
	pkgmongo "github.com/vogiaan1904/ticketbottle-allocation/pkg/mongo"
	pkgredis "github.com/vogiaan1904/ticketbottle-allocation/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer l.Sync()

	if err := run(cfg, l); err != nil {
		l.Fatal("Server exited with error", "error", err)
	}
}

func run(cfg *config.Config, l logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, err := pkgmongo.Connect(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	defer pkgmongo.Disconnect(context.Background(), mongoClient)

	redisClient, err := pkgredis.Connect(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer pkgredis.Disconnect(redisClient)

	db := mongoClient.Database(cfg.Mongo.Database)

	eventRepo := repo.NewEventRepository(db, l)
	waitlistRepo := repo.NewWaitlistRepository(db, l)
	ticketRepo := repo.NewTicketRepository(db, l)

	if err := waitlistRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure waitlist indexes: %w", err)
	}
	if err := ticketRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure ticket indexes: %w", err)
	}

	syncProducer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RetryMax:     cfg.Kafka.ProducerRetryMax,
		RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
	})
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}

	consumerGroup, err := pkgkafka.NewConsumerGroup(pkgkafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.ConsumerGroupID,
	})
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	clk := clock.NewSystem()
	cacheClient := cache.NewClient(cache.NewRedisStore(redisClient), cfg.Cache, l)
	prod := producer.NewProducer(syncProducer, l)
	jobs := queue.NewRedisJobStore(redisClient)
	mirror := queue.NewRedisMirrorQueue(redisClient)
	tokens := service.NewOfferTokenIssuer(cfg.Offer.TokenSecret)

	svc := service.NewWaitlistService(
		eventRepo, waitlistRepo, ticketRepo,
		cacheClient, prod, jobs, mirror, tokens, clk,
		cfg.Offer, cfg.Reservation, cfg.Cache, l,
	)

	sweeper := service.NewSweeper(waitlistRepo, svc, clk, cfg.Sweeper, l)
	mirrorRunner := queue.NewMirrorRunner(mirror, jobs, svc, clk, cfg.Reservation, l)
	cons := consumer.NewConsumer(consumerGroup, svc, jobs, l)

	handler := httpdelivery.NewHandler(svc, sweeper, mirrorRunner, l)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	if err := mirrorRunner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mirror runner: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Info("HTTP server listening", "port", cfg.Server.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return cons.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		l.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Error("HTTP shutdown error", "error", err)
		}
		if err := sweeper.Stop(); err != nil {
			l.Error("Sweeper stop error", "error", err)
		}
		if err := mirrorRunner.Stop(); err != nil {
			l.Error("Mirror runner stop error", "error", err)
		}
		if err := cons.Close(); err != nil {
			l.Error("Consumer close error", "error", err)
		}
		if err := prod.Close(); err != nil {
			l.Error("Producer close error", "error", err)
		}
		return nil
	})

	return g.Wait()
}
