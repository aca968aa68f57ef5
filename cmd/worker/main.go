package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/travelbooking/config"
	"github.com/Domenick1991/travelbooking/internal/email"
	"github.com/Domenick1991/travelbooking/internal/kafka"
	"github.com/Domenick1991/travelbooking/internal/logger"
	"github.com/Domenick1991/travelbooking/internal/repository"
	"github.com/Domenick1991/travelbooking/internal/service/fulfillment"
	"github.com/Domenick1991/travelbooking/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const consumerRestartDelay = 5 * time.Second

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	fulfillmentService := fulfillment.NewService(repository.NewBookingRepository(pool), zl.Named("fulfillment"))
	job, err := worker.NewFulfillmentJob(
		fulfillmentService,
		time.Duration(cfg.Worker.FulfillmentSweepMinutes)*time.Minute,
		cfg.Worker.SweepBatchSize,
		zl.Named("sweep"),
	)
	if err != nil {
		zl.Fatal("init fulfillment job", zap.Error(err))
	}
	if err := job.Start(ctx); err != nil {
		zl.Fatal("start fulfillment job", zap.Error(err))
	}
	defer func() {
		if err := job.Stop(); err != nil {
			zl.Warn("stop fulfillment job", zap.Error(err))
		}
	}()

	sender, err := email.NewSender(cfg.SMTP, zl.Named("email"))
	if err != nil {
		zl.Fatal("init email sender", zap.Error(err))
	}
	handler := worker.NotificationHandler(sender, zl.Named("notifications"))

	// A failed message is left uncommitted; a fresh reader resumes from the last commit.
	for ctx.Err() == nil {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
		err := consumer.Consume(ctx, handler)
		_ = consumer.Close()
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			break
		}
		zl.Error("consumer stopped, restarting", zap.Error(err), zap.Duration("delay", consumerRestartDelay))
		select {
		case <-ctx.Done():
		case <-time.After(consumerRestartDelay):
		}
	}
	zl.Info("worker shutting down")
}
