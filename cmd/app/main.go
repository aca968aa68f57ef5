package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/travelbooking/api"
	"github.com/Domenick1991/travelbooking/config"
	"github.com/Domenick1991/travelbooking/internal/auth"
	"github.com/Domenick1991/travelbooking/internal/bootstrap"
	"github.com/Domenick1991/travelbooking/internal/cache"
	"github.com/Domenick1991/travelbooking/internal/gateway/bank"
	"github.com/Domenick1991/travelbooking/internal/gateway/paymob"
	"github.com/Domenick1991/travelbooking/internal/kafka"
	"github.com/Domenick1991/travelbooking/internal/logger"
	"github.com/Domenick1991/travelbooking/internal/repository"
	"github.com/Domenick1991/travelbooking/internal/service/booking"
	"github.com/Domenick1991/travelbooking/internal/service/fulfillment"
	"github.com/Domenick1991/travelbooking/internal/service/idempotency"
	"github.com/Domenick1991/travelbooking/internal/service/payment"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

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

	sessionTTL := time.Duration(cfg.Paymob.SessionTTLSeconds) * time.Second
	redisCache := cache.NewRedisCache(cfg.Redis, sessionTTL)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	bookingRepo := repository.NewBookingRepository(pool)
	idempotencyRepo := repository.NewIdempotencyRepository(pool)

	fulfillmentService := fulfillment.NewService(bookingRepo, zl.Named("fulfillment"))
	bookingService := booking.NewBookingService(
		bookingRepo,
		idempotency.NewGuard(idempotencyRepo, zl.Named("idempotency")),
		zl.Named("booking"),
		booking.WithProducer(producer, cfg.Kafka.BookingEventsTopic),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithFulfillment(fulfillmentService),
	)

	httpClient := &http.Client{Timeout: time.Duration(cfg.Paymob.TimeoutSeconds) * time.Second}
	paymentService := payment.NewService(
		bookingRepo,
		paymob.NewClient(cfg.Paymob, httpClient),
		bank.NewProvider(cfg.Bank),
		zl.Named("payment"),
		payment.WithSessionCache(redisCache),
	)

	handlers := bootstrap.Handlers{
		Bookings: api.NewBookingHandler(bookingService),
		Payments: api.NewPaymentHandler(paymentService),
		Webhooks: api.NewWebhookHandler(bookingService, cfg.Paymob.HMACSecret, cfg.Bank.WebhookSecret, zl.Named("webhooks")),
		Admin:    api.NewAdminHandler(bookingService),
	}
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	if err := bootstrap.Run(ctx, cfg, verifier, handlers, zl); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}
