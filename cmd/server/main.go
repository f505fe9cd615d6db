package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/httpapi"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/payment"
	"github.com/example/ride-dispatch/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	store, err := storage.New(cfg.PGDSN)
	if err != nil {
		logger.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	store.DefaultGatewayURL = cfg.PaymentGatewayURL

	var index geo.ChairIndex
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		index = geo.NewRedisIndex(rc, cfg.RedisChairKey)
		logger.Info("chair index on redis", "addr", cfg.RedisAddr)
	} else {
		index = geo.NewIndex()
		logger.Info("chair index in process")
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		logger.Info("location telemetry on kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var payments payment.Provider
	switch cfg.PaymentProvider {
	case "stripe":
		payments = payment.NewStripeProvider(cfg.StripeAPIKey, "jpy")
	default:
		payments = payment.NewGatewayClient(cfg.PaymentTimeout)
	}

	wsreg := dispatch.NewWSRegistry(logger)
	engine := &dispatch.Engine{
		Store:             store,
		Notifier:          wsreg,
		Logger:            logger,
		RideBatch:         cfg.MatchRideBatch,
		ChairPool:         cfg.MatchChairPool,
		LocalityThreshold: cfg.LocalityThreshold,
		PatienceThreshold: cfg.PatienceThreshold,
		GracePeriod:       cfg.MatchGracePeriod,
	}

	srv := httpapi.NewServer(store, index, engine, payments, producer, wsreg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MatchInterval > 0 {
		go engine.Run(ctx, cfg.MatchInterval)
		logger.Info("dispatch ticker running", "interval", cfg.MatchInterval)
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
}
