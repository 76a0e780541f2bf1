package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/cache"
	"github.com/antonminaichev/shop-settlement/internal/events"
	"github.com/antonminaichev/shop-settlement/internal/inventory"
	"github.com/antonminaichev/shop-settlement/internal/ledger"
	"github.com/antonminaichev/shop-settlement/internal/logger"
	"github.com/antonminaichev/shop-settlement/internal/payment"
	"github.com/antonminaichev/shop-settlement/internal/provider"
	"github.com/antonminaichev/shop-settlement/internal/router"
	"github.com/antonminaichev/shop-settlement/internal/storage"
	"github.com/antonminaichev/shop-settlement/internal/storage/memory"
	pgstorage "github.com/antonminaichev/shop-settlement/internal/storage/postgres"
	"github.com/antonminaichev/shop-settlement/internal/webhook"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := NewConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		return err
	}

	gateway, err := provider.NewPaystack(provider.Config{
		SecretKey:         cfg.PaystackSecretKey,
		BaseURL:           cfg.PaystackBaseURL,
		Timeout:           cfg.PaystackTimeout,
		RequestsPerSecond: cfg.PaystackRPS,
	})
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Log.Warn("failed to close storage", "error", err)
		}
	}()

	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	deps := payment.Deps{
		Ledger:    ledger.New(store),
		Catalog:   store,
		Methods:   provider.NewRegistry(gateway, cfg.BankInstructions, cfg.OpayInstructions),
		Inventory: inventory.NewReservation(logger.Log),
		Publisher: publisher,
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		deps.Idempotency = cache.NewRedisIdempotencyStore(rdb, cfg.IdempotencyTTL)
	}

	paymentSvc := payment.NewService(deps, payment.Config{
		Currency:     cfg.Currency,
		CallbackURL:  cfg.CallbackURL,
		ReconcileAge: cfg.ReconcileAge,
	})
	paymentHandler := payment.NewHandler(paymentSvc)

	r := router.NewRouter(
		paymentHandler,
		[]byte(cfg.JWTSecret),
		webhook.New(cfg.PaystackSecretKey),
		webhook.SignatureHeader,
		store,
	)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * cfg.PaystackTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go payment.DispatcherLoop(
		ctx,
		paymentSvc,
		paymentSvc,
		cfg.ReconcileWorkers,
		cfg.ReconcileInterval,
	)

	go func() {
		logger.Log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("listen and serve", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	logger.Log.Info("shutting down server")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Log.Info("server stopped gracefully")
	return nil
}

func openStorage(cfg *Config) (storage.Storage, error) {
	if cfg.DatabaseConnection == "" {
		logger.Log.Warn("DATABASE_URI is empty, using in-memory storage")
		return memory.New(), nil
	}
	store, err := pgstorage.NewPostgresStorage(cfg.DatabaseConnection)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres storage: %w", err)
	}
	return store, nil
}

func openPublisher(cfg *Config) (events.Publisher, error) {
	switch cfg.EventsBackend {
	case "rabbitmq":
		return events.DialRabbit(cfg.RabbitMQURL)
	case "kafka":
		return events.DialKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	return events.Noop{}, nil
}
