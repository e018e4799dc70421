package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"deedgateway/auth"
	"deedgateway/cases"
	"deedgateway/config"
	"deedgateway/escrow"
	"deedgateway/idempotency"
	"deedgateway/ledger"
	"deedgateway/models"
	"deedgateway/observability/logging"
	"deedgateway/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.Setup("deedgateway", cfg.Environment)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	redisClient, err := connectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}

	ledgerClient := ledger.NewRPCClient(ledger.Config{
		URL:       cfg.LedgerRPCURL,
		AuthToken: cfg.LedgerRPCToken,
		Timeout:   cfg.LedgerTimeout,
		GasLimit:  cfg.LedgerGasLimit,
		MaxFee:    cfg.LedgerMaxFee,
	})

	srv := server.New(server.Config{
		DB:       db,
		Cases:    cases.NewService(db),
		Escrows:  escrow.NewService(db, ledgerClient, logger),
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Idem:     idempotency.NewGate(redisClient, cfg.IdempotencyTTL),
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("deed gateway listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down deed gateway")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func connectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}
