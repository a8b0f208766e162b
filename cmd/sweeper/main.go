// Package main is the entry point for the standalone reservation sweeper.
// Run it when the API server is deployed with SWEEPER_ENABLED=false, so a
// single process owns expired-hold cleanup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fiunum/internal/domain/reservation"
	"fiunum/internal/infrastructure/storage/postgres"
	"fiunum/internal/infrastructure/storage/postgres/report_repo"
	"fiunum/internal/infrastructure/storage/postgres/reservation_repo"
	"fiunum/internal/infrastructure/storage/postgres/settings_repo"
	"fiunum/internal/sweeper"
	"fiunum/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting fiunum sweeper")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	reservationService := reservation.NewService(
		txManager,
		reservation_repo.New(txManager),
		report_repo.New(txManager),
		reservation.NewLimitsProvider(settings_repo.New(txManager)),
		auditService,
	)

	sw := sweeper.New(reservationService, log, getEnvDuration("SWEEPER_INTERVAL", sweeper.DefaultInterval))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sw.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down sweeper...")
	cancel()

	wg.Wait()
	log.Info("sweeper stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
