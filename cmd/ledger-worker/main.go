package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"budgetkit/internal/config"
	"budgetkit/internal/database"
	"budgetkit/internal/ledger"
	"budgetkit/internal/logger"
	"budgetkit/internal/services"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Named("ledger")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbManager, err := database.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer dbManager.Close()

	db := dbManager.DB()
	categories := services.NewCategoryService(db)
	transactions := services.NewTransactionService(db, categories, cfg.Ledger.SignConvention)
	worker := ledger.NewWorker(transactions, services.NewUserService(db))

	client, err := ledger.NewClient(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("Starting ledger worker",
		"queue", cfg.AMQP.Queue,
		"sign_convention", cfg.Ledger.SignConvention,
	)
	if err := client.Consume(ctx, worker.Handle); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Ledger worker stopped")
	return nil
}
