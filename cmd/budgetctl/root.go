package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"budgetkit/internal/config"
	"budgetkit/internal/database"
	"budgetkit/internal/server"
)

var rootCmd = &cobra.Command{
	Use:           "budgetctl",
	Short:         "budgetkit operator CLI",
	Long:          "Run migrations, lifecycle sweeps and seed imports against the budgetkit database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openServices loads configuration and connects to the database.
func openServices() (*config.Config, *database.Manager, *server.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	dbManager, err := database.NewManager(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	return cfg, dbManager, server.NewServices(dbManager.DB(), cfg), nil
}
