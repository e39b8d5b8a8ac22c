package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/api"
	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/notify"
	"github.com/orchardshop/storefront/internal/payment"
	"github.com/orchardshop/storefront/internal/repository/postgres"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Connect to database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)

	// Payment processor client
	gateway := payment.NewClient(cfg.Payment, logger)

	// Notification publisher. The server still runs if the broker is down;
	// notices are fire-and-forget.
	notifier, err := notify.NewPublisher(cfg.AMQP, logger)
	if err != nil {
		logger.Warn("Notification publisher unavailable, continuing without it", zap.Error(err))
	}
	defer notifier.Close()

	router := api.NewRouter(cfg, repos, gateway, notifier, logger)

	logger.Info("Starting server",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
	)
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
