package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wellness-crisis/internal/config"
	"wellness-crisis/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize logging
	logger, err := initLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	// 3. Create the service
	crisisService, err := service.NewCrisisService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create crisis service",
			zap.Error(err),
		)
	}
	defer crisisService.Stop()

	// 4. Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Start background work
	serviceErrChan := make(chan error, 1)
	go func() {
		if err := crisisService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 6. Wait for a signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel()
	case err := <-serviceErrChan:
		logger.Fatal("Service error",
			zap.Error(err),
		)
	}

	logger.Info("Crisis service stopped")
}

// initLogger builds the process logger per config.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if cfg.Log.Format == "json" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, err
	}

	return logger, nil
}
