package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/smmtools/vk-insight-bot/internal/aggregation"
	"github.com/smmtools/vk-insight-bot/internal/api"
	"github.com/smmtools/vk-insight-bot/internal/auth"
	"github.com/smmtools/vk-insight-bot/internal/config"
	"github.com/smmtools/vk-insight-bot/internal/scheduler"
	"github.com/smmtools/vk-insight-bot/internal/store"
	"github.com/smmtools/vk-insight-bot/internal/vk"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting VK Insight Bot")

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	vkClient := vk.NewClient(cfg.VKToken)
	aggregator := aggregation.NewService(vkClient, cfg.VKRequestInterval)
	authManager := auth.NewManager(cfg.JWTSecret, cfg.TokenLifetime, cfg.BcryptCost)

	schedulerService := scheduler.NewService(st, vkClient, cfg.GroupSyncSchedule)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	apiServer := api.NewServer(st, authManager, aggregator, vkClient)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // aggregations over large windows run long
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
