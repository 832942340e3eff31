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

	"github.com/sirupsen/logrus"

	"github.com/origo-stack/performance-simulator/internal/api"
	"github.com/origo-stack/performance-simulator/internal/broadcast"
	"github.com/origo-stack/performance-simulator/internal/config"
	"github.com/origo-stack/performance-simulator/internal/database"
	"github.com/origo-stack/performance-simulator/internal/dispatcher"
	"github.com/origo-stack/performance-simulator/internal/presets"
	"github.com/origo-stack/performance-simulator/internal/ratedist"
	"github.com/origo-stack/performance-simulator/internal/store"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	var archiver dispatcher.Archiver
	if cfg.Database.DSN != "" {
		db, err := database.Initialize(cfg.Database.DSN)
		if err != nil {
			logrus.WithField("error", err).Warn("historical archive unavailable, continuing without it")
		} else {
			archiver = database.NewArchiver(db)
		}
	}

	presetStore, err := presets.New(cfg.Presets.File, api.ConfigValidator())
	if err != nil {
		log.Fatalf("failed to load preset store: %v", err)
	}

	registry := ratedist.Default()

	hub := broadcast.NewHub()
	go hub.Run()

	disp := dispatcher.New(dispatcher.Dependencies{
		Registry:   registry,
		Hub:        hub,
		Archiver:   archiver,
		MaxRetries: cfg.Target.MaxRetries,
		RequestTO:  cfg.Target.RequestTimeout,
	})

	runStore := store.New()

	handlers := &api.Handlers{
		Store:      runStore,
		Registry:   registry,
		Dispatcher: disp,
		Presets:    presetStore,
		TargetURL:  cfg.Target.BaseURL,
		Method:     http.MethodGet,
	}

	router := api.SetupRouter(handlers, hub)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logrus.Infof("load generator starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	logrus.Info("stopped")
}
