package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/brandon/onebox/internal/ai"
	"github.com/brandon/onebox/internal/api"
	"github.com/brandon/onebox/internal/config"
	"github.com/brandon/onebox/internal/email"
	"github.com/brandon/onebox/internal/notify"
	"github.com/brandon/onebox/internal/pipeline"
	"github.com/brandon/onebox/internal/search"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("onebox version %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithField("accounts", cfg.AccountNames()).Info("Starting onebox")

	// Select the search backend
	store, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize search store")
	}
	defer closeStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// AI collaborator and reply context
	aiClient := ai.NewClient(cfg.OpenAIKey, cfg.OpenAIModel, logger)
	contextStore := ai.NewContextStore(aiClient, logger)
	contextStore.Seed(ctx)

	// Notification collaborator
	notifier := notify.NewService(cfg.SlackWebhookURL, cfg.ExternalWebhookURL, logger)

	// Sync engine and ingestion pipeline, joined by the event stream
	engine := email.NewEngine(cfg, logger)
	pipe := pipeline.New(store, aiClient, notifier, logger)

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Run(ctx)
	}()

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		pipe.Run(context.Background(), engine.Events())
	}()

	// HTTP surface
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := api.NewHandlers(store, aiClient, contextStore, logger)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(handlers),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
	case err := <-serverErr:
		logger.WithError(err).Error("HTTP server error")
	}

	// Stop the sync engine first; the pipeline drains whatever remains on
	// the event stream before exiting.
	cancel()
	<-engineDone
	<-pipelineDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown failed")
	}

	logger.Info("Shutting down onebox")
}

// buildStore selects the configured search backend: Elasticsearch when an
// endpoint is configured (or explicitly requested), SQLite otherwise.
func buildStore(cfg *config.Config, logger *logrus.Logger) (search.Store, func(), error) {
	useElastic := cfg.SearchBackend == "elasticsearch" ||
		(cfg.SearchBackend == "" && cfg.ElasticURL != "")

	if useElastic {
		es := search.NewElasticStore(cfg.ElasticURL, cfg.ElasticUsername, cfg.ElasticPassword, logger)
		initCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := es.EnsureIndex(initCtx); err != nil {
			// The backend may simply not be up yet; requests will retry.
			logger.WithError(err).Warn("Failed to ensure search index")
		}
		return es, func() {}, nil
	}

	sq, err := search.NewSQLiteStore(cfg.SQLitePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return sq, func() { sq.Close() }, nil //nolint:errcheck
}
