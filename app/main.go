package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"newsdesk/app/api"
	"newsdesk/app/cfg"
	"newsdesk/app/database"
	"newsdesk/app/discovery"
	"newsdesk/app/ingest"
	"newsdesk/app/parser"
	"newsdesk/app/policy"
	"newsdesk/app/publisher"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if c == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(c)

	slog.Info("Starting newsdesk server", "version", c.Version)

	db, err := database.NewConnection(c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "migration_version", version, "dirty", dirty)

	policies, err := policy.NewLoader(c.SectionsDir).LoadAll()
	if err != nil {
		slog.Error("Failed to load section policies", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded section policies", "sections", len(policies))

	sourceRepo := database.NewSourceRepo(db)
	itemRepo := database.NewItemRepo(db)
	runRepo := database.NewRunRepo(db)

	feedParser := parser.NewParser()
	fetcher := ingest.NewFetcher(c.RequestTimeout, c.UserAgent, c.AltUserAgent)
	fallback := ingest.NewFallbackProvider(sourceRepo, feedParser,
		c.FallbackPrimaryURL, c.FallbackSecondaryURL, c.RequestTimeout, c.UserAgent)
	pruner := ingest.NewPruner(itemRepo, policies, c.GlobalRetentionDays)

	var admissionPublisher ingest.AdmissionPublisher
	if c.AMQPURL != "" {
		rmq, err := publisher.NewRabbitMQ(c.AMQPURL, c.AMQPExchange)
		if err != nil {
			slog.Error("Failed to connect to message broker", "error", err)
			os.Exit(1)
		}
		defer rmq.Close()
		admissionPublisher = rmq
	}

	ingestRunner := ingest.NewRunner(c, policies, sourceRepo, itemRepo, runRepo,
		feedParser, fetcher, fallback, pruner, admissionPublisher)

	providers := []discovery.Provider{
		discovery.NewReleasesProvider(c.RequestTimeout, c.UserAgent),
		discovery.NewVideoProvider(c.YouTubeAPIKey, c.RequestTimeout),
		discovery.NewSocialProvider(c.SocialFeedURL, c.RequestTimeout),
	}
	discoveryRunner := discovery.NewRunner(c, policies, sourceRepo, itemRepo, runRepo,
		providers, admissionPublisher)

	apiHandler := api.NewHandler(db, policies, sourceRepo, itemRepo,
		ingestRunner, discoveryRunner, c.Version)
	server := api.NewServer(apiHandler, c.APIAccessKey)

	httpServer := &http.Server{
		Addr:    ":" + c.Port,
		Handler: server,
		// Trigger requests block for the whole run budget plus margin.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.MaxTimeBudget + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", c.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func setupLogger(c *cfg.Cfg) {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if c.LogJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
