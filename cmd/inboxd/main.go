package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oarepo/ldn-inbox/internal/action"
	"github.com/oarepo/ldn-inbox/internal/config"
	"github.com/oarepo/ldn-inbox/internal/metadata"
	"github.com/oarepo/ldn-inbox/internal/notification"
	"github.com/oarepo/ldn-inbox/internal/pipeline"
	"github.com/oarepo/ldn-inbox/internal/resolver"
	"github.com/oarepo/ldn-inbox/internal/server"
	"github.com/oarepo/ldn-inbox/internal/storage/sqlite"
	"github.com/oarepo/ldn-inbox/internal/telemetry"
	"github.com/oarepo/ldn-inbox/internal/template"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the inbox configuration file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer("ldn-inbox", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	provider, err := config.NewProvider(*configPath, logger)
	if err != nil {
		log.Fatalf("Failed to create config provider: %v", err)
	}
	cfg, err := provider.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	derefTimeout, err := cfg.DereferenceTimeout()
	if err != nil {
		log.Fatalf("Invalid dereference timeout: %v", err)
	}

	res := resolver.New(resolver.Config{
		OwnBaseURL:              cfg.Inbox.OwnBaseURL,
		AllowedExternalPrefixes: cfg.Inbox.AllowedExternalResolvers,
	}, store, resolver.NewHTTPDereferencer(derefTimeout), logger)

	deps := action.Deps{Store: store, Logger: logger}

	processor := pipeline.New(
		notification.NewRepeater(logger),
		res,
		metadata.NewApplier(template.NewTextRenderer(), logger),
		action.NewRunner(logger),
		store,
		rulesFromConfig(cfg, deps, logger),
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Change and action tables hot-reload on config writes; the resolver
	// policy and server settings need a restart.
	if err := provider.Watch(ctx, func(cfg *config.Config) {
		processor.Reload(rulesFromConfig(cfg, deps, logger))
	}); err != nil {
		log.Fatalf("Failed to watch config: %v", err)
	}

	srv := server.New(cfg.Server.Port, logger, processor)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	case <-sigChan:
	}

	logger.Info("shutdown signal received, stopping inbox")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := <-serveErr; err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	logger.Info("inbox shutdown complete")
}

func rulesFromConfig(cfg *config.Config, deps action.Deps, logger *slog.Logger) pipeline.Rules {
	return pipeline.Rules{
		RepeatOver: cfg.Inbox.RepeatOver,
		Changes:    config.BuildChanges(cfg.Inbox.Changes, logger),
		Actions:    config.BuildActions(cfg.Inbox.Actions, deps, logger),
	}
}
