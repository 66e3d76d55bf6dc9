package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/tokenexchange/internal/config"
	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/engine"
	"github.com/efreitasn/tokenexchange/internal/events"
	"github.com/efreitasn/tokenexchange/internal/handler"
	"github.com/efreitasn/tokenexchange/internal/journal"
	"github.com/efreitasn/tokenexchange/internal/service"
	"github.com/efreitasn/tokenexchange/internal/store"
	"github.com/efreitasn/tokenexchange/internal/tokenledger"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Event journal and bus. Numbering continues after the last stored event
	// and the exchange state is rebuilt from the stored events.
	j, err := journal.Open(cfg.DataDir, logger)
	if err != nil {
		return err
	}
	defer j.Close()
	lastSeq, err := j.LastSeq()
	if err != nil {
		return err
	}
	bus := events.NewBus(logger)
	bus.Resume(lastSeq)

	// Stores.
	webhookStore := store.NewWebhookStore()

	// External ledgers, in memory.
	native := tokenledger.NewNative()
	directory := tokenledger.NewDirectory(cfg.EscrowAddress)

	// Exchange.
	exchange := service.NewExchange(
		domain.NewTokenRegistry(),
		store.NewLedger(),
		engine.NewBookManager(),
		store.NewOrderStore(),
		store.NewFillStore(),
		native.Bind(cfg.EscrowAddress),
		directory,
		bus,
	)
	if lastSeq > 0 {
		n, err := exchange.Restore(j)
		if err != nil {
			return fmt.Errorf("restore from journal: %w", err)
		}
		logger.Info("state restored from journal", slog.Int("events", n))
	}
	webhookSvc := service.NewWebhookService(webhookStore, cfg.WebhookTimeout, logger)
	hub := handler.NewHub(logger, cfg.CORSOrigins)
	defer hub.Close()

	// Sinks, in delivery order.
	bus.Subscribe("journal", j)
	bus.Subscribe("websocket", hub)
	bus.Subscribe("webhooks", webhookSvc)
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), logger, 0)
		go publisher.Run(context.Background())
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", slog.String("error", err.Error()))
			}
		}()
		bus.Subscribe("kafka", publisher)
		logger.Info("kafka publisher enabled", slog.String("topic", cfg.KafkaTopic))
	}

	deps := handler.Deps{
		Exchange:    exchange,
		Webhooks:    webhookSvc,
		Journal:     j,
		Hub:         hub,
		CORSOrigins: cfg.CORSOrigins,
	}
	if cfg.DevLedger {
		if err := seedDevLedger(context.Background(), cfg, native, directory, exchange, logger); err != nil {
			return err
		}
		deps.Ledger = &handler.DevLedger{
			Escrow:    cfg.EscrowAddress,
			Native:    native,
			Directory: directory,
		}
	}

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(deps, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("escrow", cfg.EscrowAddress.Hex()),
			slog.Uint64("last_seq", lastSeq),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop HTTP server, then the deferred sinks close.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}
