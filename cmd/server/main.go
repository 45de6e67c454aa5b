package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brojonat/tokenmill/service/config"
	"github.com/brojonat/tokenmill/service/metrics"
	"github.com/brojonat/tokenmill/service/nats"
	"github.com/brojonat/tokenmill/service/orchestrator"
	"github.com/brojonat/tokenmill/service/server"
	"github.com/brojonat/tokenmill/service/session"
	"github.com/brojonat/tokenmill/service/signer"
	"github.com/brojonat/tokenmill/service/solana"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"network", cfg.SolanaNetwork,
	)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	solanaRPC := solana.NewRPCClient(cfg.SolanaRPCURL)
	chain := solana.NewClient(solanaRPC, cfg.SolanaRPCURL, m, logger)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)

	// Load the service wallet keypair that signs all intents
	sgn, err := signer.NewKeypairFromFile(cfg.ServiceWalletKeypair)
	if err != nil {
		logger.Error("failed to load service wallet keypair", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded service wallet", "owner", sgn.Owner().String())

	// Initialize NATS JetStream publisher for snapshot and intent events
	publisher, err := nats.NewPublisher(cfg.NATSURL, m, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// Initialize session manager and connect the service wallet
	sessions := session.NewManager(chain, publisher, session.Config{
		PollInterval: cfg.PollInterval,
		HistoryLimit: cfg.HistoryLimit,
		Orchestrator: orchestrator.Config{
			SendRetryLimit:  cfg.SendRetryLimit,
			LeaseRetryLimit: cfg.LeaseRetryLimit,
			SigningGrace:    cfg.SigningGrace,
		},
	}, m, logger)

	sess, err := sessions.Connect(sgn)
	if err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}
	defer sessions.Disconnect(sgn.Owner())

	// Initialize SSE publisher for the event streaming endpoint
	ssePublisher, err := server.NewSSEPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to initialize SSE publisher", "error", err)
		os.Exit(1)
	}

	httpServer := server.New(cfg.ServerAddr, cfg, sess, chain, ssePublisher, m, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
