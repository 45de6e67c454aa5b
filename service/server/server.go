package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/tokenmill/service/config"
	"github.com/brojonat/tokenmill/service/metrics"
	"github.com/brojonat/tokenmill/service/orchestrator"
	"github.com/brojonat/tokenmill/service/snapshot"
	"github.com/brojonat/tokenmill/service/solana"
)

// SessionAPI is the slice of a live session the HTTP surface needs.
type SessionAPI interface {
	Owner() solanago.PublicKey
	CreateToken(ctx context.Context, decimals uint8) (*orchestrator.Outcome, error)
	MintTo(ctx context.Context, mint solanago.PublicKey, displayAmount string) (*orchestrator.Outcome, error)
	Transfer(ctx context.Context, recipient, mint solanago.PublicKey, displayAmount string) (*orchestrator.Outcome, error)
	Snapshot() *snapshot.AccountSnapshot
	Refresh(ctx context.Context) *snapshot.AccountSnapshot
}

// ChainAPI is the slice of the network client the HTTP surface needs
// directly (reads that bypass the session).
type ChainAPI interface {
	RequestAirdrop(ctx context.Context, account solanago.PublicKey, lamports uint64) (solanago.Signature, error)
	RecentSignatures(ctx context.Context, address solanago.PublicKey, limit int) ([]solana.TransactionSummary, error)
}

// Server is the HTTP server for the token service.
type Server struct {
	addr         string
	cfg          *config.Config
	session      SessionAPI
	chain        ChainAPI
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, sess SessionAPI, chain ChainAPI, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		session:      sess,
		chain:        chain,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Token routes
	route("POST /api/v1/tokens", "/api/v1/tokens", handleCreateToken(s.session, s.logger))
	route("POST /api/v1/tokens/{mint}/mint", "/api/v1/tokens/mint", handleMintTo(s.session, s.logger))
	route("POST /api/v1/transfers", "/api/v1/transfers", handleTransfer(s.session, s.logger))

	// Wallet routes
	route("GET /api/v1/snapshot", "/api/v1/snapshot", handleGetSnapshot(s.session, s.logger))
	route("GET /api/v1/history", "/api/v1/history", handleGetHistory(s.session, s.chain, s.logger))
	route("POST /api/v1/airdrop", "/api/v1/airdrop", handleAirdrop(s.session, s.chain, s.cfg.SolanaNetwork, s.logger))

	// SSE streaming endpoint (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/events", handleStreamEvents(s.ssePublisher, s.session.Owner().String(), s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoint disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
