// ABOUTME: Gateway orchestrator wiring config, the SQLite store, and the stream manager.
// ABOUTME: Owns the HTTP server lifecycle including graceful shutdown.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/2389/stream-relay/internal/config"
	"github.com/2389/stream-relay/internal/store"
	"github.com/2389/stream-relay/internal/stream"
)

// Gateway serves producing streams over HTTP: producers feed sessions with
// NDJSON, consumers follow them as SSE with resume support.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	manager    *stream.Manager
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates the store based on config and environment.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("RELAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	manager := stream.Interactive(s, stream.Options{
		TTL:           cfg.Buffer.TTL,
		SweepInterval: cfg.Buffer.SweepInterval,
	}, logger)

	g := &Gateway{
		config:  cfg,
		store:   s,
		manager: manager,
		logger:  logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/api/sessions/", g.handleSessionRoutes)

	g.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	return g, nil
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	g.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		g.logger.Warn("http shutdown error", "error", err)
	}

	g.manager.Close()
	return g.store.Close()
}

// handleHealth handles GET /health requests.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
