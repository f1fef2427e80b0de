// ABOUTME: Gateway orchestrator that wires the store, connection registry, tracker, and workflow client
// ABOUTME: Manages the HTTP server lifecycle, routes, and health endpoints

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/wisplabs/wisp-gateway/internal/config"
	"github.com/wisplabs/wisp-gateway/internal/connection"
	"github.com/wisplabs/wisp-gateway/internal/correlation"
	"github.com/wisplabs/wisp-gateway/internal/store"
	"github.com/wisplabs/wisp-gateway/internal/workflow"
)

// dispatcher defines what the gateway needs from the workflow layer
type dispatcher interface {
	Dispatch(ctx context.Context, req *workflow.DispatchRequest) error
}

// Gateway orchestrates the wisp-gateway server components. It owns the HTTP
// server that carries the ask, receive, history, and push-channel endpoints.
type Gateway struct {
	config   *config.Config
	store    store.Store
	registry *connection.Registry
	tracker  *correlation.Tracker
	workflow dispatcher

	// delivered remembers correlation keys whose callback was already
	// pushed, so a retried webhook is absorbed without re-pushing
	delivered *correlation.Tracker

	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	registry := connection.NewRegistry(logger)
	tracker := correlation.New(cfg.Correlation.SweepInterval, cfg.Correlation.MaxPending)
	wf := workflow.NewClient(cfg.Workflow.WebhookURL, cfg.Workflow.DispatchTimeout, logger)

	return newGateway(cfg, st, registry, tracker, wf, logger), nil
}

// newGateway wires an instance from pre-built components. Tests use this to
// inject mocks for the store and the workflow dispatcher.
func newGateway(
	cfg *config.Config,
	st store.Store,
	registry *connection.Registry,
	tracker *correlation.Tracker,
	wf dispatcher,
	logger *slog.Logger,
) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		config:    cfg,
		store:     st,
		registry:  registry,
		tracker:   tracker,
		workflow:  wf,
		delivered: correlation.New(cfg.Correlation.SweepInterval, cfg.Correlation.MaxPending),
		logger:    logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	mux.HandleFunc("/ask", g.handleAsk)
	mux.HandleFunc("/receive", g.handleReceive)
	mux.HandleFunc("/chat/history", g.handleChatHistory)
	mux.HandleFunc("/ws", g.handleConnect)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g
}

// Handler exposes the HTTP handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, the correlation sweeper, and the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := g.httpServer.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("shutting down HTTP server: %w", err)
	}

	g.tracker.Close()
	g.delivered.Close()

	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	g.logger.Info("gateway stopped")
	return firstErr
}

// handleHealth returns 200 OK while the process is up.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the history store is reachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connections)", g.registry.Count())
}
