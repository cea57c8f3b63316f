// Package handler serves the ops HTTP surface of the bot: liveness and
// readiness probes, Prometheus metrics and an MCP endpoint exposing the
// catalog and carts to operators and agents.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"shopbot/internal/adapter"
	"shopbot/internal/metrics"
	"shopbot/internal/middleware"
)

// Pinger reports whether a dependency is reachable. *store.Redis implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for the ops endpoints.
type Handler struct {
	shop     adapter.Shop
	store    Pinger
	metrics  *metrics.Metrics
	logger   *slog.Logger
	mcpToken string
}

// Option configures a Handler.
type Option func(*Handler)

// WithMCPToken sets the bearer token /mcp requires. Without it every MCP
// request is rejected.
func WithMCPToken(token string) Option {
	return func(h *Handler) { h.mcpToken = token }
}

// New creates a Handler. store and mt may be nil.
func New(shop adapter.Shop, store Pinger, mt *metrics.Metrics, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		shop:    shop,
		store:   store,
		metrics: mt,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers all ops routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleReady)
	mux.Handle("GET /metrics", h.metrics.Handler())

	// MCP transport - JSON-RPC endpoint using official MCP SDK.
	// Its tools read and change any user's cart, so it needs the ops token.
	mux.Handle("/mcp", middleware.BearerAuth(h.mcpToken, h.logger)(h.NewMCPHandler()))
}

// HTTPHandler returns the routes wrapped with request ids, logging and
// panic recovery.
func (h *Handler) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return middleware.Chain(
		middleware.RequestID(),
		middleware.Logging(h.logger, "/health", "/healthz", "/metrics"),
		middleware.Recovery(h.logger),
	)(mux)
}

// handleHealth reports that the process is up.
// GET /health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleReady additionally checks the state store, without which no
// update can be processed.
// GET /healthz
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: "store unreachable"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
