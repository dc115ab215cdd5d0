// Package ui exposes the harness's HTTP surface for soak sessions: a JSON
// status endpoint describing the environment and the logical clock, and
// Prometheus metrics.
package ui

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is a snapshot of the running environment.
type Status struct {
	RunID       string            `json:"run_id"`
	Overridden  bool              `json:"overridden"`
	LogicalTime string            `json:"logical_time"`
	Healthy     bool              `json:"healthy"`
	Containers  []ContainerStatus `json:"containers"`
}

// ContainerStatus describes one container in the status snapshot.
type ContainerStatus struct {
	Service string `json:"service"`
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Status  string `json:"status"`
	Health  string `json:"health,omitempty"`
}

// StatusProvider supplies the current environment snapshot.
type StatusProvider interface {
	Status(ctx context.Context) (Status, error)
}

// Handler serves the status and metrics endpoints.
type Handler struct {
	provider StatusProvider
	metrics  *Metrics
	logger   *slog.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(provider StatusProvider, metrics *Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{provider: provider, metrics: metrics, logger: logger}
}

// RegisterRoutes registers all routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := h.provider.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to collect status", slog.String("error", err.Error()))
		http.Error(w, "failed to collect status", http.StatusInternalServerError)
		return
	}

	for _, c := range status.Containers {
		h.metrics.SetContainerState(c.Service, c.Status == "running" && (c.Health == "" || c.Health == "healthy"))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error("failed to encode status", slog.String("error", err.Error()))
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status, err := h.provider.Status(r.Context())
	if err != nil || !status.Healthy {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
