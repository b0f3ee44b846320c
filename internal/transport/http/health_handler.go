package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"crunchcli/pkg/contracts"
	api "crunchcli/pkg/contracts/api/v1"
)

// QueueStats reports the number of live batches.
type QueueStats interface {
	Stats() (pending, running int)
}

// ClientCounter reports the number of connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	queue   QueueStats
	clients ClientCounter
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler. clients may be nil when
// the websocket endpoint is disabled.
func NewHealthHandler(queue QueueStats, clients ClientCounter, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		queue:   queue,
		clients: clients,
		started: time.Now(),
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:    "healthy",
		Version:   contracts.Version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
	if h.queue != nil {
		resp.PendingBatches, resp.RunningBatches = h.queue.Stats()
	}
	if h.clients != nil {
		resp.Clients = h.clients.ClientCount()
	}
	render.JSON(w, r, resp)
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "alive"})
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
