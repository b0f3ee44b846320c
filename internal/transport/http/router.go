package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"

	"crunchcli/internal/config"
	apierrors "crunchcli/internal/errors"
	"crunchcli/internal/infrastructure"
	"crunchcli/internal/middleware"
)

// Queue is the job queue as seen by the HTTP layer.
type Queue interface {
	BatchQueue
	QueueStats
}

// RouterOptions wires the router. Queue and ErrorHandler are required.
type RouterOptions struct {
	Queue        Queue
	ErrorHandler *apierrors.ErrorHandler
	Server       config.ServerConfig
	// DataRoot confines the directories clients may name. Empty allows any.
	DataRoot string
	Logger   *slog.Logger
	// Tracer may be nil to use the global provider.
	Tracer  trace.Tracer
	Metrics *infrastructure.BatchMetrics
	// Metrics endpoint handler, usually the prometheus exporter.
	MetricsHandler http.Handler
	// WebSocket serves /ws. Clients reports its connection count.
	WebSocket http.Handler
	Clients   ClientCounter
}

// NewRouter builds the HTTP API.
//
// Middleware order: RequestID, RealIP, Telemetry, StructuredLogger,
// recovery, rate limiting. The websocket route only gets the first two so
// the upgrade sees the raw ResponseWriter.
func NewRouter(opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := opts.ErrorHandler

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	if opts.WebSocket != nil {
		r.Handle(config.WebSocketEndpoint, opts.WebSocket)
	}
	if opts.MetricsHandler != nil {
		r.Handle(config.MetricsEndpoint, opts.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Telemetry(opts.Tracer, opts.Metrics))
		r.Use(middleware.StructuredLogger(logger))
		r.Use(apierrors.RecoveryMiddleware(errorHandler))
		if opts.Server.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(opts.Server.RateLimit, errorHandler, logger).Handler)
		}

		r.Route("/api", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))

			health := NewHealthHandler(opts.Queue, opts.Clients, logger)
			r.Get("/health", health.HealthCheck)
			r.Get("/health/live", health.LivenessCheck)
			r.Get("/version", health.Version)

			r.Route("/v1", func(r chi.Router) {
				r.Mount("/batches", NewBatchHandler(opts.Queue, errorHandler, opts.DataRoot, logger).Routes())
				r.Get("/scan", NewScanHandler(errorHandler, opts.DataRoot, logger).Scan)
			})
		})
	})

	return r
}
