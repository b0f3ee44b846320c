package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"crunchcli/internal/config"
	"crunchcli/internal/errors"
	"crunchcli/internal/infrastructure"
	"crunchcli/internal/operations"
	"crunchcli/internal/tolerance"
	handlers "crunchcli/internal/transport/http"
	ws "crunchcli/internal/websocket"
	"crunchcli/pkg/contracts"
)

// jobRetention is how long finished batches stay queryable.
const jobRetention = 24 * time.Hour

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	WebSocketHub  *ws.Hub
	Manager       *operations.Manager
	JobQueue      *operations.JobQueue
	Router        *chi.Mux
	Server        *http.Server
}

// NewApplication loads the configuration at configPath, installs the global
// logger and builds the application.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New wires every component from cfg. Nothing is started.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	batchMetrics, err := infrastructure.NewBatchMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch metrics: %w", err)
	}
	wsMetrics, err := ws.NewMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket metrics: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
	}

	a.WebSocketHub = ws.NewHub(logger, wsMetrics)

	policy := tolerance.WarnMismatch(logger)
	if cfg.Engine.StrictUnit {
		policy = tolerance.RejectMismatch
	}
	a.Manager = operations.NewManager(operations.ManagerOptions{
		Tracer:     providers.Tracer,
		Metrics:    batchMetrics,
		Reporter:   operations.NewStatusBroadcaster(a.WebSocketHub, operations.DefaultBroadcastInterval, logger),
		UnitPolicy: policy,
		Logger:     logger,
	})

	a.JobQueue = operations.NewJobQueue(operations.QueueOptions{
		Workers:   cfg.Engine.MaxConcurrentBatches,
		Timeout:   cfg.Engine.BatchTimeout,
		Retention: jobRetention,
	}, operations.NewMemoryJobStore(), a.Manager, logger)

	a.Router = handlers.NewRouter(handlers.RouterOptions{
		Queue:          a.JobQueue,
		ErrorHandler:   errors.NewErrorHandler(logger, false),
		Server:         cfg.Server,
		DataRoot:       cfg.Engine.DataRoot,
		Logger:         logger,
		Tracer:         providers.Tracer,
		Metrics:        batchMetrics,
		MetricsHandler: providers.PrometheusHTTP,
		WebSocket:      ws.NewHandler(a.WebSocketHub, cfg.Server.WebSocket, logger),
		Clients:        a.WebSocketHub,
	})

	a.Server = &http.Server{
		Addr:           net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:        a.Router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return a, nil
}

// Run starts the hub, the job queue and the HTTP server and blocks until ctx
// is done or SIGINT/SIGTERM arrives, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Batches outlive the request context so Stop can drain them.
	queueCtx, cancelQueue := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelQueue()

	a.Logger.InfoContext(ctx, "starting application",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.String("address", ln.Addr().String()),
		slog.Int("workers", a.Config.Engine.MaxConcurrentBatches))
	if a.Config.Engine.DataRoot == "" {
		a.Logger.WarnContext(ctx, "no data root configured, clients may name any directory")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.WebSocketHub.Run(queueCtx)
		return nil
	})
	a.JobQueue.Start(queueCtx)

	g.Go(func() error {
		if err := a.Server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down", slog.String("reason", context.Cause(gctx).Error()))
		return a.Stop(context.WithoutCancel(gctx))
	})

	return g.Wait()
}

// Stop shuts the server down, waits for running batches and flushes
// telemetry, all within the configured shutdown timeout.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if err := a.JobQueue.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.Error("failed to stop job queue gracefully", slog.String("error", err.Error()))
	}
	a.WebSocketHub.Stop()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.Info("application shutdown complete")
	return stderrors.Join(errs...)
}
