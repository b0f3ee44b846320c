package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"crunchcli/internal/config"
	"crunchcli/pkg/contracts"
)

// MeterName is the instrumentation scope for every tracer and meter.
const MeterName = "crunchcli"

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	// TraceWriter receives finished spans as JSON. Nil disables span export;
	// spans are still created so trace IDs reach the logs.
	TraceWriter   io.Writer
	EnableMetrics bool
}

// OTelConfigFrom maps the telemetry section of the application config.
func OTelConfigFrom(cfg config.TelemetryConfig) *OTelConfig {
	oc := &OTelConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: contracts.Version,
		EnableMetrics:  cfg.MetricsEnabled,
	}
	if cfg.TraceStdout {
		oc.TraceWriter = os.Stdout
	}
	return oc
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	// PrometheusHTTP serves the registry the meter provider exports to.
	// It is nil when metrics are disabled.
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel sets up tracing and metrics and installs them as the otel
// globals. A nil cfg uses the defaults of config.Default().
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = OTelConfigFrom(config.Default().Telemetry)
	}
	if logger == nil {
		logger = GetLogger()
	}
	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("service.instance.id", generateInstanceID()),
	)

	providers := &OTelProviders{Logger: logger}

	if err := initializeTracing(cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := initializeMetrics(cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.Bool("trace_export", cfg.TraceWriter != nil),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	return providers, nil
}

func initializeTracing(cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if cfg.TraceWriter != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.TraceWriter))
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetTracerProvider(tp)
	return nil
}

func initializeMetrics(cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	if !cfg.EnableMetrics {
		providers.Meter = noop.NewMeterProvider().Meter(MeterName)
		return nil
	}

	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	providers.MeterProvider = mp
	providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	otel.SetMeterProvider(mp)
	return nil
}

// Shutdown flushes and stops the providers.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}
	return nil
}

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// BatchMetrics holds the batch and HTTP instruments.
type BatchMetrics struct {
	BatchesTotal    metric.Int64Counter
	BatchDuration   metric.Float64Histogram
	ActiveBatches   metric.Int64UpDownCounter
	FilesTotal      metric.Int64Counter
	SamplesTotal    metric.Int64Counter
	StepDuration    metric.Float64Histogram
	ToleranceChecks metric.Int64Counter

	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
}

// NewBatchMetrics creates the instruments on meter.
func NewBatchMetrics(meter metric.Meter) (*BatchMetrics, error) {
	m := &BatchMetrics{}
	var err error

	if m.BatchesTotal, err = meter.Int64Counter("crunch_batches_total",
		metric.WithDescription("Batches run, by final status")); err != nil {
		return nil, err
	}
	if m.BatchDuration, err = meter.Float64Histogram("crunch_batch_duration_seconds",
		metric.WithDescription("Batch wall time"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ActiveBatches, err = meter.Int64UpDownCounter("crunch_active_batches",
		metric.WithDescription("Batches currently running")); err != nil {
		return nil, err
	}
	if m.FilesTotal, err = meter.Int64Counter("crunch_files_total",
		metric.WithDescription("Input files seen, by status and I/O type")); err != nil {
		return nil, err
	}
	if m.SamplesTotal, err = meter.Int64Counter("crunch_samples_total",
		metric.WithDescription("Measurement samples extracted")); err != nil {
		return nil, err
	}
	if m.StepDuration, err = meter.Float64Histogram("crunch_step_duration_seconds",
		metric.WithDescription("Pipeline step wall time"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ToleranceChecks, err = meter.Int64Counter("crunch_tolerance_checks_total",
		metric.WithDescription("Tolerance checks evaluated, by check and verdict")); err != nil {
		return nil, err
	}
	if m.HTTPRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests")); err != nil {
		return nil, err
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordBatch records one finished batch.
func (m *BatchMetrics) RecordBatch(ctx context.Context, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.BatchesTotal.Add(ctx, 1, attrs)
	m.BatchDuration.Record(ctx, duration.Seconds(), attrs)
}

// BatchStarted and BatchFinished track the running batch gauge.
func (m *BatchMetrics) BatchStarted(ctx context.Context) {
	if m != nil {
		m.ActiveBatches.Add(ctx, 1)
	}
}

func (m *BatchMetrics) BatchFinished(ctx context.Context) {
	if m != nil {
		m.ActiveBatches.Add(ctx, -1)
	}
}

// RecordFile records one file outcome and its sample count.
func (m *BatchMetrics) RecordFile(ctx context.Context, status, ioType string, samples int) {
	if m == nil {
		return
	}
	m.FilesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("io_type", ioType),
	))
	if samples > 0 {
		m.SamplesTotal.Add(ctx, int64(samples), metric.WithAttributes(attribute.String("io_type", ioType)))
	}
}

// RecordStep records the duration of one pipeline step.
func (m *BatchMetrics) RecordStep(ctx context.Context, step string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.StepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("status", status),
	))
}

// RecordCheck counts one tolerance verdict.
func (m *BatchMetrics) RecordCheck(ctx context.Context, check string, pass bool) {
	if m == nil {
		return
	}
	result := "fail"
	if pass {
		result = "pass"
	}
	m.ToleranceChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("result", result),
	))
}

// RecordHTTPRequest records one served request.
func (m *BatchMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// TraceIDFromContext returns the otel trace ID of the active span, or "".
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
