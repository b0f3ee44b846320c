package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crunchcli/internal/infrastructure"
	"crunchcli/pkg/contracts/domain"
)

// TracerName names the tracer used for batch spans.
const TracerName = "crunchcli.operations"

// BatchTracer wraps the batch and step spans and the matching metrics.
type BatchTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.BatchMetrics
}

// NewBatchTracer creates a tracer. A nil tracer uses the global provider and
// nil metrics records nothing.
func NewBatchTracer(tracer trace.Tracer, metrics *infrastructure.BatchMetrics) *BatchTracer {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &BatchTracer{tracer: tracer, metrics: metrics}
}

// StartBatch opens the span covering a whole batch.
func (t *BatchTracer) StartBatch(ctx context.Context, batchID string, req BatchRequest) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "batch.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("batch.id", batchID),
			attribute.String("batch.input_dir", req.InputDir),
			attribute.String("batch.format", req.Format),
			attribute.Int("batch.selections", len(req.Selections)),
		),
	)
	t.metrics.BatchStarted(ctx)
	return ctx, span
}

// EndBatch closes the batch span and records its outcome.
func (t *BatchTracer) EndBatch(ctx context.Context, span trace.Span, report *BatchReport, err error) {
	span.SetAttributes(
		attribute.String("batch.status", string(report.Status)),
		attribute.Int("batch.rows", report.RowCount),
		attribute.Int("batch.files.processed", report.Processed),
		attribute.Int("batch.files.skipped", report.Skipped),
		attribute.Int("batch.files.failed", report.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "batch completed")
	}
	span.End()

	t.metrics.BatchFinished(ctx)
	t.metrics.RecordBatch(ctx, string(report.Status), report.Duration())
}

// StartStep opens a child span for one step.
func (t *BatchTracer) StartStep(ctx context.Context, batchID, stepID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "batch.step."+stepID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("batch.id", batchID),
			attribute.String("step.id", stepID),
		),
	)
}

// EndStep closes a step span and records its duration.
func (t *BatchTracer) EndStep(ctx context.Context, span trace.Span, stepID string, duration time.Duration, err error) {
	span.SetAttributes(attribute.Int64("step.duration_ms", duration.Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	t.metrics.RecordStep(ctx, stepID, duration, err == nil)
}

// RecordFile adds a span event and counters for one file outcome.
func (t *BatchTracer) RecordFile(ctx context.Context, outcome domain.FileOutcome) {
	trace.SpanFromContext(ctx).AddEvent("file", trace.WithAttributes(
		attribute.String("file.name", outcome.Name),
		attribute.String("file.status", string(outcome.Status)),
		attribute.String("file.reason", outcome.Reason),
		attribute.Int("file.samples", outcome.Samples),
	))
	t.metrics.RecordFile(ctx, string(outcome.Status), string(outcome.IOType), outcome.Samples)
}

// RecordChecks counts the tolerance verdicts of rows.
func (t *BatchTracer) RecordChecks(ctx context.Context, rows []domain.AggregateRow) {
	for _, row := range rows {
		if row.Tolerance == nil {
			continue
		}
		t.metrics.RecordCheck(ctx, "mean", row.Tolerance.MeanCheck)
		t.metrics.RecordCheck(ctx, "mean_2sigma", row.Tolerance.MeanTwoSigmaCheck)
	}
}
