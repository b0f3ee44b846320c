package operations

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"crunchcli/internal/dataprocessing"
	"crunchcli/internal/infrastructure"
	"crunchcli/internal/tolerance"
)

// ManagerOptions configures a Manager. Every field is optional.
type ManagerOptions struct {
	Tracer   trace.Tracer
	Metrics  *infrastructure.BatchMetrics
	Reporter ProgressReporter
	// UnitPolicy decides about tolerance configurations written for another
	// unit. Nil rejects them.
	UnitPolicy tolerance.UnitMismatchPolicy
	Logger     *slog.Logger
	// Registry replaces the default pipeline.
	Registry *Registry
}

// Manager runs batches through the registered steps
type Manager struct {
	registry *Registry
	tracer   *BatchTracer
	reporter ProgressReporter
	logger   *slog.Logger
}

// NewManager creates a manager running the default pipeline
// discover, scan, extract, aggregate, evaluate, export.
func NewManager(opts ManagerOptions) *Manager {
	logger := infrastructure.WithComponent(opts.Logger, "batch_manager")
	tracer := NewBatchTracer(opts.Tracer, opts.Metrics)

	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry(tracer, opts.UnitPolicy, logger)
	}

	return &Manager{
		registry: registry,
		tracer:   tracer,
		reporter: opts.Reporter,
		logger:   logger,
	}
}

// DefaultRegistry registers the six batch steps.
func DefaultRegistry(tracer *BatchTracer, policy tolerance.UnitMismatchPolicy, logger *slog.Logger) *Registry {
	r := NewRegistry()
	for _, step := range []Step{
		NewDiscoverStep(logger),
		NewScanStep(logger),
		NewExtractStep(dataprocessing.NewProcessor(logger), tracer),
		NewAggregateStep(),
		NewEvaluateStep(policy, tracer, logger),
		NewExportStep(logger),
	} {
		// IDs are distinct constants.
		_ = r.Register(step)
	}
	return r
}

// NewBatch creates the pending state of a batch without running it.
func (m *Manager) NewBatch(req BatchRequest) (*BatchState, error) {
	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	state := NewBatchState(infrastructure.NewBatchID(), req, steps)
	if m.reporter != nil {
		state.notify = m.reporter.ReportProgress
	}
	return state, nil
}

// Execute runs a new batch for req and returns its report. The report is
// returned even when the batch fails.
func (m *Manager) Execute(ctx context.Context, req BatchRequest) (*BatchReport, error) {
	state, err := m.NewBatch(req)
	if err != nil {
		return nil, err
	}
	return m.Run(ctx, state)
}

// Run executes a pending batch.
func (m *Manager) Run(ctx context.Context, state *BatchState) (*BatchReport, error) {
	ctx = infrastructure.EnsureTraceID(infrastructure.WithBatchID(ctx, state.ID))
	logger := m.logger.With(slog.String("batch_id", state.ID))

	ctx, span := m.tracer.StartBatch(ctx, state.ID, state.Request)
	state.Start()
	state.emit(ctx, "", string(BatchStatusRunning), "batch started")
	logger.InfoContext(ctx, "batch started", slog.String("input_dir", state.Request.InputDir))

	err := m.runSteps(ctx, state, logger)

	state.Finish(err)
	report := state.Report()
	m.tracer.EndBatch(ctx, span, report, err)
	state.emit(ctx, "", string(report.Status), batchMessage(report))

	attrs := []any{
		slog.String("status", string(report.Status)),
		slog.Int("rows", report.RowCount),
		slog.Int("processed", report.Processed),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration()),
	}
	if err != nil {
		logger.ErrorContext(ctx, "batch finished with error", append(attrs, slog.String("error", err.Error()))...)
	} else {
		logger.InfoContext(ctx, "batch completed", append(attrs, slog.String("output", report.OutputPath))...)
	}
	return report, err
}

// Validate checks req against every step without running anything. The
// returned error is the first rejection.
func (m *Manager) Validate(req BatchRequest) error {
	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		return fmt.Errorf("invalid pipeline: %w", err)
	}
	return validateSteps(steps, NewBatchState("", req, steps))
}

func validateSteps(steps []Step, state *BatchState) error {
	for _, step := range steps {
		if err := step.Validate(state); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) runSteps(ctx context.Context, state *BatchState, logger *slog.Logger) error {
	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		return err
	}

	if err := validateSteps(steps, state); err != nil {
		logger.WarnContext(ctx, "batch request rejected", slog.String("error", err.Error()))
		return err
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return WrapStepError(step.ID(), err)
		}
		if err := m.runStep(ctx, state, step, logger); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) runStep(ctx context.Context, state *BatchState, step Step, logger *slog.Logger) error {
	st, _ := state.GetStep(step.ID())
	st.Start()
	state.emit(ctx, step.ID(), string(StepStatusActive), step.Name())

	stepCtx, span := m.tracer.StartStep(ctx, state.ID, step.ID())
	start := time.Now()
	err := step.Execute(stepCtx, state)
	duration := time.Since(start)

	var skip *skipError
	switch {
	case stderrors.As(err, &skip):
		st.Skip(skip.reason)
		m.tracer.EndStep(stepCtx, span, step.ID(), duration, nil)
		state.emit(ctx, step.ID(), string(StepStatusSkipped), skip.reason)
		logger.InfoContext(ctx, "step skipped",
			slog.String("step", step.ID()),
			slog.String("reason", skip.reason))
		return nil

	case err != nil:
		wrapped := WrapStepError(step.ID(), err)
		st.Fail(wrapped)
		m.tracer.EndStep(stepCtx, span, step.ID(), duration, err)
		state.emit(ctx, step.ID(), string(StepStatusFailed), err.Error())
		logger.ErrorContext(ctx, "step failed",
			slog.String("step", step.ID()),
			slog.String("error", err.Error()),
			slog.Duration("duration", duration))
		return wrapped
	}

	st.Complete()
	m.tracer.EndStep(stepCtx, span, step.ID(), duration, nil)
	state.emit(ctx, step.ID(), string(StepStatusCompleted), step.Name())
	logger.DebugContext(ctx, "step completed",
		slog.String("step", step.ID()),
		slog.Duration("duration", duration))
	return nil
}

func batchMessage(r *BatchReport) string {
	if r.Error != "" {
		return r.Error
	}
	return fmt.Sprintf("%d rows from %d files (%d skipped, %d failed)", r.RowCount, r.Processed, r.Skipped, r.Failed)
}
