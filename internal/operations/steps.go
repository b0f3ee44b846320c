package operations

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"crunchcli/internal/config"
	"crunchcli/internal/dataprocessing"
	"crunchcli/internal/errors"
	"crunchcli/internal/exporter"
	"crunchcli/internal/files"
	"crunchcli/internal/tolerance"
	"crunchcli/internal/validation"
	"crunchcli/pkg/contracts/domain"
)

// DiscoverStep lists the measurement files of the input directory.
type DiscoverStep struct {
	BaseStep
	discovery *files.Discovery
	validator *validation.FileValidator
}

// NewDiscoverStep creates the discover step. Result tables written back into
// the input directory are not picked up.
func NewDiscoverStep(logger *slog.Logger) *DiscoverStep {
	return &DiscoverStep{
		BaseStep:  NewBaseStep(StepIDDiscover, "Discover Files"),
		discovery: files.NewDiscovery("", config.ResultFileBase),
		validator: validation.NewFileValidator(logger),
	}
}

// Validate checks the input directory.
func (s *DiscoverStep) Validate(state *BatchState) error {
	return s.validator.ValidateInputDirectory(state.Request.InputDir)
}

// Execute fills state.Files.
func (s *DiscoverStep) Execute(ctx context.Context, state *BatchState) error {
	found, err := s.discovery.FindMeasurementFiles(state.Request.InputDir)
	if err != nil {
		return errors.NewStorageError("failed to list input directory", err).
			WithContext("directory", state.Request.InputDir)
	}
	state.Files = found

	step, _ := state.GetStep(s.ID())
	step.SetMetadata("files", len(found))
	state.UpdateStep(ctx, s.ID(), 100, fmt.Sprintf("found %d measurement files", len(found)))
	return nil
}

// ScanStep reads the head of every text file to find the measurement types
// it holds, warning about files with several types and no selection.
type ScanStep struct {
	BaseStep
	logger *slog.Logger
}

// NewScanStep creates the scan step.
func NewScanStep(logger *slog.Logger) *ScanStep {
	return &ScanStep{
		BaseStep: NewBaseStep(StepIDScan, "Scan Measurement Types", StepIDDiscover),
		logger:   logger,
	}
}

// Execute fills state.Catalog.
func (s *ScanStep) Execute(ctx context.Context, state *BatchState) error {
	var textFiles []string
	for _, f := range state.Files {
		if ioType, ok := dataprocessing.IOTypeFor(f.Path); ok && ioType == domain.IOTypeInput {
			textFiles = append(textFiles, f.Path)
		}
	}
	if len(textFiles) == 0 {
		return SkipStep("no text files")
	}

	catalog, failed := dataprocessing.BuildCatalog(textFiles)
	state.Catalog = catalog

	for path, err := range failed {
		s.logger.DebugContext(ctx, "scan failed",
			slog.String("file", filepath.Base(path)),
			slog.String("error", err.Error()))
	}

	ambiguous := catalog.AmbiguousFiles()
	for _, path := range ambiguous {
		labels := catalog[path]
		label, selected := state.Request.Selections.For(path)
		switch {
		case !selected:
			s.logger.WarnContext(ctx, "several measurement types and no selection, using all",
				slog.String("file", filepath.Base(path)),
				slog.String("labels", strings.Join(labels.Sorted(), ",")))
		case !labels.Contains(label):
			s.logger.WarnContext(ctx, "selected measurement type not found in file",
				slog.String("file", filepath.Base(path)),
				slog.String("label", label))
		}
	}

	step, _ := state.GetStep(s.ID())
	step.SetMetadata("scanned", len(textFiles))
	step.SetMetadata("ambiguous", len(ambiguous))
	state.UpdateStep(ctx, s.ID(), 100, fmt.Sprintf("%d of %d text files have several measurement types", len(ambiguous), len(textFiles)))
	return nil
}

// ExtractStep reads every discovered file and aggregates their samples.
type ExtractStep struct {
	BaseStep
	processor *dataprocessing.Processor
	tracer    *BatchTracer
}

// NewExtractStep creates the extract step.
func NewExtractStep(processor *dataprocessing.Processor, tracer *BatchTracer) *ExtractStep {
	return &ExtractStep{
		BaseStep:  NewBaseStep(StepIDExtract, "Extract Samples", StepIDDiscover, StepIDScan),
		processor: processor,
		tracer:    tracer,
	}
}

// Execute fills state.Rows and state.Outcomes. Files are read one at a time;
// cancellation stops between files. A batch without samples is left for the
// aggregate step to reject.
func (s *ExtractStep) Execute(ctx context.Context, state *BatchState) error {
	tracker := NewProgressTracker(s.ID(), len(state.Files))
	onFile := func(ctx context.Context, outcome domain.FileOutcome) {
		s.tracer.RecordFile(ctx, outcome)
		tracker.Increment(fmt.Sprintf("%s %s", outcome.Name, outcome.Status))
		_, _, pct, msg := tracker.GetProgress()
		state.UpdateStep(ctx, s.ID(), pct, msg)
	}

	result, err := s.processor.Process(ctx, files.Paths(state.Files), state.Request.Selections, onFile)
	state.Outcomes = result.Files
	state.Rows = result.Rows
	if err != nil && !stderrors.Is(err, dataprocessing.ErrNoValidResults) {
		return err
	}

	processed, skipped, failed := result.Counts()
	step, _ := state.GetStep(s.ID())
	step.SetMetadata("processed", processed)
	step.SetMetadata("skipped", skipped)
	step.SetMetadata("failed", failed)
	return nil
}

// AggregateStep computes the summary rows and settles the unit.
type AggregateStep struct {
	BaseStep
}

// NewAggregateStep creates the aggregate step.
func NewAggregateStep() *AggregateStep {
	return &AggregateStep{BaseStep: NewBaseStep(StepIDAggregate, "Aggregate", StepIDExtract)}
}

// Validate rejects an unknown unit override.
func (s *AggregateStep) Validate(state *BatchState) error {
	if u := state.Request.Unit; u != "" {
		if _, ok := domain.ParseUnit(u); !ok {
			return errors.NewAppValidationError("unknown unit").WithContext("unit", u)
		}
	}
	return nil
}

// Execute settles state.Unit for the extracted rows. A batch without a single
// sample fails with dataprocessing.ErrNoValidResults.
func (s *AggregateStep) Execute(ctx context.Context, state *BatchState) error {
	if len(state.Rows) == 0 {
		state.Rows = []domain.AggregateRow{}
		return dataprocessing.ErrNoValidResults
	}

	if u, ok := domain.ParseUnit(state.Request.Unit); ok {
		state.Unit = u
	} else {
		paths := files.Paths(state.Files)
		state.Unit = dataprocessing.DetectUnit(dataprocessing.FileNames(paths))
	}

	step, _ := state.GetStep(s.ID())
	step.SetMetadata("rows", len(state.Rows))
	step.SetMetadata("unit", string(state.Unit))
	state.UpdateStep(ctx, s.ID(), 100, fmt.Sprintf("%d rows in %s", len(state.Rows), state.Unit))
	return nil
}

// EvaluateStep applies the tolerance configuration to the rows.
type EvaluateStep struct {
	BaseStep
	policy tolerance.UnitMismatchPolicy
	tracer *BatchTracer
	logger *slog.Logger
}

// NewEvaluateStep creates the evaluate step. policy decides about unit
// mismatches between the configuration and the data; nil rejects them.
func NewEvaluateStep(policy tolerance.UnitMismatchPolicy, tracer *BatchTracer, logger *slog.Logger) *EvaluateStep {
	return &EvaluateStep{
		BaseStep: NewBaseStep(StepIDEvaluate, "Evaluate Tolerances", StepIDAggregate),
		policy:   policy,
		tracer:   tracer,
		logger:   logger,
	}
}

// Execute loads the configuration and evaluates state.Rows. Without a
// configuration the step is skipped and the rows carry no verdicts.
func (s *EvaluateStep) Execute(ctx context.Context, state *BatchState) error {
	cfg, source, err := resolveTolerance(state.Request)
	if err != nil {
		return err
	}
	if cfg == nil {
		return SkipStep("no tolerance configuration")
	}
	if err := tolerance.CheckUnit(ctx, cfg, state.Unit, s.policy); err != nil {
		return err
	}

	state.Tolerance = cfg
	state.ToleranceSource = source
	state.Rows = dataprocessing.Evaluate(state.Rows, cfg)
	s.tracer.RecordChecks(ctx, state.Rows)

	sum := summarizeTolerance(source, state.Rows)
	if sum.Unmatched > 0 {
		s.logger.WarnContext(ctx, "rows without tolerance entry",
			slog.Int("unmatched", sum.Unmatched),
			slog.String("source", source))
	}

	step, _ := state.GetStep(s.ID())
	step.SetMetadata("source", source)
	step.SetMetadata("entries", cfg.Len())
	step.SetMetadata("mean_pass", sum.MeanPass)
	step.SetMetadata("two_sigma_pass", sum.TwoSigmaPass)
	state.UpdateStep(ctx, s.ID(), 100, fmt.Sprintf("%d of %d rows pass the mean check", sum.MeanPass, len(state.Rows)))
	return nil
}

// resolveTolerance picks the inline document, then the named file, then the
// default file of the input directory.
func resolveTolerance(req BatchRequest) (*tolerance.Config, string, error) {
	switch {
	case req.Tolerance != nil:
		cfg, err := tolerance.Build(*req.Tolerance)
		return cfg, "inline", err
	case req.TolerancePath != "":
		cfg, err := tolerance.Load(req.TolerancePath)
		return cfg, req.TolerancePath, err
	default:
		cfg, err := tolerance.LoadDefault(req.InputDir)
		return cfg, filepath.Join(req.InputDir, tolerance.DefaultFileName), err
	}
}

// ExportStep writes the result table.
type ExportStep struct {
	BaseStep
	validator *validation.FileValidator
	logger    *slog.Logger
}

// NewExportStep creates the export step.
func NewExportStep(logger *slog.Logger) *ExportStep {
	return &ExportStep{
		BaseStep:  NewBaseStep(StepIDExport, "Export Results", StepIDEvaluate),
		validator: validation.NewFileValidator(logger),
		logger:    logger,
	}
}

// Validate rejects unknown formats.
func (s *ExportStep) Validate(state *BatchState) error {
	switch exportFormat(state.Request) {
	case exporter.FormatCSV, exporter.FormatJSON:
		return nil
	default:
		return errors.NewAppValidationError("unsupported output format").
			WithContext("format", state.Request.Format)
	}
}

// Execute writes <ResultFileBase>.<format> into the output directory and sets
// state.OutputPath.
func (s *ExportStep) Execute(ctx context.Context, state *BatchState) error {
	if state.Request.SkipExport {
		return SkipStep("export disabled")
	}

	dir := state.Request.OutputDir
	if dir == "" {
		dir = state.Request.InputDir
	}
	if err := s.validator.ValidateOutputDirectory(dir); err != nil {
		return err
	}

	table := exporter.ResultTable{Unit: state.Unit, Rows: state.Rows}
	path, err := exporter.NewResultExporter(dir, s.logger).Export(table, config.ResultFileBase, exportFormat(state.Request))
	if err != nil {
		return errors.NewStorageError("failed to export results", err).WithContext("directory", dir)
	}
	state.OutputPath = path

	step, _ := state.GetStep(s.ID())
	step.SetMetadata("output", path)
	state.UpdateStep(ctx, s.ID(), 100, "wrote "+filepath.Base(path))
	return nil
}

func exportFormat(req BatchRequest) exporter.Format {
	if req.Format == "" {
		return exporter.FormatCSV
	}
	return exporter.Format(strings.ToLower(req.Format))
}
