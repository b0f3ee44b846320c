package dataprocessing

import (
	"context"
	stderrors "errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"crunchcli/internal/errors"
	"crunchcli/internal/tolerance"
	"crunchcli/pkg/contracts/domain"
)

// ErrNoValidResults is returned when no file in a batch produced a sample.
var ErrNoValidResults = stderrors.New("no valid results")

// Skip reasons recorded in FileOutcome.Reason.
const (
	ReasonNoTestValue    = "no test value in filename"
	ReasonNoChannel      = "no channel in filename"
	ReasonNoMeasurements = "no valid measurements"
	ReasonUnsupported    = "unsupported file type"
)

// IOTypeFor classifies a file by extension: .txt files are Input, .csv and
// workbook files are Output.
func IOTypeFor(path string) (domain.IOType, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return domain.IOTypeInput, true
	case ".csv", ".xlsx", ".xlsm":
		return domain.IOTypeOutput, true
	default:
		return "", false
	}
}

// BatchResult is the outcome of one Process call.
type BatchResult struct {
	Rows  []domain.AggregateRow
	Files []domain.FileOutcome
}

// Counts returns how many files were processed, skipped and failed.
func (r BatchResult) Counts() (processed, skipped, failed int) {
	for _, f := range r.Files {
		switch f.Status {
		case domain.FileStatusProcessed:
			processed++
		case domain.FileStatusSkipped:
			skipped++
		case domain.FileStatusFailed:
			failed++
		}
	}
	return processed, skipped, failed
}

// Processor turns a list of files into an aggregate table. Files are handled
// one at a time; a file that cannot be used is recorded and the batch goes on.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a processor. A nil logger uses slog.Default().
func NewProcessor(logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger.With(slog.String("component", "batch_processor"))}
}

// FileFunc is called with each file's outcome as soon as the file is done.
type FileFunc func(ctx context.Context, outcome domain.FileOutcome)

// Process reads every path into one accumulator and returns the aggregated
// rows. When no file contributes a sample the result carries the per-file
// outcomes and ErrNoValidResults is returned. Cancellation stops between
// files. onFile may be nil.
func (p *Processor) Process(ctx context.Context, paths []string, selections domain.Selections, onFile FileFunc) (BatchResult, error) {
	acc := NewAccumulator()
	result := BatchResult{Files: make([]domain.FileOutcome, 0, len(paths))}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := p.ProcessFile(ctx, path, selections, acc)
		result.Files = append(result.Files, outcome)
		if onFile != nil {
			onFile(ctx, outcome)
		}
	}

	if acc.Len() == 0 {
		p.logger.WarnContext(ctx, "no valid results", slog.Int("files", len(paths)))
		return result, ErrNoValidResults
	}

	result.Rows = acc.Rows()
	return result, nil
}

// ProcessFile reads one file into acc and reports what happened to it.
func (p *Processor) ProcessFile(ctx context.Context, path string, selections domain.Selections, acc *Accumulator) domain.FileOutcome {
	outcome := domain.FileOutcome{Path: path, Name: filepath.Base(path)}

	ioType, ok := IOTypeFor(path)
	if !ok {
		return p.skip(ctx, outcome, ReasonUnsupported)
	}
	outcome.IOType = ioType

	meta := DecodeFilename(outcome.Name)
	if !meta.HasTestValue() {
		return p.skip(ctx, outcome, ReasonNoTestValue)
	}

	var set domain.ChannelSampleSet
	if ioType == domain.IOTypeOutput {
		if !meta.HasChannel() {
			return p.skip(ctx, outcome, ReasonNoChannel)
		}
		table, err := ReadTableSamples(path)
		if err != nil {
			if errors.TypeOf(err) == errors.ErrTypeParsing {
				return p.skip(ctx, outcome, errors.Reason(err))
			}
			return p.fail(ctx, outcome, err)
		}
		outcome.Label = table.Column
		set = domain.ChannelSampleSet{*meta.Channel: table.Samples}
	} else {
		label, _ := selections.For(path)
		extracted, layout, err := ExtractFile(path, ExtractOptions{
			MeasurementType: label,
			FallbackChannel: meta.Channel,
		})
		if err != nil {
			return p.fail(ctx, outcome, err)
		}
		if layout == LayoutNone {
			return p.skip(ctx, outcome, ReasonNoMeasurements)
		}
		outcome.Label = label
		set = extracted
	}

	for _, ch := range set.Channels() {
		acc.Add(domain.GroupKey{
			Channel:      ch,
			IOType:       ioType,
			RangeSetting: meta.RangeLabel(),
			TestValue:    *meta.TestValue,
		}, set[ch])
	}

	outcome.Status = domain.FileStatusProcessed
	outcome.Channels = len(set)
	outcome.Samples = set.Total()

	p.logger.InfoContext(ctx, "file processed",
		slog.String("file", outcome.Name),
		slog.String("io_type", string(ioType)),
		slog.Float64("test_value", *meta.TestValue),
		slog.String("range", meta.RangeLabel()),
		slog.Int("channels", outcome.Channels),
		slog.Int("samples", outcome.Samples),
		slog.String("label", outcome.Label),
	)
	return outcome
}

func (p *Processor) skip(ctx context.Context, outcome domain.FileOutcome, reason string) domain.FileOutcome {
	outcome.Status = domain.FileStatusSkipped
	outcome.Reason = reason
	p.logger.WarnContext(ctx, "file skipped",
		slog.String("file", outcome.Name),
		slog.String("reason", reason),
	)
	return outcome
}

func (p *Processor) fail(ctx context.Context, outcome domain.FileOutcome, err error) domain.FileOutcome {
	outcome.Status = domain.FileStatusFailed
	outcome.Reason = errors.Reason(err)
	p.logger.ErrorContext(ctx, "file failed",
		slog.String("file", outcome.Name),
		slog.String("error", err.Error()),
		slog.String("error_type", string(errors.TypeOf(err))),
	)
	return outcome
}

// CollectConfigKeys returns the distinct tolerance keys the given files would
// produce, in template order. Output files need a channel in their name to
// contribute, matching what Process accepts.
func CollectConfigKeys(paths []string) []tolerance.Key {
	seen := make(map[tolerance.Key]struct{})
	var keys []tolerance.Key
	for _, path := range paths {
		ioType, ok := IOTypeFor(path)
		if !ok {
			continue
		}
		meta := DecodeFilename(filepath.Base(path))
		if !meta.HasTestValue() {
			continue
		}
		if ioType == domain.IOTypeOutput && !meta.HasChannel() {
			continue
		}
		k := tolerance.Key{TestValue: *meta.TestValue, RangeSetting: meta.RangeKey(), IOType: ioType}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// FileNames returns the base names of paths.
func FileNames(paths []string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}
