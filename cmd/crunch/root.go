package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"crunchcli/internal/config"
	"crunchcli/internal/dataprocessing"
	"crunchcli/internal/files"
	"crunchcli/internal/infrastructure"
	"crunchcli/internal/operations"
	"crunchcli/internal/tolerance"
	"crunchcli/internal/watch"
	"crunchcli/pkg/contracts"
	"crunchcli/pkg/contracts/domain"
)

type options struct {
	configPath string
	inputDir   string
	outputDir  string
	format     string
	unit       string
	tolerance  string
	selections []string
	template   string
	strictUnit bool
	watch      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "crunch",
		Short:         "Aggregate instrument logs and check them against tolerances",
		Version:       contracts.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}
	cmd.SetVersionTemplate(contracts.GetFullVersionString() + "\n")

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "YAML config file (default crunch.yaml or $CRUNCH_CONFIG)")
	f.StringVar(&opts.inputDir, "in", "", "directory holding the measurement files")
	f.StringVar(&opts.outputDir, "out", "", "directory for the result table (default: input directory)")
	f.StringVar(&opts.format, "format", "", "result format: csv or json")
	f.StringVar(&opts.unit, "unit", "", "unit override, e.g. V, mV, mA, Ohm")
	f.StringVar(&opts.tolerance, "tolerance", "", "tolerance file (default <in>/"+tolerance.DefaultFileName+")")
	f.StringArrayVar(&opts.selections, "select", nil, "file=Label measurement type for a file with several (repeatable)")
	f.StringVar(&opts.template, "template", "", "write a tolerance template for the input directory to this path and exit")
	f.BoolVar(&opts.strictUnit, "strict-unit", false, "reject a tolerance file written for another unit")
	f.BoolVar(&opts.watch, "watch", false, "re-run whenever a measurement file changes")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, opts, cfg)

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	selections, err := parseSelections(opts.selections)
	if err != nil {
		return err
	}

	if opts.template != "" {
		return writeTemplate(cmd.OutOrStdout(), cfg.Engine, opts.template)
	}

	cfg.Telemetry.MetricsEnabled = false
	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() { _ = providers.Shutdown(context.WithoutCancel(cmd.Context())) }()

	policy := tolerance.WarnMismatch(logger)
	if cfg.Engine.StrictUnit {
		policy = tolerance.RejectMismatch
	}
	manager := operations.NewManager(operations.ManagerOptions{
		Tracer:     providers.Tracer,
		Reporter:   stepLogger(logger),
		UnitPolicy: policy,
		Logger:     logger,
	})

	req := operations.BatchRequest{
		InputDir:      cfg.Engine.InputDir,
		OutputDir:     cfg.Engine.OutputDir,
		Format:        cfg.Engine.OutputFormat,
		TolerancePath: cfg.Engine.ToleranceFile,
		Selections:    selections,
		Unit:          cfg.Engine.Unit,
	}

	batch := func(ctx context.Context) error {
		report, err := manager.Execute(ctx, req)
		if report != nil {
			printReport(cmd.OutOrStdout(), report)
		}
		return err
	}

	if err := batch(cmd.Context()); err != nil && !opts.watch {
		return err
	}
	if !opts.watch {
		return nil
	}
	return watch.New(cfg.Engine.InputDir, cfg.Engine.WatchDebounce, batch, logger).Run(cmd.Context())
}

// applyFlags overlays the flags the user set onto the engine section.
func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("in") {
		cfg.Engine.InputDir = opts.inputDir
	}
	if f.Changed("out") {
		cfg.Engine.OutputDir = opts.outputDir
	}
	if f.Changed("format") {
		cfg.Engine.OutputFormat = strings.ToLower(opts.format)
	}
	if f.Changed("unit") {
		cfg.Engine.Unit = opts.unit
	}
	if f.Changed("tolerance") {
		cfg.Engine.ToleranceFile = opts.tolerance
	}
	if f.Changed("strict-unit") {
		cfg.Engine.StrictUnit = opts.strictUnit
	}
}

// parseSelections reads file=Label pairs. The split is on the last '=' so
// filenames may contain one.
func parseSelections(pairs []string) (domain.Selections, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	sel := make(domain.Selections, len(pairs))
	for _, p := range pairs {
		i := strings.LastIndex(p, "=")
		if i <= 0 || i == len(p)-1 {
			return nil, fmt.Errorf("invalid --select %q, want file=Label", p)
		}
		sel[filepath.Base(p[:i])] = p[i+1:]
	}
	return sel, nil
}

// writeTemplate writes one tolerance entry per key found in the input
// directory. Entries already present in an existing configuration keep
// their values.
func writeTemplate(w io.Writer, engine config.EngineConfig, path string) error {
	found, err := files.NewDiscovery("", config.ResultFileBase).FindMeasurementFiles(engine.InputDir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", engine.InputDir, err)
	}
	paths := files.Paths(found)

	unit, ok := domain.ParseUnit(engine.Unit)
	if !ok {
		unit = dataprocessing.DetectUnit(dataprocessing.FileNames(paths))
	}
	doc := tolerance.Template(dataprocessing.CollectConfigKeys(paths), unit)

	existing, err := tolerance.LoadDefault(engine.InputDir)
	if err != nil {
		return err
	}
	doc = tolerance.Merge(doc, existing)

	if err := tolerance.Save(path, doc); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %d tolerance entries (%s) to %s\n", len(doc.Configurations), unit, path)
	return nil
}

func stepLogger(logger *slog.Logger) operations.ReporterFunc {
	return func(ctx context.Context, ev operations.ProgressEvent) {
		if ev.Step == "" || ev.Status == operations.EventStatusProgress {
			return
		}
		logger.DebugContext(ctx, "step "+ev.Status,
			slog.String("batch_id", ev.BatchID),
			slog.String("step", ev.Step),
			slog.String("message", ev.Message))
	}
}

func printReport(w io.Writer, r *operations.BatchReport) {
	for _, f := range r.Files {
		if f.Status != domain.FileStatusProcessed {
			fmt.Fprintf(w, "%-8s %s: %s\n", f.Status, f.Name, f.Reason)
		}
	}
	if r.Status != operations.BatchStatusCompleted {
		fmt.Fprintf(w, "batch %s: %s\n", r.Status, r.Error)
		return
	}

	fmt.Fprintf(w, "%d rows in %s from %d files (%d skipped, %d failed)\n",
		r.RowCount, r.Unit, r.Processed, r.Skipped, r.Failed)
	if t := r.Tolerance; t != nil {
		fmt.Fprintf(w, "tolerance %s: %d matched, %d unmatched, mean PASS %d, mean±2σ PASS %d\n",
			t.Source, t.Matched, t.Unmatched, t.MeanPass, t.TwoSigmaPass)
	}
	if r.OutputPath != "" {
		fmt.Fprintf(w, "wrote %s\n", r.OutputPath)
	}
}
