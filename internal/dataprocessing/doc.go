// Package dataprocessing turns instrument logs into per-channel statistics.
//
// A batch touches every measurement file once:
//
//	filename  → DecodeFilename: test value, range setting, channel
//	.txt      → DetectMeasurementTypes, then ExtractSamples (hierarchical,
//	            flat channel or flat layout)
//	.csv/.xlsx → tabular reader, one sample column per channel
//	samples   → Accumulator (merged across files by channel, io type,
//	            range setting and test value)
//	rows      → Evaluate against a tolerance.Config
//
// Text files are input measurements and tables are output measurements, see
// IOTypeFor. A file that cannot be decoded is reported in its
// domain.FileOutcome and the batch goes on; only a batch without a single
// sample fails, with ErrNoValidResults.
//
// Usage:
//
//	p := dataprocessing.NewProcessor(logger)
//	result, err := p.Process(ctx, paths, selections, nil)
//	if err != nil {
//	    return err
//	}
//	rows := dataprocessing.Evaluate(result.Rows, cfg)
package dataprocessing
