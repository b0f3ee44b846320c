package domain

import "math"

// GroupKey identifies one aggregate row.
// TestValue is the float64 produced by the filename decoder, used verbatim so
// that equal filenames always land in the same group.
type GroupKey struct {
	Channel      int
	IOType       IOType
	RangeSetting string // RangeNotApplicable when the file had no range token
	TestValue    float64
}

// Less orders keys by channel, I/O type, range setting, then test value.
func (k GroupKey) Less(o GroupKey) bool {
	if k.Channel != o.Channel {
		return k.Channel < o.Channel
	}
	if k.IOType != o.IOType {
		return k.IOType < o.IOType
	}
	if k.RangeSetting != o.RangeSetting {
		return k.RangeSetting < o.RangeSetting
	}
	return k.TestValue < o.TestValue
}

// SampleGroup is one contribution to the aggregation pass: the samples read for
// a single channel of a single file.
type SampleGroup struct {
	Key     GroupKey
	Source  string
	Samples []float64
}

// AggregateRow is one line of the output table.
//
// StdDev uses the n-1 divisor and is NaN for single-sample groups.
// Tolerance is nil when no tolerance configuration was supplied to the
// evaluation pass.
type AggregateRow struct {
	Channel      int
	IOType       IOType
	RangeSetting string
	TestValue    float64

	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
	Samples int

	Tolerance *ToleranceResult
}

// Key returns the grouping key of the row.
func (r AggregateRow) Key() GroupKey {
	return GroupKey{
		Channel:      r.Channel,
		IOType:       r.IOType,
		RangeSetting: r.RangeSetting,
		TestValue:    r.TestValue,
	}
}

// DisplayRange returns the range override from the tolerance configuration
// when one was applied, otherwise the decoded range setting.
func (r AggregateRow) DisplayRange() string {
	if r.Tolerance != nil && r.Tolerance.RangeOverride != "" {
		return r.Tolerance.RangeOverride
	}
	return r.RangeSetting
}

// ToleranceResult carries the reference limits joined to a row and the two
// pass/fail checks. Fields are NaN and both checks false when no
// configuration entry matched the row.
type ToleranceResult struct {
	Matched       bool
	RangeOverride string

	Reference  float64
	Tolerance  float64
	LowerLimit float64
	UpperLimit float64

	MeanCheck         bool
	MeanTwoSigmaCheck bool
}

// UnmatchedTolerance is the result for a row with no configuration entry.
func UnmatchedTolerance() ToleranceResult {
	nan := math.NaN()
	return ToleranceResult{
		Reference:  nan,
		Tolerance:  nan,
		LowerLimit: nan,
		UpperLimit: nan,
	}
}

// Verdict renders a check as PASS or FAIL.
func Verdict(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

// FileStatus is the per-file result of a batch.
type FileStatus string

const (
	FileStatusProcessed FileStatus = "processed"
	FileStatusSkipped   FileStatus = "skipped"
	FileStatusFailed    FileStatus = "failed"
)

// FileOutcome records what happened to one input file.
type FileOutcome struct {
	Path     string     `json:"path"`
	Name     string     `json:"name"`
	IOType   IOType     `json:"io_type,omitempty"`
	Status   FileStatus `json:"status"`
	Reason   string     `json:"reason,omitempty"`
	Channels int        `json:"channels,omitempty"`
	Samples  int        `json:"samples,omitempty"`
	Label    string     `json:"label,omitempty"`
}
