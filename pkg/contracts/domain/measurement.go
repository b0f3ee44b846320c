package domain

import (
	"path/filepath"
	"sort"
	"strings"
)

// IOType tags the direction of a measurement file.
// Output files carry the instrument-generated reference signal (CSV/XLSX),
// Input files carry the device-under-test readings (TXT).
type IOType string

const (
	IOTypeInput  IOType = "Input"
	IOTypeOutput IOType = "Output"
)

// Unit is the physical unit decoded from a filename.
type Unit string

const (
	UnitNone      Unit = ""
	UnitVolt      Unit = "V"
	UnitMilliVolt Unit = "mV"
	UnitMilliAmp  Unit = "mA"
	UnitMicroAmp  Unit = "uA"
	UnitAmp       Unit = "A"
	UnitOhm       Unit = "Ohm"
	UnitUnknown   Unit = "unknown"
)

// ParseUnit matches s against the known units, ignoring case. Unknown or
// empty input gives false.
func ParseUnit(s string) (Unit, bool) {
	for _, u := range []Unit{UnitVolt, UnitMilliVolt, UnitMilliAmp, UnitMicroAmp, UnitAmp, UnitOhm} {
		if strings.EqualFold(s, string(u)) {
			return u, true
		}
	}
	return UnitNone, false
}

// RangeNotApplicable is the range label used when a file carries no range token.
const RangeNotApplicable = "N/A"

// FileMetadata holds the test parameters encoded in one file's name.
// Every field may be absent; an absent TestValue makes the file unusable.
type FileMetadata struct {
	TestValue    *float64
	Unit         Unit
	Channel      *int
	RangeSetting *string
}

// HasTestValue reports whether a test value was decoded.
func (m FileMetadata) HasTestValue() bool {
	return m.TestValue != nil
}

// HasChannel reports whether a _CH marker was decoded.
func (m FileMetadata) HasChannel() bool {
	return m.Channel != nil
}

// RangeLabel returns the range setting or RangeNotApplicable.
func (m FileMetadata) RangeLabel() string {
	if m.RangeSetting == nil {
		return RangeNotApplicable
	}
	return *m.RangeSetting
}

// RangeKey returns the range setting or "" when absent.
// The empty string is the configuration key for "no range".
func (m FileMetadata) RangeKey() string {
	if m.RangeSetting == nil {
		return ""
	}
	return *m.RangeSetting
}

// LabelSet is the set of distinct measurement-type labels found in a file body.
type LabelSet map[string]struct{}

// NewLabelSet builds a set from the given labels.
func NewLabelSet(labels ...string) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

// Add inserts a label.
func (s LabelSet) Add(label string) {
	s[label] = struct{}{}
}

// Contains reports whether the label is present.
func (s LabelSet) Contains(label string) bool {
	_, ok := s[label]
	return ok
}

// Ambiguous reports whether more than one label was found, in which case the
// configuration collaborator must pick one before extraction.
func (s LabelSet) Ambiguous() bool {
	return len(s) > 1
}

// Sorted returns the labels in lexical order.
func (s LabelSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// MeasurementTypeCatalog maps a file path to the labels discovered in its body.
type MeasurementTypeCatalog map[string]LabelSet

// AmbiguousFiles returns the sorted paths whose label set needs disambiguation.
func (c MeasurementTypeCatalog) AmbiguousFiles() []string {
	var out []string
	for path, labels := range c {
		if labels.Ambiguous() {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Selections maps a file path to the measurement-type label chosen for it.
// It is the resolved answer of the configuration collaborator.
type Selections map[string]string

// ChannelSampleSet maps channel number to the ordered samples read from one file.
type ChannelSampleSet map[int][]float64

// Channels returns the channel numbers in ascending order.
func (s ChannelSampleSet) Channels() []int {
	out := make([]int, 0, len(s))
	for ch := range s {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}

// Total returns the number of samples across all channels.
func (s ChannelSampleSet) Total() int {
	n := 0
	for _, v := range s {
		n += len(v)
	}
	return n
}

// For returns the label chosen for path, falling back to a selection keyed by
// the bare filename.
func (s Selections) For(path string) (string, bool) {
	if label, ok := s[path]; ok {
		return label, true
	}
	label, ok := s[filepath.Base(path)]
	return label, ok
}
