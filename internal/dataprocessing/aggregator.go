package dataprocessing

import (
	"math"
	"sort"

	"crunchcli/pkg/contracts/domain"
)

// Accumulator collects sample groups for one batch. It is append-only and not
// safe for concurrent use; each batch owns its own.
type Accumulator struct {
	order  []domain.GroupKey
	groups map[domain.GroupKey][]float64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{groups: make(map[domain.GroupKey][]float64)}
}

// Add appends samples under key. Empty sample slices are ignored.
func (a *Accumulator) Add(key domain.GroupKey, samples []float64) {
	if len(samples) == 0 {
		return
	}
	if _, ok := a.groups[key]; !ok {
		a.order = append(a.order, key)
	}
	a.groups[key] = append(a.groups[key], samples...)
}

// AddGroup appends one SampleGroup.
func (a *Accumulator) AddGroup(g domain.SampleGroup) {
	a.Add(g.Key, g.Samples)
}

// Len reports the number of distinct keys seen.
func (a *Accumulator) Len() int {
	return len(a.order)
}

// Rows computes the aggregate table.
func (a *Accumulator) Rows() []domain.AggregateRow {
	rows := make([]domain.AggregateRow, 0, len(a.order))
	for _, key := range a.order {
		rows = append(rows, summarize(key, a.groups[key]))
	}
	SortRows(rows)
	return rows
}

// Aggregate groups the given contributions by key and summarises each group.
// Groups contributing no samples produce no row.
func Aggregate(groups []domain.SampleGroup) []domain.AggregateRow {
	acc := NewAccumulator()
	for _, g := range groups {
		acc.AddGroup(g)
	}
	return acc.Rows()
}

// SortRows orders rows by channel, I/O type, range setting, then test value.
func SortRows(rows []domain.AggregateRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Key().Less(rows[j].Key())
	})
}

func summarize(key domain.GroupKey, samples []float64) domain.AggregateRow {
	mean, std := MeanStdDev(samples)
	lo, hi := MinMax(samples)
	return domain.AggregateRow{
		Channel:      key.Channel,
		IOType:       key.IOType,
		RangeSetting: key.RangeSetting,
		TestValue:    key.TestValue,
		Mean:         mean,
		StdDev:       std,
		Min:          lo,
		Max:          hi,
		Samples:      len(samples),
	}
}

// MeanStdDev returns the arithmetic mean and the sample standard deviation
// (n-1 divisor). The deviation is NaN for fewer than two samples and both are
// NaN for none.
func MeanStdDev(samples []float64) (float64, float64) {
	n := len(samples)
	if n == 0 {
		return math.NaN(), math.NaN()
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(n)
	if n < 2 {
		return mean, math.NaN()
	}

	var ss float64
	for _, v := range samples {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(n-1))
}

// MinMax returns the smallest and largest sample, NaN for none.
func MinMax(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi := samples[0], samples[0]
	for _, v := range samples[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
