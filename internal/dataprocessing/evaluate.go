package dataprocessing

import (
	"crunchcli/internal/tolerance"
	"crunchcli/pkg/contracts/domain"
)

// Evaluate joins each row to its tolerance entry and computes the two checks.
// A nil cfg leaves the rows untouched. Rows without an entry get NaN limits
// and fail both checks. The input slice is not modified.
func Evaluate(rows []domain.AggregateRow, cfg *tolerance.Config) []domain.AggregateRow {
	out := make([]domain.AggregateRow, len(rows))
	copy(out, rows)
	if cfg == nil {
		return out
	}
	for i := range out {
		result := evaluateRow(out[i], cfg)
		out[i].Tolerance = &result
	}
	return out
}

func evaluateRow(row domain.AggregateRow, cfg *tolerance.Config) domain.ToleranceResult {
	limits, ok := cfg.Lookup(tolerance.KeyFor(row))
	if !ok {
		return domain.UnmatchedTolerance()
	}

	lower, upper := limits.Lower(), limits.Upper()
	return domain.ToleranceResult{
		Matched:           true,
		RangeOverride:     limits.RangeOverride,
		Reference:         limits.Reference,
		Tolerance:         limits.Tolerance,
		LowerLimit:        lower,
		UpperLimit:        upper,
		MeanCheck:         MeanCheck(row.Mean, lower, upper),
		MeanTwoSigmaCheck: TwoSigmaCheck(row.Mean, row.StdDev, lower, upper),
	}
}

// MeanCheck passes when lower <= mean <= upper. Any NaN fails.
func MeanCheck(mean, lower, upper float64) bool {
	return lower <= mean && mean <= upper
}

// TwoSigmaCheck passes when the whole mean±2σ band lies inside the limits.
// An undefined deviation fails.
func TwoSigmaCheck(mean, std, lower, upper float64) bool {
	return lower <= mean-2*std && mean+2*std <= upper
}
