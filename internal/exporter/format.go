package exporter

import (
	"math"
	"strconv"
)

// formatFloat writes a measurement with six decimals. NaN renders as an
// empty cell.
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// formatTestValue keeps the shortest exact form of the decoded test value.
func formatTestValue(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// nullable maps NaN to nil for JSON output.
func nullable(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
