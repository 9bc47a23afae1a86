package stats

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const sparkChars = " .:-=+*#%@"

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := floats.Min(values), floats.Max(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// DistributionSpark draws the histogram of values over the given number of
// equal-width bins as a sparkline.
func DistributionSpark(values []float64, bins int) string {
	if len(values) == 0 || bins <= 0 {
		return ""
	}
	minVal, maxVal := floats.Min(values), floats.Max(values)
	if maxVal == minVal {
		return Sparkline([]float64{1})
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, minVal, maxVal)
	// Histogram needs the last divider strictly above the largest value.
	dividers[bins] = math.Nextafter(maxVal, math.Inf(1))

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	counts := stat.Histogram(nil, dividers, sorted, nil)
	return Sparkline(counts)
}
