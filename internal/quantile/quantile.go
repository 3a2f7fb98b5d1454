// Package quantile computes the classification breakpoints drawn in map
// legends.
package quantile

import (
	"math"
	"sort"
)

// NumBreaks is the number of breakpoints returned by Breaks: the minimum,
// five interior sextiles and the maximum.
const NumBreaks = 7

// Breaks returns 7 ascending breakpoints over the strictly positive values.
// Zero and negative values are filtered here even though upstream joins
// already drop them.
//
// An empty input yields [0, nil, nil, nil, nil, nil, nil]; API consumers
// rely on that shape.
func Breaks(values []float64) [NumBreaks]*float64 {
	var out [NumBreaks]*float64

	positive := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 && !math.IsNaN(v) {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		zero := 0.0
		out[0] = &zero
		return out
	}

	sort.Float64s(positive)
	for i := 0; i < NumBreaks; i++ {
		v := Continuous(positive, float64(i)/float64(NumBreaks-1))
		out[i] = &v
	}
	return out
}

// Continuous returns the continuous percentile p (0..1) of sorted values:
// the real rank p*(n-1) interpolated linearly between its floor and ceiling
// ranks. values must be sorted ascending and non-empty.
func Continuous(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Values dereferences breaks for log fields, mapping nil to NaN.
func Values(breaks [NumBreaks]*float64) []float64 {
	out := make([]float64, NumBreaks)
	for i, b := range breaks {
		if b == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *b
	}
	return out
}
