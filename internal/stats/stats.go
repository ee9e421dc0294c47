// Package stats holds the small statistical helpers used by confidence
// scoring and feedback anomaly detection. Every function guards its
// preconditions and returns 0 instead of NaN on degenerate input.
package stats

import "math"

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance returns the population variance of values, or 0 when fewer than
// two samples are available.
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// ZScore returns how many standard deviations x sits from the mean of
// values. It returns 0 when the history is too small or has no spread, so
// callers can gate on a minimum sample size without risking a divide by
// zero.
func ZScore(x float64, values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sd := StdDev(values)
	if sd == 0 {
		return 0
	}
	return (x - Mean(values)) / sd
}
