// Package stats provides the small numeric helpers shared by the analyzers.
// Empty inputs yield 0 rather than NaN so scores stay finite.
package stats

import "math"

// SafeFloat maps NaN and infinities to 0.
func SafeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Mean returns the arithmetic mean.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// Variance returns the population variance.
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	m := Mean(data)
	var sum float64
	for _, v := range data {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(data))
}

// Std returns the population standard deviation.
func Std(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// Clamp01 limits v to [0, 1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, SafeFloat(v)))
}

// Clamp limits v to [lo, hi]. NaN becomes lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// WeightedMean returns sum(v*w)/sum(w), or the plain mean when the weights
// sum to zero.
func WeightedMean(values, weights []float64) float64 {
	var sum, total float64
	for i, v := range values {
		if i >= len(weights) {
			break
		}
		sum += v * weights[i]
		total += weights[i]
	}
	if total <= 0 {
		return Mean(values)
	}
	return sum / total
}
