// Package indicator computes rolling statistics over close prices. Every
// function is pure: it reads the input slice, returns a new slice of the same
// length, and marks warm-up positions with NaN.
package indicator

import "math"

// Defined reports whether v holds a computed indicator value.
func Defined(v float64) bool { return !math.IsNaN(v) }

func undefined(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA returns the simple moving average of closes over window bars. Values
// before index window-1 are NaN.
func SMA(closes []float64, window int) []float64 {
	out := undefined(len(closes))
	if window <= 0 {
		return out
	}
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}
