package indicator

import (
	"fmt"
	"math"
)

func isMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// RollingStd returns the rolling sample standard deviation (n-1 denominator)
// of values over window. A window of one, an unfilled window, or a window
// holding a missing value yields NaN.
func RollingStd(values []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("rolling window must be at least 1, got %d", window)
	}

	out := make([]float64, len(values))
	for i := range values {
		out[i] = math.NaN()
		if window < 2 || i < window-1 {
			continue
		}

		slice := values[i-window+1 : i+1]
		var sum float64
		valid := true
		for _, v := range slice {
			if isMissing(v) {
				valid = false
				break
			}
			sum += v
		}
		if !valid {
			continue
		}

		mean := sum / float64(window)
		var sq float64
		for _, v := range slice {
			d := v - mean
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(window-1))
	}

	return out, nil
}

// Diff returns values[i] - values[i-1]; the first element is NaN
func Diff(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i] - values[i-1]
	}
	return out
}

// safeDiv returns NaN instead of dividing by zero
func safeDiv(num, den float64) float64 {
	if den == 0 || isMissing(num) || isMissing(den) {
		return math.NaN()
	}
	return num / den
}
