package indicator

import "github.com/mohamedkhairy/breakout-monitor/internal/models"

// BollingerResult holds the band columns
type BollingerResult struct {
	Mid   []float64
	Std   []float64
	Upper []float64
	Lower []float64
}

// Bollinger computes mid = rolling mean, std = rolling sample std and
// upper/lower = mid ± StdDev × std over p.Period
func Bollinger(close []float64, p models.BollingerParams) (BollingerResult, error) {
	mid, err := RollingMean(close, p.Period)
	if err != nil {
		return BollingerResult{}, err
	}
	std, err := RollingStd(close, p.Period)
	if err != nil {
		return BollingerResult{}, err
	}

	upper := make([]float64, len(close))
	lower := make([]float64, len(close))
	for i := range close {
		upper[i] = mid[i] + p.StdDev*std[i]
		lower[i] = mid[i] - p.StdDev*std[i]
	}

	return BollingerResult{Mid: mid, Std: std, Upper: upper, Lower: lower}, nil
}
