package indicator

import "github.com/mohamedkhairy/breakout-monitor/internal/models"

// MACDResult holds the MACD line, its signal line and the histogram
type MACDResult struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// MACD computes EMA(fast) - EMA(slow), its signal EMA and the histogram
func MACD(close []float64, p models.MACDParams) (MACDResult, error) {
	fast, err := EMASeries(close, p.FastPeriod)
	if err != nil {
		return MACDResult{}, err
	}
	slow, err := EMASeries(close, p.SlowPeriod)
	if err != nil {
		return MACDResult{}, err
	}

	line := make([]float64, len(close))
	for i := range close {
		line[i] = fast[i] - slow[i]
	}

	signal, err := EMASeries(line, p.SignalPeriod)
	if err != nil {
		return MACDResult{}, err
	}

	hist := make([]float64, len(close))
	for i := range close {
		hist[i] = line[i] - signal[i]
	}

	return MACDResult{MACD: line, Signal: signal, Hist: hist}, nil
}
