package indicator

import (
	"errors"
	"fmt"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
)

var (
	// ErrEmptyWindow is returned when there are no bars to compute over
	ErrEmptyWindow = errors.New("bar window is empty")
	// ErrMissingColumn is returned when a price column is null in every bar
	ErrMissingColumn = errors.New("required price column is missing")
)

// columns holds the price inputs as float series; null fields become NaN
type columns struct {
	open, high, low, close []float64
}

func extractColumns(bars []models.Bar) (columns, error) {
	c := columns{
		open:  make([]float64, len(bars)),
		high:  make([]float64, len(bars)),
		low:   make([]float64, len(bars)),
		close: make([]float64, len(bars)),
	}
	for i := range bars {
		c.open[i] = models.Value(bars[i].Open)
		c.high[i] = models.Value(bars[i].High)
		c.low[i] = models.Value(bars[i].Low)
		c.close[i] = models.Value(bars[i].Close)
	}

	required := []struct {
		name   string
		values []float64
	}{
		{"open", c.open},
		{"high", c.high},
		{"low", c.low},
		{"close", c.close},
	}
	for _, col := range required {
		if allMissing(col.values) {
			return c, fmt.Errorf("%w: %s", ErrMissingColumn, col.name)
		}
	}
	return c, nil
}

func allMissing(values []float64) bool {
	for _, v := range values {
		if !isMissing(v) {
			return false
		}
	}
	return true
}

// Compute derives moving averages, Bollinger Bands, MACD and ADX for bars
// using cfg's indicator parameters (missing groups take defaults).
// The input is never mutated; the result has one EnrichedBar per input bar.
func Compute(bars []models.Bar, cfg models.InstrumentConfig) ([]models.EnrichedBar, error) {
	if len(bars) == 0 {
		return nil, ErrEmptyWindow
	}

	params := cfg.WithDefaults()

	cols, err := extractColumns(bars)
	if err != nil {
		return nil, err
	}

	maFast, err := RollingMean(cols.close, params.MovingAverages.MAFast)
	if err != nil {
		return nil, fmt.Errorf("failed to compute fast moving average: %w", err)
	}
	maSlow, err := RollingMean(cols.close, params.MovingAverages.MASlow)
	if err != nil {
		return nil, fmt.Errorf("failed to compute slow moving average: %w", err)
	}
	bb, err := Bollinger(cols.close, *params.Bollinger)
	if err != nil {
		return nil, fmt.Errorf("failed to compute bollinger bands: %w", err)
	}
	macd, err := MACD(cols.close, *params.MACD)
	if err != nil {
		return nil, fmt.Errorf("failed to compute MACD: %w", err)
	}
	adx, err := ADX(cols.high, cols.low, cols.close, params.ADX.Period)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ADX: %w", err)
	}

	out := make([]models.EnrichedBar, len(bars))
	for i := range bars {
		out[i] = models.EnrichedBar{
			Bar: bars[i],
			Indicators: models.Indicators{
				MAFast:     models.Nullable(maFast[i]),
				MASlow:     models.Nullable(maSlow[i]),
				BBMid:      models.Nullable(bb.Mid[i]),
				BBStd:      models.Nullable(bb.Std[i]),
				BBUpper:    models.Nullable(bb.Upper[i]),
				BBLower:    models.Nullable(bb.Lower[i]),
				MACD:       models.Nullable(macd.MACD[i]),
				MACDSignal: models.Nullable(macd.Signal[i]),
				MACDHist:   models.Nullable(macd.Hist[i]),
				UpMove:     models.Nullable(adx.UpMove[i]),
				DownMove:   models.Nullable(adx.DownMove[i]),
				PlusDM:     models.Nullable(adx.PlusDM[i]),
				MinusDM:    models.Nullable(adx.MinusDM[i]),
				TR:         models.Nullable(adx.TR[i]),
				PlusDI:     models.Nullable(adx.PlusDI[i]),
				MinusDI:    models.Nullable(adx.MinusDI[i]),
				DX:         models.Nullable(adx.DX[i]),
				ADX:        models.Nullable(adx.ADX[i]),
			},
		}
	}

	return out, nil
}
