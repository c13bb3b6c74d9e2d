package indicator

import (
	"fmt"
	"math"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
)

// seriesEpoch anchors the synthetic candle periods. Feed timestamps can repeat
// within a window, which techan.TimeSeries rejects, so candles are placed on a
// fixed per-index grid instead.
var seriesEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const candleSpacing = time.Minute

// newCloseSeries loads values as the close prices of a techan time series.
// NaN values are stored as zero; callers track them separately.
func newCloseSeries(values []float64) (*techan.TimeSeries, error) {
	series := techan.NewTimeSeries()

	for i, v := range values {
		period := techan.NewTimePeriod(seriesEpoch.Add(time.Duration(2*i)*candleSpacing), candleSpacing)
		candle := techan.NewCandle(period)

		price := v
		if isMissing(price) {
			price = 0
		}
		d := big.NewDecimal(price)
		candle.OpenPrice = d
		candle.MaxPrice = d
		candle.MinPrice = d
		candle.ClosePrice = d

		if !series.AddCandle(candle) {
			return nil, fmt.Errorf("failed to add candle %d to series", i)
		}
	}

	return series, nil
}

// RollingMean returns the simple moving average of values over window.
// Positions before the window fills, or whose window holds a missing value, are NaN.
func RollingMean(values []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("rolling window must be at least 1, got %d", window)
	}

	series, err := newCloseSeries(values)
	if err != nil {
		return nil, err
	}
	sma := techan.NewSimpleMovingAverage(techan.NewClosePriceIndicator(series), window)

	out := make([]float64, len(values))
	missing := 0
	for i, v := range values {
		if isMissing(v) {
			missing++
		}
		if i >= window && isMissing(values[i-window]) {
			missing--
		}

		if i < window-1 || missing > 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sma.Calculate(i).Float()
	}

	return out, nil
}
