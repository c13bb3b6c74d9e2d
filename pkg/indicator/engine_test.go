package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mohamedkhairy/breakout-monitor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBars(closes ...float64) []models.Bar {
	start := time.Date(2025, 1, 2, 9, 15, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Open:      models.Float(c),
			High:      models.Float(c + 1),
			Low:       models.Float(c - 1),
			Close:     models.Float(c),
			Volume:    models.Float(1000),
		}
	}
	return bars
}

func constantBars(n int, price float64) []models.Bar {
	bars := make([]models.Bar, n)
	start := time.Date(2025, 1, 2, 9, 15, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Open:      models.Float(price),
			High:      models.Float(price),
			Low:       models.Float(price),
			Close:     models.Float(price),
		}
	}
	return bars
}

func TestCompute_EmptyWindow(t *testing.T) {
	_, err := Compute(nil, models.NewInstrumentConfig("TCS"))
	assert.True(t, errors.Is(err, ErrEmptyWindow))
}

func TestCompute_MissingColumn(t *testing.T) {
	bars := makeBars(100, 101, 102)
	for i := range bars {
		bars[i].Close = nil
	}

	_, err := Compute(bars, models.NewInstrumentConfig("TCS"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestCompute_PartiallyMissingColumnIsAccepted(t *testing.T) {
	bars := makeBars(100, 101, 102, 103)
	bars[1].Close = nil

	out, err := Compute(bars, models.NewInstrumentConfig("TCS"))
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestCompute_IsPure(t *testing.T) {
	bars := makeBars(100, 102, 101, 105, 107, 104, 108, 110, 111, 109, 115, 118)
	original := make([]models.Bar, len(bars))
	copy(original, bars)
	cfg := models.NewInstrumentConfig("TCS")

	first, err := Compute(bars, cfg)
	require.NoError(t, err)
	second, err := Compute(bars, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, original, bars)
	assert.Len(t, first, len(bars))
}

func TestCompute_MovingAveragesNullUntilFilled(t *testing.T) {
	cfg := models.NewInstrumentConfig("TCS")
	cfg.MovingAverages = &models.MovingAverageParams{MAFast: 3, MASlow: 5}
	cfg.Bollinger = &models.BollingerParams{Period: 3, StdDev: 2}

	out, err := Compute(makeBars(1, 2, 3, 4, 5), cfg)
	require.NoError(t, err)

	assert.Nil(t, out[0].MAFast)
	assert.Nil(t, out[1].MAFast)
	require.NotNil(t, out[2].MAFast)
	assert.InDelta(t, 2.0, *out[2].MAFast, 1e-9)
	assert.InDelta(t, 4.0, *out[4].MAFast, 1e-9)

	assert.Nil(t, out[3].MASlow)
	require.NotNil(t, out[4].MASlow)
	assert.InDelta(t, 3.0, *out[4].MASlow, 1e-9)

	require.NotNil(t, out[2].BBStd)
	assert.InDelta(t, 1.0, *out[2].BBStd, 1e-9)
	assert.InDelta(t, 4.0, *out[2].BBUpper, 1e-9)
	assert.InDelta(t, 0.0, *out[2].BBLower, 1e-9)
}

func TestCompute_ConstantSeries(t *testing.T) {
	out, err := Compute(constantBars(30, 500), models.NewInstrumentConfig("TCS"))
	require.NoError(t, err)

	last := out[len(out)-1]
	require.NotNil(t, last.MACD)
	assert.InDelta(t, 0.0, *last.MACD, 1e-9)
	assert.InDelta(t, 0.0, *last.MACDHist, 1e-9)
	assert.Nil(t, last.PlusDI)
	assert.Nil(t, last.DX)
	assert.Nil(t, last.ADX)
	require.NotNil(t, last.BBStd)
	assert.InDelta(t, 0.0, *last.BBStd, 1e-9)
}

func TestCompute_TrendingSeriesPopulatesADX(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)*2
	}

	out, err := Compute(makeBars(closes...), models.NewInstrumentConfig("TCS"))
	require.NoError(t, err)

	last := out[len(out)-1]
	require.NotNil(t, last.ADX)
	require.NotNil(t, last.PlusDI)
	require.NotNil(t, last.MinusDI)
	assert.Greater(t, *last.PlusDI, *last.MinusDI)
	assert.Greater(t, *last.ADX, 0.0)
	assert.Greater(t, *last.MACD, 0.0)

	// first bar: no previous bar for the directional move
	assert.Nil(t, out[0].UpMove)
	require.NotNil(t, out[0].TR)
	assert.InDelta(t, 2.0, *out[0].TR, 1e-9)
	require.NotNil(t, out[0].PlusDM)
	assert.Equal(t, 0.0, *out[0].PlusDM)
}

// TestCompute_ReferenceSequence pins every derived column to values worked
// out by hand for a five-bar OHLC series with small periods (alpha = 0.5 for
// span 3, alpha = 1 for span 1).
func TestCompute_ReferenceSequence(t *testing.T) {
	highs := []float64{11, 13, 12, 15, 14}
	lows := []float64{9, 10, 9, 11, 12}
	closes := []float64{10, 12, 11, 14, 13}

	bars := makeBars(closes...)
	for i := range bars {
		bars[i].High = models.Float(highs[i])
		bars[i].Low = models.Float(lows[i])
	}

	cfg := models.NewInstrumentConfig("TCS")
	cfg.MovingAverages = &models.MovingAverageParams{MAFast: 2, MASlow: 3}
	cfg.Bollinger = &models.BollingerParams{Period: 3, StdDev: 2}
	cfg.MACD = &models.MACDParams{FastPeriod: 1, SlowPeriod: 3, SignalPeriod: 3}
	cfg.ADX = &models.ADXParams{Period: 3}

	out, err := Compute(bars, cfg)
	require.NoError(t, err)
	require.Len(t, out, 5)

	nan := math.NaN()
	std := math.Sqrt(7.0 / 3.0)
	want := map[string][]float64{
		"MAFast":     {nan, 11, 11.5, 12.5, 13.5},
		"MASlow":     {nan, nan, 11, 37.0 / 3.0, 38.0 / 3.0},
		"BBStd":      {nan, nan, 1, std, std},
		"BBUpper":    {nan, nan, 13, 37.0/3.0 + 2*std, 38.0/3.0 + 2*std},
		"BBLower":    {nan, nan, 9, 37.0/3.0 - 2*std, 38.0/3.0 - 2*std},
		"MACD":       {0, 1, 0, 1.5, 0.25},
		"MACDSignal": {0, 0.5, 0.25, 0.875, 0.5625},
		"MACDHist":   {0, 0.5, -0.25, 0.625, -0.3125},
		"UpMove":     {nan, 2, -1, 3, -1},
		"DownMove":   {nan, -1, 1, -2, -1},
		"PlusDM":     {0, 2, 0, 3, 0},
		"MinusDM":    {0, 0, 1, 0, 0},
		"TR":         {2, 3, 3, 4, 2},
		"PlusDI":     {0, 40, 200.0 / 11.0, 1400.0 / 27.0, 1400.0 / 43.0},
		"MinusDI":    {0, 0, 200.0 / 11.0, 200.0 / 27.0, 200.0 / 43.0},
		"DX":         {nan, 100, 0, 75, 75},
		"ADX":        {nan, 100, 50, 62.5, 68.75},
	}

	columns := func(r models.EnrichedBar) map[string]*float64 {
		return map[string]*float64{
			"MAFast": r.MAFast, "MASlow": r.MASlow,
			"BBStd": r.BBStd, "BBUpper": r.BBUpper, "BBLower": r.BBLower,
			"MACD": r.MACD, "MACDSignal": r.MACDSignal, "MACDHist": r.MACDHist,
			"UpMove": r.UpMove, "DownMove": r.DownMove,
			"PlusDM": r.PlusDM, "MinusDM": r.MinusDM, "TR": r.TR,
			"PlusDI": r.PlusDI, "MinusDI": r.MinusDI, "DX": r.DX, "ADX": r.ADX,
		}
	}

	for i, row := range out {
		got := columns(row)
		for name, series := range want {
			expected := series[i]
			if math.IsNaN(expected) {
				assert.Nil(t, got[name], "%s[%d] should be null", name, i)
				continue
			}
			if assert.NotNil(t, got[name], "%s[%d] should be set", name, i) {
				assert.InDelta(t, expected, *got[name], 1e-9, "%s[%d]", name, i)
			}
		}
	}
}

func TestEMASeries(t *testing.T) {
	out, err := EMASeries([]float64{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1.5, 2.25}, out, 1e-12)

	out, err = EMASeries([]float64{math.NaN(), 1, math.NaN(), 3}, 3)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[0]))
	assert.Equal(t, 1.0, out[1])
	assert.Equal(t, 1.0, out[2])
	// the gap decays the old weight: (0.25*1 + 0.5*3) / 0.75
	assert.InDelta(t, 7.0/3.0, out[3], 1e-12)

	_, err = EMASeries([]float64{1}, 0)
	assert.Error(t, err)
}

func TestRollingMean(t *testing.T) {
	out, err := RollingMean([]float64{1, math.NaN(), 3, 4, 5}, 2)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.True(t, math.IsNaN(out[2]))
	assert.InDelta(t, 3.5, out[3], 1e-9)
	assert.InDelta(t, 4.5, out[4], 1e-9)
}

func TestRollingStd(t *testing.T) {
	out, err := RollingStd([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(32.0/7.0), out[7], 1e-12)

	out, err = RollingStd([]float64{1, 2}, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[1]), "a single-observation sample std is undefined")
}
